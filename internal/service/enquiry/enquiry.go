// Package enquiry принимает обращения покупателей и подписки на рассылку.
// Обращение получает публичный номер CNT и подтверждение на почту; частота
// обращений с одного адреса ограничивается оконным счётчиком кэша.
package enquiry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/aurabyshenoi/gallery/internal/domain"
	"github.com/aurabyshenoi/gallery/internal/messaging/kafka"
	"github.com/aurabyshenoi/gallery/internal/oid"
	"github.com/aurabyshenoi/gallery/internal/service/notify"
	"github.com/aurabyshenoi/gallery/internal/service/sequence"
)

// Окно ограничения частоты обращений по умолчанию.
const (
	defaultRateLimitMax    = 5
	defaultRateLimitWindow = 60
)

var (
	contactsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gallery_contacts_received_total",
		Help: "Contact enquiries accepted.",
	})
	contactsRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gallery_contacts_rate_limited_total",
		Help: "Contact enquiries rejected by the rate limiter.",
	})
	newsletterSubscriptions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gallery_newsletter_subscriptions_total",
		Help: "Newsletter subscriptions accepted.",
	})
)

// Request описывает обращение с формы на сайте. ClientIP используется
// только ограничителем частоты и не сохраняется.
type Request struct {
	Name     string
	Email    string
	Phone    string
	Address  string
	Query    string
	ClientIP string
}

// NotificationScheduler ставит письмо подтверждения в асинхронную доставку.
type NotificationScheduler interface {
	Schedule(ctx context.Context, task notify.Task, delay time.Duration) error
}

// Options задаёт параметры сервиса обращений.
type Options struct {
	Logger          *log.Entry
	Scheduler       NotificationScheduler
	Events          domain.EventPublisher
	Cache           domain.Cache
	RateLimitMax    int
	RateLimitWindow int
}

// Option настраивает Service.
type Option func(*Options)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithScheduler задаёт планировщик писем подтверждения.
func WithScheduler(scheduler NotificationScheduler) Option {
	return func(opts *Options) {
		opts.Scheduler = scheduler
	}
}

// WithEvents задаёт издателя доменных событий.
func WithEvents(events domain.EventPublisher) Option {
	return func(opts *Options) {
		opts.Events = events
	}
}

// WithRateLimiter ограничивает частоту обращений оконным счётчиком кэша.
// Без кэша ограничение отключено.
func WithRateLimiter(cache domain.Cache, maxPerWindow, windowSeconds int) Option {
	return func(opts *Options) {
		opts.Cache = cache
		opts.RateLimitMax = maxPerWindow
		opts.RateLimitWindow = windowSeconds
	}
}

// Service принимает обращения и подписки галереи.
type Service struct {
	contacts    domain.ContactRepository
	newsletters domain.NewsletterRepository
	sequencer   *sequence.Sequencer
	scheduler   NotificationScheduler
	events      domain.EventPublisher
	cache       domain.Cache
	logger      *log.Entry
	limitMax    int
	limitWindow int
	now         func() time.Time
}

// NewService создаёт сервис обращений поверх хранилищ.
func NewService(
	contacts domain.ContactRepository,
	newsletters domain.NewsletterRepository,
	sequencer *sequence.Sequencer,
	options ...Option,
) *Service {
	opts := Options{
		RateLimitMax:    defaultRateLimitMax,
		RateLimitWindow: defaultRateLimitWindow,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "enquiry")
	}
	if opts.Events == nil {
		opts.Events = kafka.NopPublisher{}
	}
	if opts.RateLimitMax <= 0 {
		opts.RateLimitMax = defaultRateLimitMax
	}
	if opts.RateLimitWindow <= 0 {
		opts.RateLimitWindow = defaultRateLimitWindow
	}

	return &Service{
		contacts:    contacts,
		newsletters: newsletters,
		sequencer:   sequencer,
		scheduler:   opts.Scheduler,
		events:      opts.Events,
		cache:       opts.Cache,
		logger:      logger,
		limitMax:    opts.RateLimitMax,
		limitWindow: opts.RateLimitWindow,
		now:         time.Now,
	}
}

// Submit принимает обращение: проверяет поля, выдаёт номер CNT, сохраняет
// запись и ставит подтверждение в доставку. Превышение окна частоты
// возвращает ErrTooManyRequests до каких-либо побочных эффектов.
func (s *Service) Submit(ctx context.Context, req Request) (domain.Contact, error) {
	if err := s.allow(ctx, req.ClientIP); err != nil {
		return domain.Contact{}, err
	}

	contact := domain.Contact{
		ID:        oid.New(),
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:     strings.TrimSpace(req.Phone),
		Address:   strings.TrimSpace(req.Address),
		Query:     strings.TrimSpace(req.Query),
		Status:    domain.ContactStatusNew,
		CreatedAt: s.now().UTC(),
	}
	if errs := contact.ValidateInvariants(); len(errs) > 0 {
		return domain.Contact{}, &domain.ValidationError{Errs: errs}
	}

	reference, err := s.sequencer.Next(sequence.PrefixContact)
	if err != nil {
		return domain.Contact{}, fmt.Errorf("assign contact reference: %w", err)
	}
	contact.Reference = reference

	if err := s.contacts.Create(contact); err != nil {
		return domain.Contact{}, fmt.Errorf("persist contact: %w", err)
	}

	contactsReceived.Inc()
	s.finalize(ctx, contact)

	s.logger.WithFields(log.Fields{
		"reference":  contact.Reference,
		"contact_id": contact.ID,
	}).Info("contact enquiry received")

	return contact, nil
}

// Subscribe добавляет адрес в рассылку. Повторная активная подписка
// возвращает ErrAlreadySubscribed.
func (s *Service) Subscribe(ctx context.Context, email string) (domain.NewsletterSubscriber, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var errs []error
	switch {
	case email == "":
		errs = append(errs, domain.ErrCustomerEmailRequired)
	case !domain.ValidEmail(email):
		errs = append(errs, domain.ErrEmailInvalid)
	}
	if len(errs) > 0 {
		return domain.NewsletterSubscriber{}, &domain.ValidationError{Errs: errs}
	}

	sub := domain.NewsletterSubscriber{
		ID:           oid.New(),
		Email:        email,
		Active:       true,
		SubscribedAt: s.now().UTC(),
	}
	if err := s.newsletters.Subscribe(sub); err != nil {
		if errors.Is(err, domain.ErrAlreadySubscribed) {
			return domain.NewsletterSubscriber{}, err
		}
		return domain.NewsletterSubscriber{}, fmt.Errorf("persist subscription: %w", err)
	}

	newsletterSubscriptions.Inc()
	s.logger.WithField("subscriber_id", sub.ID).Info("newsletter subscription accepted")

	return sub, nil
}

// finalize выполняет побочные эффекты принятого обращения. Ошибки здесь
// не отменяют приём: запись уже сохранена.
func (s *Service) finalize(ctx context.Context, contact domain.Contact) {
	event := kafka.NewContactEvent(kafka.EventContactReceived, contact.Reference, contact.Email)
	if err := s.events.Publish(kafka.EventContactReceived, contact.Reference, event); err != nil {
		s.logger.WithError(err).Warn("failed to publish contact received event")
	}

	if s.scheduler == nil {
		return
	}
	task := notify.Task{
		Kind:    notify.KindContact,
		OwnerID: contact.ID,
		Message: acknowledgementMail(contact),
	}
	if err := s.scheduler.Schedule(ctx, task, 0); err != nil {
		s.logger.WithError(err).WithField("reference", contact.Reference).
			Warn("failed to schedule contact acknowledgement")
	}
}

// allow проверяет оконный счётчик обращений клиента. Сбой кэша не блокирует
// форму: ограничитель отказывает только при достоверном превышении.
func (s *Service) allow(ctx context.Context, clientIP string) error {
	if s.cache == nil || clientIP == "" {
		return nil
	}

	count, err := s.cache.Incr(ctx, "ratelimit:contact:"+clientIP, s.limitWindow)
	if err != nil {
		s.logger.WithError(err).Warn("contact rate limiter unavailable")
		return nil
	}
	if count > int64(s.limitMax) {
		contactsRateLimited.Inc()
		return domain.ErrTooManyRequests
	}
	return nil
}

// acknowledgementMail собирает письмо подтверждения обращения.
func acknowledgementMail(contact domain.Contact) domain.MailMessage {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", contact.Name)
	fmt.Fprintf(&b, "Thank you for contacting the gallery. Your enquiry %s has been received\n", contact.Reference)
	fmt.Fprintf(&b, "and will be answered as soon as possible.\n")

	return domain.MailMessage{
		To:      contact.Email,
		Subject: fmt.Sprintf("Enquiry %s received", contact.Reference),
		Body:    b.String(),
	}
}
