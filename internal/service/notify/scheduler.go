// Package notify доставляет транзакционные письма галереи: планировщик
// с повторами пишет состояние доставки на владеющую запись, монитор
// подсвечивает просроченные уведомления.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/aurabyshenoi/gallery/internal/domain"
	"github.com/aurabyshenoi/gallery/internal/messaging/kafka"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 1000 * time.Millisecond
	defaultMaxDelay    = 30 * time.Second

	// Виды уведомлений, известные планировщику.
	KindOrder   = "order"
	KindContact = "contact"
)

var (
	notifySent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gallery_notifications_sent_total",
		Help: "Total number of delivered notifications grouped by kind.",
	}, []string{"kind"})
	notifyFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gallery_notifications_failed_total",
		Help: "Total number of notifications that exhausted delivery attempts.",
	}, []string{"kind"})
	notifyAttempts = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gallery_notification_delivery_attempts",
		Help:    "Delivery attempts spent per notification.",
		Buckets: []float64{1, 2, 3},
	}, []string{"kind"})
	notifyInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gallery_notifications_in_flight",
		Help: "Current number of notification deliveries in progress.",
	})
)

// Task описывает письмо для асинхронной доставки.
// OwnerID указывает запись, на которой сохраняется состояние доставки.
type Task struct {
	Kind    string
	OwnerID string
	Message domain.MailMessage
}

// StateStore сохраняет состояние доставки на владеющей записи.
// Репозитории заказов и обращений удовлетворяют этому контракту.
type StateStore interface {
	UpdateNotification(id string, state domain.NotificationState) error
}

// SchedulerOptions задаёт параметры планировщика.
type SchedulerOptions struct {
	Logger      *log.Entry
	Breaker     *CircuitBreaker
	Events      domain.EventPublisher
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// SchedulerOption настраивает Scheduler.
type SchedulerOption func(*SchedulerOptions)

// WithLogger задаёт logger планировщика.
func WithLogger(logger *log.Entry) SchedulerOption {
	return func(opts *SchedulerOptions) {
		opts.Logger = logger
	}
}

// WithBreaker защищает релей указанным выключателем.
func WithBreaker(breaker *CircuitBreaker) SchedulerOption {
	return func(opts *SchedulerOptions) {
		opts.Breaker = breaker
	}
}

// WithEvents задаёт издателя событий об исчерпанных доставках.
func WithEvents(events domain.EventPublisher) SchedulerOption {
	return func(opts *SchedulerOptions) {
		opts.Events = events
	}
}

// WithMaxAttempts задаёт предел попыток доставки.
func WithMaxAttempts(maxAttempts int) SchedulerOption {
	return func(opts *SchedulerOptions) {
		opts.MaxAttempts = maxAttempts
	}
}

// WithBaseDelay задаёт базовую паузу экспоненциального повтора.
func WithBaseDelay(delay time.Duration) SchedulerOption {
	return func(opts *SchedulerOptions) {
		opts.BaseDelay = delay
	}
}

// WithMaxDelay ограничивает паузу между попытками сверху.
func WithMaxDelay(delay time.Duration) SchedulerOption {
	return func(opts *SchedulerOptions) {
		opts.MaxDelay = delay
	}
}

// Scheduler асинхронно доставляет письма с повторами.
// Итог доставки записывается на владеющую запись и никогда
// не возвращается планирующему вызову.
type Scheduler struct {
	relay   domain.MailRelay
	stores  map[string]StateStore
	breaker *CircuitBreaker
	events  domain.EventPublisher

	logger      *log.Entry
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	now         func() time.Time

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	stop   chan struct{}
}

// NewScheduler создаёт планировщик поверх релея и хранилищ состояния.
func NewScheduler(relay domain.MailRelay, stores map[string]StateStore, options ...SchedulerOption) *Scheduler {
	opts := SchedulerOptions{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "notify-scheduler")
	}

	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = defaultMaxDelay
	}
	if opts.Events == nil {
		opts.Events = kafka.NopPublisher{}
	}

	return &Scheduler{
		relay:       relay,
		stores:      stores,
		breaker:     opts.Breaker,
		events:      opts.Events,
		logger:      logger,
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		maxDelay:    opts.MaxDelay,
		now:         time.Now,
		stop:        make(chan struct{}),
	}
}

// Schedule ставит письмо в доставку после указанной задержки.
// Задержка ограничивается пределом просрочки уведомления; закрытый
// планировщик отклоняет новые задачи с ErrSchedulerClosed.
func (s *Scheduler) Schedule(ctx context.Context, task Task, delay time.Duration) error {
	if _, ok := s.stores[task.Kind]; !ok {
		return fmt.Errorf("unknown notification kind %q", task.Kind)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSchedulerClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	if delay < 0 {
		delay = 0
	}
	if delay > domain.NotificationOverdueAfter {
		delay = domain.NotificationOverdueAfter
	}

	// Доставка переживает запрос, который её запланировал.
	go s.deliver(context.WithoutCancel(ctx), task, delay)

	return nil
}

// Shutdown закрывает планировщик и дожидается активных доставок.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.stop)
	}
	s.mu.Unlock()

	waitDone := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) deliver(ctx context.Context, task Task, delay time.Duration) {
	defer s.wg.Done()

	notifyInFlight.Inc()
	defer notifyInFlight.Dec()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-s.stop:
			// Останов сокращает отложенное ожидание: письмо уходит сразу.
		}
	}

	var (
		state   domain.NotificationState
		lastErr error
	)

retry:
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		state.Attempts = attempt

		err := s.send(ctx, task.Message)
		if err == nil {
			now := s.now().UTC()
			state.Sent = true
			state.SentAt = &now
			state.LastError = ""
			s.persistState(task, state)

			notifySent.WithLabelValues(task.Kind).Inc()
			notifyAttempts.WithLabelValues(task.Kind).Observe(float64(attempt))
			if attempt > 1 {
				s.logger.WithFields(log.Fields{
					"kind":     task.Kind,
					"owner_id": task.OwnerID,
					"attempt":  attempt,
				}).Info("notification delivered after retry")
			}
			return
		}
		lastErr = err

		if attempt >= s.maxAttempts {
			break
		}

		select {
		case <-time.After(s.backoff(attempt)):
		case <-s.stop:
			break retry
		}
	}

	state.Sent = false
	state.SentAt = nil
	state.LastError = lastErr.Error()
	s.persistState(task, state)

	notifyFailed.WithLabelValues(task.Kind).Inc()
	notifyAttempts.WithLabelValues(task.Kind).Observe(float64(state.Attempts))
	s.logger.WithError(lastErr).WithFields(log.Fields{
		"kind":     task.Kind,
		"owner_id": task.OwnerID,
		"attempts": state.Attempts,
	}).Error("notification delivery exhausted")

	event := kafka.NewNotificationEvent(task.Kind, task.OwnerID, state.Attempts, state.LastError)
	if err := s.events.Publish(kafka.EventNotificationExhausted, task.OwnerID, event); err != nil {
		s.logger.WithError(err).Warn("failed to publish notification exhausted event")
	}
}

func (s *Scheduler) send(ctx context.Context, msg domain.MailMessage) error {
	if s.breaker == nil {
		return s.relay.Send(ctx, msg)
	}
	return s.breaker.Execute("send", func() error {
		return s.relay.Send(ctx, msg)
	})
}

func (s *Scheduler) persistState(task Task, state domain.NotificationState) {
	store := s.stores[task.Kind]
	if err := store.UpdateNotification(task.OwnerID, state); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"kind":     task.Kind,
			"owner_id": task.OwnerID,
		}).Warn("failed to persist notification state")
	}
}

// backoff возвращает паузу после неудавшейся попытки attempt:
// базовая задержка удваивается с каждой попыткой и ограничена сверху.
func (s *Scheduler) backoff(attempt int) time.Duration {
	delay := s.baseDelay
	for i := 1; i < attempt; i++ {
		if delay > s.maxDelay/2 {
			return s.maxDelay
		}
		delay *= 2
	}
	if delay > s.maxDelay {
		return s.maxDelay
	}
	return delay
}
