// Package checkout оформляет заказы галереи: проверяет корзину, резервирует
// работы, создаёт платёжное намерение и сохраняет подтверждённый заказ.
// Каждая работа существует в единственном экземпляре, поэтому оформление
// построено вокруг условного резервирования с компенсацией при любом исходе,
// кроме успешного списания.
package checkout

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/aurabyshenoi/gallery/internal/domain"
	"github.com/aurabyshenoi/gallery/internal/messaging/kafka"
	"github.com/aurabyshenoi/gallery/internal/oid"
	"github.com/aurabyshenoi/gallery/internal/pricing"
	"github.com/aurabyshenoi/gallery/internal/service/notify"
	"github.com/aurabyshenoi/gallery/internal/service/sequence"
)

// defaultCurrency задаёт валюту платёжных намерений.
const defaultCurrency = "usd"

var (
	ordersPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gallery_orders_placed_total",
		Help: "Orders persisted with a confirmed payment.",
	})
	paymentsDeclined = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gallery_checkout_declines_total",
		Help: "Checkout attempts rejected by the payment gateway.",
	})
	reconciliationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gallery_checkout_reconciliation_failures_total",
		Help: "Orders charged by the gateway but not persisted.",
	})
)

// Request описывает входные данные оформления заказа.
type Request struct {
	ItemIDs  []string
	Customer domain.Customer
	Shipping domain.ShippingAddress
	// PaymentMethodRef содержит ссылку на способ оплаты, полученную
	// клиентом от платёжного шлюза.
	PaymentMethodRef string
}

// Quote возвращает проверенную корзину с рассчитанной стоимостью.
type Quote struct {
	Items   []domain.Item
	Pricing domain.Pricing
}

// Result описывает исход оформления. При RequiresAction заказ не сохранён:
// покупатель завершает подтверждение по ContinuationToken и повторяет запрос.
type Result struct {
	Order             domain.Order
	RequiresAction    bool
	ContinuationToken string
}

// NotificationScheduler ставит письмо подтверждения в асинхронную доставку.
type NotificationScheduler interface {
	Schedule(ctx context.Context, task notify.Task, delay time.Duration) error
}

// ListingCache сбрасывает кэшированные выборки каталога после продажи.
type ListingCache interface {
	InvalidateListing(ctx context.Context) error
}

// Options задаёт параметры сервиса оформления.
type Options struct {
	Logger    *log.Entry
	Pricing   *pricing.Calculator
	Scheduler NotificationScheduler
	Cache     ListingCache
	Events    domain.EventPublisher
	Currency  string
}

// Option настраивает Service.
type Option func(*Options)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithPricing задаёт калькулятор стоимости.
func WithPricing(calc *pricing.Calculator) Option {
	return func(opts *Options) {
		opts.Pricing = calc
	}
}

// WithScheduler задаёт планировщик писем подтверждения.
func WithScheduler(scheduler NotificationScheduler) Option {
	return func(opts *Options) {
		opts.Scheduler = scheduler
	}
}

// WithListingCache задаёт кэш каталога для сброса после продажи.
func WithListingCache(cache ListingCache) Option {
	return func(opts *Options) {
		opts.Cache = cache
	}
}

// WithEvents задаёт издателя доменных событий.
func WithEvents(events domain.EventPublisher) Option {
	return func(opts *Options) {
		opts.Events = events
	}
}

// WithCurrency задаёт валюту платёжных намерений.
func WithCurrency(currency string) Option {
	return func(opts *Options) {
		opts.Currency = currency
	}
}

// Service оформляет заказы галереи.
type Service struct {
	items     domain.ItemRepository
	orders    domain.OrderRepository
	gateway   domain.PaymentGateway
	sequencer *sequence.Sequencer
	calc      *pricing.Calculator
	scheduler NotificationScheduler
	cache     ListingCache
	events    domain.EventPublisher
	logger    *log.Entry
	currency  string
	now       func() time.Time
}

// NewService создаёт сервис оформления поверх хранилищ и платёжного шлюза.
func NewService(
	items domain.ItemRepository,
	orders domain.OrderRepository,
	gateway domain.PaymentGateway,
	sequencer *sequence.Sequencer,
	options ...Option,
) *Service {
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "checkout")
	}
	if opts.Pricing == nil {
		opts.Pricing = pricing.NewCalculator(pricing.Config{})
	}
	if opts.Events == nil {
		opts.Events = kafka.NopPublisher{}
	}
	if opts.Currency == "" {
		opts.Currency = defaultCurrency
	}

	return &Service{
		items:     items,
		orders:    orders,
		gateway:   gateway,
		sequencer: sequencer,
		calc:      opts.Pricing,
		scheduler: opts.Scheduler,
		cache:     opts.Cache,
		events:    opts.Events,
		logger:    logger,
		currency:  opts.Currency,
		now:       time.Now,
	}
}

// CheckAvailability проверяет, что каждая работа существует и доступна.
// Возвращает работы в порядке запроса либо InventoryConflictError со всеми
// проблемными идентификаторами сразу: отсутствующие и уже проданные работы
// не различаются.
func (s *Service) CheckAvailability(ctx context.Context, itemIDs []string) ([]domain.Item, error) {
	return s.gate(normalizeIDs(itemIDs))
}

// Validate проверяет корзину и возвращает расчёт стоимости без побочных
// эффектов: работы не резервируются, обращения к шлюзу не происходит.
func (s *Service) Validate(ctx context.Context, itemIDs []string, country string) (Quote, error) {
	ids := normalizeIDs(itemIDs)

	errs := validateIDs(ids)
	if strings.TrimSpace(country) == "" {
		errs = append(errs, domain.ErrCountryRequired)
	}
	if len(errs) > 0 {
		return Quote{}, &domain.ValidationError{Errs: errs}
	}

	items, err := s.gate(ids)
	if err != nil {
		return Quote{}, err
	}

	return Quote{Items: items, Pricing: s.calc.Quote(items, country)}, nil
}

// Checkout оформляет заказ: проверяет корзину, резервирует работы, создаёт
// платёжное намерение и сохраняет заказ с подтверждённой оплатой. Резерв
// снимается при любом исходе, кроме успешного списания и расхождения после
// него. Сохранение, не состоявшееся после списания, возвращается как
// ReconciliationError: резерв и намерение остаются для ручного разбора,
// автоматический возврат средств не выполняется.
func (s *Service) Checkout(ctx context.Context, req Request) (Result, error) {
	req = normalizeRequest(req)
	if err := validateRequest(req); err != nil {
		return Result{}, err
	}

	items, err := s.gate(req.ItemIDs)
	if err != nil {
		return Result{}, err
	}
	quote := s.calc.Quote(items, req.Shipping.Country)

	// Резервируем до обращения к шлюзу, чтобы два конкурентных заказа
	// не оплатили одну и ту же работу. Проигравший получает конфликт.
	reserved, err := s.items.MarkUnavailable(req.ItemIDs)
	if err != nil {
		return Result{}, fmt.Errorf("reserve items: %w", err)
	}
	if len(reserved) < len(req.ItemIDs) {
		s.release(reserved)
		return Result{}, &domain.InventoryConflictError{ItemIDs: missingFrom(req.ItemIDs, reserved)}
	}

	number, err := s.sequencer.Next(sequence.PrefixOrder)
	if err != nil {
		s.release(reserved)
		return Result{}, fmt.Errorf("assign order number: %w", err)
	}

	intent, err := s.gateway.CreateIntent(ctx, domain.CreateIntentRequest{
		Amount:    quote.Total,
		Currency:  s.currency,
		MethodRef: req.PaymentMethodRef,
		Metadata: map[string]string{
			"order_number":   number,
			"customer_email": req.Customer.Email,
			"item_ids":       strings.Join(req.ItemIDs, ","),
		},
	})
	if err != nil {
		s.release(reserved)
		return Result{}, fmt.Errorf("%w: %v", domain.ErrPaymentGatewayUnavailable, err)
	}

	switch intent.Status {
	case domain.IntentStatusSucceeded:
	case domain.IntentStatusRequiresAction:
		s.release(reserved)
		s.logger.WithFields(log.Fields{
			"order_number": number,
			"intent_id":    intent.ID,
		}).Info("checkout requires additional customer action")
		return Result{RequiresAction: true, ContinuationToken: intent.ClientSecret}, nil
	default:
		s.release(reserved)
		s.publishDecline(number, intent)
		paymentsDeclined.Inc()
		s.logger.WithFields(log.Fields{
			"order_number":  number,
			"intent_status": string(intent.Status),
		}).Info("payment declined by gateway")
		return Result{}, &domain.DeclineError{Reason: intent.DeclineReason}
	}

	now := s.now().UTC()
	order := domain.Order{
		ID:          oid.New(),
		OrderNumber: number,
		Items:       snapshotItems(items),
		Customer:    req.Customer,
		Shipping:    req.Shipping,
		Pricing:     quote,
		Payment: domain.Payment{
			Status:   domain.PaymentStatusCompleted,
			IntentID: intent.ID,
		},
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.orders.Create(order); err != nil {
		// Средства списаны, заказа в хранилище нет. Резерв сохраняется,
		// возврат не выполняется: случай разбирается вручную по номеру
		// заказа и намерению.
		reconciliationFailures.Inc()
		s.logger.WithFields(log.Fields{
			"reconciliation": true,
			"order_number":   number,
			"intent_id":      intent.ID,
		}).WithError(err).Error("payment captured but order not persisted")
		s.publishReconciliation(number, intent.ID, err)
		return Result{}, &domain.ReconciliationError{OrderNumber: number, IntentID: intent.ID, Err: err}
	}

	ordersPlaced.Inc()
	s.finalize(ctx, order)

	s.logger.WithFields(log.Fields{
		"order_number": order.OrderNumber,
		"order_id":     order.ID,
		"items":        len(order.Items),
		"total":        order.Pricing.Total,
	}).Info("order placed")

	return Result{Order: order}, nil
}

// Order возвращает заказ по внутреннему идентификатору.
func (s *Service) Order(ctx context.Context, id string) (domain.Order, error) {
	id = strings.TrimSpace(id)
	if !oid.Valid(id) {
		return domain.Order{}, fmt.Errorf("%w: %s", domain.ErrInvalidObjectID, id)
	}
	return s.orders.Get(id)
}

// OrderByNumber возвращает заказ по публичному номеру.
func (s *Service) OrderByNumber(ctx context.Context, number string) (domain.Order, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return s.orders.GetByNumber(number)
}

// finalize выполняет побочные эффекты сохранённого заказа. Ошибки здесь
// не отменяют оформление: заказ уже сохранён и оплачен.
func (s *Service) finalize(ctx context.Context, order domain.Order) {
	if s.cache != nil {
		if err := s.cache.InvalidateListing(ctx); err != nil {
			s.logger.WithError(err).Warn("failed to invalidate catalog listings")
		}
	}

	event := kafka.NewOrderEvent(kafka.EventOrderPlaced, order.OrderNumber, string(domain.PaymentStatusCompleted), map[string]string{
		"order_id":       order.ID,
		"customer_email": order.Customer.Email,
		"total":          strconv.FormatInt(order.Pricing.Total, 10),
	})
	if err := s.events.Publish(kafka.EventOrderPlaced, order.OrderNumber, event); err != nil {
		s.logger.WithError(err).Warn("failed to publish order placed event")
	}

	if s.scheduler == nil {
		return
	}
	task := notify.Task{
		Kind:    notify.KindOrder,
		OwnerID: order.ID,
		Message: confirmationMail(order),
	}
	if err := s.scheduler.Schedule(ctx, task, 0); err != nil {
		s.logger.WithError(err).WithField("order_number", order.OrderNumber).
			Warn("failed to schedule order confirmation")
	}
}

// gate возвращает работы корзины в порядке запроса либо конфликт со всеми
// проблемными идентификаторами.
func (s *Service) gate(ids []string) ([]domain.Item, error) {
	found, err := s.items.GetMany(ids)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}

	byID := make(map[string]domain.Item, len(found))
	for _, item := range found {
		byID[item.ID] = item
	}

	items := make([]domain.Item, 0, len(ids))
	var conflicts []string
	for _, id := range ids {
		item, ok := byID[id]
		if !ok || !item.Available {
			conflicts = append(conflicts, id)
			continue
		}
		items = append(items, item)
	}
	if len(conflicts) > 0 {
		return nil, &domain.InventoryConflictError{ItemIDs: conflicts}
	}

	return items, nil
}

// release снимает резерв с перечисленных работ. Передаются только
// идентификаторы, зарезервированные этим же оформлением, иначе можно
// вернуть в продажу работу конкурентного заказа.
func (s *Service) release(ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := s.items.MarkAvailable(ids); err != nil {
		s.logger.WithError(err).WithField("item_ids", strings.Join(ids, ",")).
			Error("failed to release reserved items")
	}
}

func (s *Service) publishDecline(number string, intent domain.PaymentIntent) {
	metadata := map[string]string{"intent_status": string(intent.Status)}
	if intent.DeclineReason != "" {
		metadata["decline_reason"] = intent.DeclineReason
	}
	event := kafka.NewOrderEvent(kafka.EventOrderPaymentDeclined, number, string(domain.PaymentStatusFailed), metadata)
	if err := s.events.Publish(kafka.EventOrderPaymentDeclined, number, event); err != nil {
		s.logger.WithError(err).Warn("failed to publish payment declined event")
	}
}

func (s *Service) publishReconciliation(number, intentID string, cause error) {
	event := kafka.NewReconciliationEvent(number, intentID, cause.Error())
	if err := s.events.Publish(kafka.EventReconciliationFailed, number, event); err != nil {
		s.logger.WithError(err).Warn("failed to publish reconciliation event")
	}
}

// normalizeRequest приводит запрос к каноничному виду: идентификаторы без
// повторов, поля без краевых пробелов, почта в нижнем регистре.
func normalizeRequest(req Request) Request {
	req.ItemIDs = normalizeIDs(req.ItemIDs)
	req.Customer.Name = strings.TrimSpace(req.Customer.Name)
	req.Customer.Email = strings.ToLower(strings.TrimSpace(req.Customer.Email))
	req.Customer.Phone = strings.TrimSpace(req.Customer.Phone)
	req.Shipping.Address = strings.TrimSpace(req.Shipping.Address)
	req.Shipping.City = strings.TrimSpace(req.Shipping.City)
	req.Shipping.PostalCode = strings.TrimSpace(req.Shipping.PostalCode)
	req.Shipping.Country = strings.TrimSpace(req.Shipping.Country)
	req.PaymentMethodRef = strings.TrimSpace(req.PaymentMethodRef)
	return req
}

func validateRequest(req Request) error {
	errs := validateIDs(req.ItemIDs)

	if req.Customer.Name == "" {
		errs = append(errs, domain.ErrCustomerNameRequired)
	}
	switch {
	case req.Customer.Email == "":
		errs = append(errs, domain.ErrCustomerEmailRequired)
	case !domain.ValidEmail(req.Customer.Email):
		errs = append(errs, domain.ErrEmailInvalid)
	}
	if req.Shipping.Country == "" {
		errs = append(errs, domain.ErrCountryRequired)
	}
	if req.PaymentMethodRef == "" {
		errs = append(errs, domain.ErrPaymentMethodRequired)
	}

	if len(errs) > 0 {
		return &domain.ValidationError{Errs: errs}
	}
	return nil
}

func validateIDs(ids []string) []error {
	var errs []error
	if len(ids) == 0 {
		errs = append(errs, domain.ErrItemsRequired)
		return errs
	}
	for _, id := range ids {
		if !oid.Valid(id) {
			errs = append(errs, fmt.Errorf("%w: %s", domain.ErrInvalidObjectID, id))
		}
	}
	return errs
}

// normalizeIDs убирает пустые значения и повторы, сохраняя порядок запроса.
func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// missingFrom возвращает идентификаторы из requested, отсутствующие в reserved.
func missingFrom(requested, reserved []string) []string {
	got := make(map[string]struct{}, len(reserved))
	for _, id := range reserved {
		got[id] = struct{}{}
	}

	var missing []string
	for _, id := range requested {
		if _, ok := got[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// snapshotItems фиксирует позиции заказа на момент оформления.
func snapshotItems(items []domain.Item) []domain.OrderItem {
	snap := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		snap = append(snap, domain.OrderItem{
			ItemID:   item.ID,
			Title:    item.Title,
			Price:    item.Price,
			ImageURL: item.ImageURL,
		})
	}
	return snap
}

// confirmationMail собирает письмо подтверждения заказа.
func confirmationMail(order domain.Order) domain.MailMessage {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", order.Customer.Name)
	fmt.Fprintf(&b, "Thank you for your purchase. Order %s is confirmed.\n\n", order.OrderNumber)
	for _, item := range order.Items {
		fmt.Fprintf(&b, "  %s  $%d\n", item.Title, item.Price)
	}
	fmt.Fprintf(&b, "\nSubtotal: $%d\n", order.Pricing.Subtotal)
	fmt.Fprintf(&b, "Shipping: $%d\n", order.Pricing.ShippingCost)
	fmt.Fprintf(&b, "Total: $%d\n", order.Pricing.Total)
	fmt.Fprintf(&b, "\nWe will let you know as soon as your order ships.\n")

	return domain.MailMessage{
		To:      order.Customer.Email,
		Subject: fmt.Sprintf("Order %s confirmed", order.OrderNumber),
		Body:    b.String(),
	}
}
