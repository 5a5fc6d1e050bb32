package notify

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/aurabyshenoi/gallery/internal/domain"
)

const (
	defaultMonitorPollInterval = 30 * time.Second
	defaultMonitorBatchSize    = 200
)

var notifyOverdue = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "gallery_notifications_overdue",
	Help: "Current number of records older than the overdue limit without a sent notification.",
})

// OrderSource выдаёт заказы без отправленного уведомления.
type OrderSource interface {
	ListUnnotified(createdBefore time.Time, limit int) ([]domain.Order, error)
}

// ContactSource выдаёт обращения без отправленного уведомления.
type ContactSource interface {
	ListUnnotified(createdBefore time.Time, limit int) ([]domain.Contact, error)
}

// MonitorOptions задаёт параметры монитора просроченных уведомлений.
type MonitorOptions struct {
	Logger       *log.Entry
	PollInterval time.Duration
	BatchSize    int
}

// MonitorOption настраивает Monitor.
type MonitorOption func(*MonitorOptions)

// WithMonitorLogger задаёт logger монитора.
func WithMonitorLogger(logger *log.Entry) MonitorOption {
	return func(opts *MonitorOptions) {
		opts.Logger = logger
	}
}

// WithMonitorPollInterval задаёт частоту опроса хранилищ.
func WithMonitorPollInterval(interval time.Duration) MonitorOption {
	return func(opts *MonitorOptions) {
		opts.PollInterval = interval
	}
}

// WithMonitorBatchSize задаёт предел записей на один опрос.
func WithMonitorBatchSize(batchSize int) MonitorOption {
	return func(opts *MonitorOptions) {
		opts.BatchSize = batchSize
	}
}

// Monitor периодически ищет записи, чьё уведомление не отправлено
// дольше допустимого предела, и подсвечивает их в метрике и логе.
// Монитор ничего не чинит: брошенные после рестарта доставки видны
// оператору, решение о повторной отправке остаётся за ним.
type Monitor struct {
	orders   OrderSource
	contacts ContactSource

	logger       *log.Entry
	pollInterval time.Duration
	batchSize    int
	now          func() time.Time

	// seen хранит записи, о которых предупреждение уже выдано.
	seen map[string]struct{}
}

// NewMonitor создаёт монитор просроченных уведомлений.
func NewMonitor(orders OrderSource, contacts ContactSource, options ...MonitorOption) *Monitor {
	opts := MonitorOptions{
		PollInterval: defaultMonitorPollInterval,
		BatchSize:    defaultMonitorBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "notify-monitor")
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultMonitorPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultMonitorBatchSize
	}

	return &Monitor{
		orders:       orders,
		contacts:     contacts,
		logger:       logger,
		pollInterval: opts.PollInterval,
		batchSize:    opts.BatchSize,
		now:          time.Now,
		seen:         make(map[string]struct{}),
	}
}

// Run запускает периодический опрос до отмены ctx.
func (m *Monitor) Run(ctx context.Context) {
	if m.orders == nil && m.contacts == nil {
		m.logger.Warn("overdue monitor is disabled: no sources configured")
		return
	}

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	m.ProcessOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ProcessOnce()
		}
	}
}

// ProcessOnce выполняет один цикл опроса и возвращает число просроченных записей.
func (m *Monitor) ProcessOnce() int {
	now := m.now().UTC()
	cutoff := now.Add(-domain.NotificationOverdueAfter)

	current := make(map[string]struct{})
	overdue := 0

	if m.orders != nil {
		orders, err := m.orders.ListUnnotified(cutoff, m.batchSize)
		if err != nil {
			m.logger.WithError(err).Warn("failed to list unnotified orders")
		}
		for _, order := range orders {
			if !domain.NotificationOverdue(order.Notification, order.CreatedAt, now) {
				continue
			}
			overdue++
			m.warnOnce(current, KindOrder, order.ID, order.OrderNumber, order.CreatedAt, now)
		}
	}

	if m.contacts != nil {
		contacts, err := m.contacts.ListUnnotified(cutoff, m.batchSize)
		if err != nil {
			m.logger.WithError(err).Warn("failed to list unnotified contacts")
		}
		for _, contact := range contacts {
			if !domain.NotificationOverdue(contact.Notification, contact.CreatedAt, now) {
				continue
			}
			overdue++
			m.warnOnce(current, KindContact, contact.ID, contact.Reference, contact.CreatedAt, now)
		}
	}

	// Отправленные и удалённые записи выпадают из карты и при
	// повторной просрочке будут подсвечены заново.
	m.seen = current
	notifyOverdue.Set(float64(overdue))

	return overdue
}

func (m *Monitor) warnOnce(current map[string]struct{}, kind, id, reference string, createdAt, now time.Time) {
	key := kind + ":" + id
	current[key] = struct{}{}

	if _, ok := m.seen[key]; ok {
		return
	}

	m.logger.WithFields(log.Fields{
		"kind":      kind,
		"owner_id":  id,
		"reference": reference,
		"age":       now.Sub(createdAt).String(),
	}).Warn("notification overdue")
}
