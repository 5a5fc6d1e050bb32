package memory

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aurabyshenoi/gallery/internal/domain"
)

// orderRepositoryInMemory хранит заказы в двух индексах: по внутреннему ID
// и по публичному номеру из письма покупателю.
type orderRepositoryInMemory struct {
	mu       sync.RWMutex
	items    map[string]domain.Order
	byNumber map[string]string
}

// NewOrderRepository собирает пустое in-memory хранилище заказов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items:    make(map[string]domain.Order),
		byNumber: make(map[string]string),
	}
}

// Create сохраняет заказ, отклоняя повтор как по ID, так и по номеру.
func (r *orderRepositoryInMemory) Create(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, dupID := r.items[order.ID]
	_, dupNumber := r.byNumber[order.OrderNumber]
	if dupID || dupNumber {
		return domain.ErrOrderAlreadyExists
	}

	r.items[order.ID] = snapshotOrder(order)
	r.byNumber[order.OrderNumber] = order.ID
	return nil
}

// Get ищет заказ по внутреннему идентификатору.
func (r *orderRepositoryInMemory) Get(id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if order, ok := r.items[id]; ok {
		return snapshotOrder(order), nil
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

// GetByNumber ищет заказ по публичному номеру.
func (r *orderRepositoryInMemory) GetByNumber(number string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id, ok := r.byNumber[number]; ok {
		return snapshotOrder(r.items[id]), nil
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

// ListUnnotified собирает очередь догоняющих уведомлений: заказы без письма,
// созданные не позже createdBefore, от старых к новым. Нулевой или
// отрицательный limit отдаёт очередь целиком.
func (r *orderRepositoryInMemory) ListUnnotified(createdBefore time.Time, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	queue := make([]domain.Order, 0)
	for _, order := range r.items {
		if order.Notification.Sent || order.CreatedAt.After(createdBefore) {
			continue
		}
		queue = append(queue, snapshotOrder(order))
	}

	slices.SortFunc(queue, func(a, b domain.Order) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	if limit > 0 {
		queue = queue[:min(limit, len(queue))]
	}
	return queue, nil
}

// UpdateNotification перезаписывает состояние доставки письма заказа.
func (r *orderRepositoryInMemory) UpdateNotification(id string, state domain.NotificationState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	order.Notification = state
	order.UpdatedAt = time.Now().UTC()
	r.items[id] = order
	return nil
}

// snapshotOrder копирует заказ вместе со срезом позиций, чтобы чужие
// мутации не задели хранимую запись.
func snapshotOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = slices.Clone(src.Items)
	return dst
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
