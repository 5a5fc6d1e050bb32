// Package kafka публикует доменные события галереи во внешнюю шину.
package kafka

import (
	"time"

	"github.com/google/uuid"
)

// Типы публикуемых событий.
const (
	EventOrderPlaced           = "order.placed"
	EventOrderPaymentDeclined  = "order.payment_declined"
	EventReconciliationFailed  = "reconciliation.failed"
	EventContactReceived       = "contact.received"
	EventNotificationExhausted = "notification.exhausted"
)

// Топики событий.
const (
	TopicOrderEvents   = "gallery.order.events"
	TopicContactEvents = "gallery.contact.events"
)

// TopicFor возвращает топик для типа события.
// События обращений идут в свой топик, всё остальное относится к заказам.
func TopicFor(eventType string) string {
	if eventType == EventContactReceived {
		return TopicContactEvents
	}
	return TopicOrderEvents
}

// OrderEvent описывает событие жизненного цикла заказа.
type OrderEvent struct {
	EventID     string            `json:"event_id"`
	EventType   string            `json:"event_type"`
	OrderNumber string            `json:"order_number"`
	Status      string            `json:"status,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewOrderEvent создаёт событие заказа. EventID позволяет потребителям
// отбрасывать дубликаты при повторной доставке.
func NewOrderEvent(eventType, orderNumber, status string, metadata map[string]string) *OrderEvent {
	return &OrderEvent{
		EventID:     uuid.NewString(),
		EventType:   eventType,
		OrderNumber: orderNumber,
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Metadata:    metadata,
	}
}

// ReconciliationEvent сигнализирует о списании средств без сохранённого заказа.
type ReconciliationEvent struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	OrderNumber string    `json:"order_number"`
	IntentID    string    `json:"intent_id"`
	Reason      string    `json:"reason"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewReconciliationEvent создаёт событие расхождения оплаты и заказа.
func NewReconciliationEvent(orderNumber, intentID, reason string) *ReconciliationEvent {
	return &ReconciliationEvent{
		EventID:     uuid.NewString(),
		EventType:   EventReconciliationFailed,
		OrderNumber: orderNumber,
		IntentID:    intentID,
		Reason:      reason,
		Timestamp:   time.Now().UTC(),
	}
}

// ContactEvent описывает событие обращения покупателя.
type ContactEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Reference string    `json:"reference"`
	Email     string    `json:"email,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewContactEvent создаёт событие обращения.
func NewContactEvent(eventType, reference, email string) *ContactEvent {
	return &ContactEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Reference: reference,
		Email:     email,
		Timestamp: time.Now().UTC(),
	}
}

// NotificationEvent описывает исчерпание попыток доставки уведомления.
type NotificationEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Kind      string    `json:"kind"`
	OwnerID   string    `json:"owner_id"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error"`
	Timestamp time.Time `json:"timestamp"`
}

// NewNotificationEvent создаёт событие неудавшейся доставки.
func NewNotificationEvent(kind, ownerID string, attempts int, lastError string) *NotificationEvent {
	return &NotificationEvent{
		EventID:   uuid.NewString(),
		EventType: EventNotificationExhausted,
		Kind:      kind,
		OwnerID:   ownerID,
		Attempts:  attempts,
		LastError: lastError,
		Timestamp: time.Now().UTC(),
	}
}
