package domain

// PaymentStatus описывает состояние оплаты сохранённого заказа.
type PaymentStatus string

const (
	// PaymentStatusPending означает, что оплата ещё не подтверждена.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusCompleted означает, что средства списаны шлюзом.
	PaymentStatusCompleted PaymentStatus = "completed"
	// PaymentStatusFailed означает, что оплата не состоялась.
	PaymentStatusFailed PaymentStatus = "failed"
)

// Payment хранит состояние оплаты и ссылку на платёжное намерение шлюза.
// IntentID предназначен для сверки и никогда не отдаётся в публичных ответах.
type Payment struct {
	Status   PaymentStatus
	IntentID string
}

// IntentStatus описывает статус платёжного намерения на стороне шлюза.
type IntentStatus string

const (
	// IntentStatusSucceeded означает, что списание завершено.
	IntentStatusSucceeded IntentStatus = "succeeded"
	// IntentStatusRequiresAction означает, что покупатель должен подтвердить
	// платёж дополнительным действием (например, 3-D Secure).
	IntentStatusRequiresAction IntentStatus = "requires_action"
	// IntentStatusProcessing означает, что шлюз ещё обрабатывает списание.
	IntentStatusProcessing IntentStatus = "processing"
	// IntentStatusRequiresPaymentMethod означает, что способ оплаты отклонён.
	IntentStatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	// IntentStatusCanceled означает, что намерение отменено.
	IntentStatusCanceled IntentStatus = "canceled"
)

// CreateIntentRequest описывает запрос на создание платёжного намерения.
type CreateIntentRequest struct {
	// Amount задаёт сумму списания в целых денежных единицах.
	Amount   int64
	Currency string
	// MethodRef содержит ссылку на способ оплаты, полученную клиентом от шлюза.
	MethodRef string
	// Metadata прикладывается к намерению для последующего аудита:
	// номер заказа, почта покупателя и идентификаторы работ.
	Metadata map[string]string
}

// PaymentIntent описывает ответ платёжного шлюза.
type PaymentIntent struct {
	ID     string
	Status IntentStatus
	// ClientSecret возвращается покупателю как continuation token,
	// когда намерение требует дополнительного действия.
	ClientSecret string
	// DeclineReason заполняется шлюзом при отказе.
	DeclineReason string
}
