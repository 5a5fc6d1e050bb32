package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Ошибка отсутствующего названия работы.
	ErrItemTitleRequired = errors.New("item title is required")
	// Ошибка отрицательной цены работы или позиции заказа.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка отсутствующего публичного номера заказа.
	ErrOrderNumberRequired = errors.New("order number is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отсутствующего имени покупателя.
	ErrCustomerNameRequired = errors.New("customer name is required")
	// Ошибка отсутствующего адреса почты покупателя.
	ErrCustomerEmailRequired = errors.New("customer email is required")
	// Ошибка адреса почты, не прошедшего проверку формата.
	ErrEmailInvalid = errors.New("email address is not valid")
	// Ошибка отсутствующей страны доставки.
	ErrCountryRequired = errors.New("shipping country is required")
	// Ошибка позиции заказа без ссылки на каталожную запись.
	ErrItemRefRequired = errors.New("order item must reference a catalog item")
	// Ошибка расхождения subtotal с суммой позиций.
	ErrSubtotalMismatch = errors.New("order subtotal does not match items sum")
	// Ошибка расхождения итога с суммой subtotal и доставки.
	ErrTotalMismatch = errors.New("order total does not match subtotal plus shipping")
	// Ошибка отрицательной суммы в расчёте стоимости.
	ErrAmountNegative = errors.New("amount must be non-negative")
	// Ошибка отсутствующего имени в обращении.
	ErrContactNameRequired = errors.New("contact name is required")
	// Ошибка превышения предельной длины имени.
	ErrContactNameTooLong = errors.New("contact name exceeds 100 characters")
	// Ошибка превышения предельной длины телефона.
	ErrContactPhoneTooLong = errors.New("contact phone exceeds 20 characters")
	// Ошибка превышения предельной длины адреса.
	ErrContactAddressTooLong = errors.New("contact address exceeds 500 characters")
	// Ошибка отсутствующего текста обращения.
	ErrContactQueryRequired = errors.New("contact query is required")
	// Ошибка превышения предельной длины текста обращения.
	ErrContactQueryTooLong = errors.New("contact query exceeds 2000 characters")

	// ErrInvalidObjectID возвращается при идентификаторе, не являющемся
	// 24-символьной шестнадцатеричной строкой.
	ErrInvalidObjectID = errors.New("invalid object id format")
	// ErrItemNotFound возвращается, если работа не найдена в каталоге.
	ErrItemNotFound = errors.New("item not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrContactNotFound возвращается, если обращение не найдено.
	ErrContactNotFound = errors.New("contact not found")
	// ErrItemAlreadyExists сигнализирует о повторном создании записи каталога.
	ErrItemAlreadyExists = errors.New("item already exists")
	// ErrOrderAlreadyExists сигнализирует о повторном создании заказа.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrContactAlreadyExists сигнализирует о повторном создании обращения.
	ErrContactAlreadyExists = errors.New("contact already exists")
	// ErrAlreadySubscribed возвращается при повторной подписке того же адреса.
	ErrAlreadySubscribed = errors.New("email already subscribed")
	// ErrSubscriberNotFound возвращается, если подписчик не найден.
	ErrSubscriberNotFound = errors.New("subscriber not found")
	// ErrTooManyRequests возвращается при превышении окна частоты обращений.
	ErrTooManyRequests = errors.New("too many requests")

	// ErrPaymentDeclined означает, что шлюз отклонил оплату (бизнес-ошибка).
	ErrPaymentDeclined = errors.New("payment declined")
	// ErrPaymentGatewayUnavailable означает транспортную ошибку при обращении
	// к шлюзу; исход платежа неизвестен и запрос можно повторить.
	ErrPaymentGatewayUnavailable = errors.New("payment gateway unavailable")
	// Ошибка запроса оплаты без ссылки на способ оплаты.
	ErrPaymentMethodRequired = errors.New("payment method reference is required")

	// ErrSchedulerClosed возвращается при постановке задачи в остановленный планировщик.
	ErrSchedulerClosed = errors.New("notification scheduler is closed")
	// ErrRelayUnavailable означает, что цепь доставки писем разомкнута
	// после серии отказов релея.
	ErrRelayUnavailable = errors.New("mail relay unavailable")

	// Ошибка отсутствующего idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// Ошибка отсутствующего хэша запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyNotFound возвращается, если запись по ключу не найдена.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyKeyAlreadyExists сигнализирует о повторном запросе с тем же ключом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch сигнализирует о другом теле запроса под тем же ключом.
	ErrIdempotencyHashMismatch = errors.New("idempotency request hash mismatch")
	// ErrIdempotencyInFlight сигнализирует, что первый запрос с этим ключом ещё обрабатывается.
	ErrIdempotencyInFlight = errors.New("idempotency key is still being processed")
)

// InventoryConflictError перечисляет работы, недоступные для покупки:
// отсутствующие в каталоге либо уже проданные.
type InventoryConflictError struct {
	ItemIDs []string
}

func (e *InventoryConflictError) Error() string {
	return fmt.Sprintf("items unavailable: %s", strings.Join(e.ItemIDs, ", "))
}

// AsInventoryConflict извлекает конфликт доступности из цепочки ошибок.
func AsInventoryConflict(err error) (*InventoryConflictError, bool) {
	var conflict *InventoryConflictError
	if errors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}

// DeclineError уточняет отказ шлюза причиной, пригодной для ответа покупателю.
type DeclineError struct {
	Reason string
}

func (e *DeclineError) Error() string {
	if e.Reason == "" {
		return ErrPaymentDeclined.Error()
	}
	return fmt.Sprintf("%v: %s", ErrPaymentDeclined, e.Reason)
}

func (e *DeclineError) Unwrap() error { return ErrPaymentDeclined }

// AsDecline извлекает отказ в оплате из цепочки ошибок.
func AsDecline(err error) (*DeclineError, bool) {
	var decline *DeclineError
	if errors.As(err, &decline) {
		return decline, true
	}
	return nil, false
}

// ValidationError собирает нарушения инвариантов входного запроса.
type ValidationError struct {
	Errs []error
}

func (e *ValidationError) Error() string {
	return "invalid request: " + strings.Join(e.Messages(), "; ")
}

// Messages возвращает тексты замечаний для ответа клиенту.
func (e *ValidationError) Messages() []string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return msgs
}

// AsValidation извлекает ошибку валидации из цепочки ошибок.
func AsValidation(err error) (*ValidationError, bool) {
	var invalid *ValidationError
	if errors.As(err, &invalid) {
		return invalid, true
	}
	return nil, false
}

// ReconciliationError сигнализирует о списании средств без сохранённого заказа.
// Такие случаи разбираются вручную по номеру заказа и намерению шлюза.
type ReconciliationError struct {
	OrderNumber string
	IntentID    string
	Err         error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("payment captured but order %s not persisted (intent %s): %v", e.OrderNumber, e.IntentID, e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}

// AsReconciliation извлекает ошибку сверки из цепочки ошибок.
func AsReconciliation(err error) (*ReconciliationError, bool) {
	var rec *ReconciliationError
	if errors.As(err, &rec) {
		return rec, true
	}
	return nil, false
}

// IsNotFound проверяет, относится ли ошибка к отсутствующей записи.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrContactNotFound) ||
		errors.Is(err, ErrSubscriberNotFound)
}
