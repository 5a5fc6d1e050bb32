package domain

import "time"

// IdempotencyStatus описывает жизненный цикл ключа идемпотентности,
// защищающего оформление заказа от повторной отправки формы оплаты.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing — запрос принят, обработка ещё идёт.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone — обработка закончена, ответ сохранён для повторов.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed — обработка закончилась ошибкой.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// Terminal сообщает, что обработка с этим статусом уже не продолжится.
func (s IdempotencyStatus) Terminal() bool {
	return s == IdempotencyStatusDone || s == IdempotencyStatusFailed
}

// Valid проверяет, что значение статуса известно хранилищу.
func (s IdempotencyStatus) Valid() bool {
	return s == IdempotencyStatusProcessing || s.Terminal()
}

// IdempotencyRecord хранит состояние обработки запроса с idempotency-key.
// Повторный запрос с тем же ключом и телом получает сохранённый ответ
// вместо повторного списания средств.
type IdempotencyRecord struct {
	Key         string
	RequestHash string
	Status      IdempotencyStatus

	// Ответ, зафиксированный терминальным статусом.
	ResponseBody []byte
	HTTPStatus   int

	TTLAt     time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Terminal сообщает, можно ли отдавать сохранённый ответ повторному запросу.
func (r *IdempotencyRecord) Terminal() bool { return r.Status.Terminal() }
