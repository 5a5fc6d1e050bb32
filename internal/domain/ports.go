package domain

import "context"

// PaymentGateway описывает платёжный шлюз, создающий платёжные намерения.
// Транспортные ошибки шлюза отличаются от отказа в оплате: при отказе
// возвращается намерение с соответствующим статусом, а ошибка остаётся nil.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (PaymentIntent, error)
}

// MailMessage описывает письмо для отправки через релей.
type MailMessage struct {
	To      string
	Subject string
	Body    string
}

// MailRelay отправляет транзакционные письма через внешний сервис.
type MailRelay interface {
	Send(ctx context.Context, msg MailMessage) error
}

// EventPublisher публикует доменные события во внешнюю шину.
// Отсутствие настроенной шины выражается no-op реализацией, а не nil-значением,
// поэтому вызывающий код публикует события без дополнительных проверок.
type EventPublisher interface {
	Publish(eventType string, key string, payload any) error
	Close() error
}

// Cache описывает внедряемый кэш с ограниченным временем жизни записей.
// Реализация выбирается конфигурацией: процессная TTL-карта либо общий
// Redis, без изменений в вызывающем коде.
type Cache interface {
	// Get возвращает значение по ключу; при промахе возвращает ok=false.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
	// Incr увеличивает счётчик окна и возвращает новое значение.
	// Первое увеличение задаёт время жизни окна.
	Incr(ctx context.Context, key string, ttlSeconds int) (int64, error)
}
