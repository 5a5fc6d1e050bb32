package domain

import "time"

// NotificationOverdueAfter задаёт предельный возраст записи без отправленного
// уведомления. Этот же предел ограничивает отложенную отправку планировщика.
const NotificationOverdueAfter = 2 * time.Minute

// NotificationState хранит метаданные доставки уведомления на владеющей записи.
// Состояние переживает перезапуск процесса вместе с самой записью, поэтому
// брошенные попытки можно обнаружить после рестарта.
type NotificationState struct {
	Sent   bool
	SentAt *time.Time
	// Attempts содержит число выполненных попыток доставки.
	Attempts int
	// LastError хранит текст последней ошибки доставки.
	LastError string
}

// NotificationOverdue сообщает, просрочено ли уведомление записи:
// оно не отправлено и с момента создания прошло больше двух минут.
// Ровно две минуты просрочкой не считаются.
func NotificationOverdue(state NotificationState, createdAt, now time.Time) bool {
	if state.Sent {
		return false
	}
	return now.Sub(createdAt) > NotificationOverdueAfter
}
