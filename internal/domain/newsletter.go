package domain

import "time"

// NewsletterSubscriber описывает подписчика на рассылку галереи.
// Адрес хранится в нижнем регистре и уникален среди активных подписок.
type NewsletterSubscriber struct {
	ID           string
	Email        string
	Active       bool
	SubscribedAt time.Time
}
