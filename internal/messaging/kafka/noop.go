package kafka

import "github.com/aurabyshenoi/gallery/internal/domain"

// NopPublisher реализует EventPublisher без внешней шины.
// Внедряется, когда брокеры не сконфигурированы, чтобы вызывающий код
// публиковал события без проверок на nil.
type NopPublisher struct{}

var _ domain.EventPublisher = NopPublisher{}

// Publish ничего не делает.
func (NopPublisher) Publish(string, string, any) error { return nil }

// Close ничего не делает.
func (NopPublisher) Close() error { return nil }
