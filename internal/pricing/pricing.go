// Package pricing рассчитывает стоимость заказа галереи: сумму позиций,
// доставку по направлению и итог. Количество каждой работы всегда равно
// единице, поэтому subtotal равен сумме цен.
package pricing

import (
	"strings"

	"github.com/aurabyshenoi/gallery/internal/domain"
)

// Действующая политика доставки.
const (
	DefaultFreeShippingThreshold = 500
	DefaultDomesticRate          = 15
	DefaultInternationalRate     = 35
)

// Config задаёт политику расчёта доставки в целых денежных единицах.
type Config struct {
	// FreeShippingThreshold задаёт порог subtotal, начиная с которого
	// доставка бесплатна.
	FreeShippingThreshold int64
	// DomesticRate действует для направлений из DomesticCountries.
	DomesticRate int64
	// InternationalRate действует для остальных направлений.
	InternationalRate int64
	// DomesticCountries перечисляет внутренние направления в
	// нормализованном виде (нижний регистр, без краевых пробелов).
	DomesticCountries []string
}

// DefaultConfig возвращает политику по умолчанию.
func DefaultConfig() Config {
	return Config{
		FreeShippingThreshold: DefaultFreeShippingThreshold,
		DomesticRate:          DefaultDomesticRate,
		InternationalRate:     DefaultInternationalRate,
		DomesticCountries:     []string{"united states", "us"},
	}
}

// Calculator считает стоимость заказа. Вычисления чистые: калькулятор
// не обращается к хранилищу и не накапливает состояния между вызовами.
type Calculator struct {
	cfg Config
}

// NewCalculator создаёт калькулятор с заданной политикой.
// Незаполненные поля берутся из политики по умолчанию.
func NewCalculator(cfg Config) *Calculator {
	def := DefaultConfig()
	if cfg.FreeShippingThreshold <= 0 {
		cfg.FreeShippingThreshold = def.FreeShippingThreshold
	}
	if cfg.DomesticRate <= 0 {
		cfg.DomesticRate = def.DomesticRate
	}
	if cfg.InternationalRate <= 0 {
		cfg.InternationalRate = def.InternationalRate
	}
	if len(cfg.DomesticCountries) == 0 {
		cfg.DomesticCountries = def.DomesticCountries
	}
	return &Calculator{cfg: cfg}
}

// Quote возвращает стоимость набора работ с доставкой в указанную страну.
func (c *Calculator) Quote(items []domain.Item, country string) domain.Pricing {
	var subtotal int64
	for _, item := range items {
		subtotal += item.Price
	}

	shipping := c.shippingCost(subtotal, country)
	return domain.Pricing{
		Subtotal:     subtotal,
		ShippingCost: shipping,
		Total:        subtotal + shipping,
	}
}

func (c *Calculator) shippingCost(subtotal int64, country string) int64 {
	if subtotal >= c.cfg.FreeShippingThreshold {
		return 0
	}
	if c.domestic(country) {
		return c.cfg.DomesticRate
	}
	return c.cfg.InternationalRate
}

func (c *Calculator) domestic(country string) bool {
	norm := NormalizeCountry(country)
	for _, dc := range c.cfg.DomesticCountries {
		if norm == dc {
			return true
		}
	}
	return false
}

// NormalizeCountry приводит название страны к виду для сравнения направлений:
// нижний регистр без краевых пробелов.
func NormalizeCountry(country string) string {
	return strings.ToLower(strings.TrimSpace(country))
}
