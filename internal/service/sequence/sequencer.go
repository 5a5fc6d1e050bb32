// Package sequence выдаёт публичные номера заказов и обращений.
package sequence

import (
	"fmt"
	"time"

	"github.com/aurabyshenoi/gallery/internal/domain"
)

// Префиксы суточных счётчиков.
const (
	PrefixOrder   = "ORD"
	PrefixContact = "CNT"
)

// Sequencer формирует номера вида {PREFIX}-{YYYYMMDD}-{NNNN}.
// Нумерация ведётся в пределах календарных суток UTC и начинается с 0001.
// Атомарность выдачи обеспечивает хранилище счётчиков, поэтому два
// конкурентных запроса не получают одинаковых номеров.
type Sequencer struct {
	repo domain.SequenceRepository
	now  func() time.Time
}

// NewSequencer создаёт генератор номеров поверх хранилища счётчиков.
func NewSequencer(repo domain.SequenceRepository) *Sequencer {
	return &Sequencer{repo: repo, now: time.Now}
}

// Next возвращает следующий номер для префикса.
func (s *Sequencer) Next(prefix string) (string, error) {
	day := s.now().UTC().Format("20060102")

	n, err := s.repo.Next(prefix, day)
	if err != nil {
		return "", fmt.Errorf("sequence next for %s: %w", prefix, err)
	}

	return Format(prefix, day, n), nil
}

// Format собирает публичный номер. Нумерация дополняется нулями до четырёх
// знаков; значения свыше 9999 расширяют числовую часть без переполнения.
func Format(prefix, day string, n int64) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, day, n)
}
