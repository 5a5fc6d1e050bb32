package postgres

import (
	"database/sql"
	"fmt"

	"github.com/aurabyshenoi/gallery/internal/domain"
)

type sequenceRepository struct {
	db *sql.DB
}

// NewSequenceRepository возвращает постоянные счётчики для номеров заказов.
func NewSequenceRepository(store *Store) domain.SequenceRepository {
	return &sequenceRepository{db: store.DB()}
}

// Next выдаёт следующее значение суточного счётчика одним атомарным UPSERT.
// Первое значение дня равно единице; конкурентные вызовы сериализуются
// на уровне строки и никогда не получают одинаковых значений.
func (r *sequenceRepository) Next(prefix string, day string) (int64, error) {
	ctx, cancel := opCtx()
	defer cancel()

	var value int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO sequence_counters (prefix, day, value)
		VALUES ($1, $2, 1)
		ON CONFLICT (prefix, day) DO UPDATE
		SET value = sequence_counters.value + 1
		RETURNING value
	`, prefix, day).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("next sequence value: %w", err)
	}

	return value, nil
}

var _ domain.SequenceRepository = (*sequenceRepository)(nil)
