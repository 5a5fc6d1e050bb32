package memory

import (
	"sync"

	"github.com/aurabyshenoi/gallery/internal/domain"
)

// sequenceRepositoryInMemory выдаёт значения суточных счётчиков под мьютексом,
// поэтому конкурентные вызовы никогда не получают одинаковых значений.
type sequenceRepositoryInMemory struct {
	mu     sync.Mutex
	values map[string]int64
}

// NewSequenceRepository возвращает in-memory хранилище счётчиков.
func NewSequenceRepository() domain.SequenceRepository {
	return &sequenceRepositoryInMemory{
		values: make(map[string]int64),
	}
}

// Next атомарно увеличивает счётчик пары префикс-день и возвращает
// новое значение. Первое значение дня равно единице.
func (r *sequenceRepositoryInMemory) Next(prefix string, day string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := prefix + ":" + day
	r.values[key]++
	return r.values[key], nil
}

var _ domain.SequenceRepository = (*sequenceRepositoryInMemory)(nil)
