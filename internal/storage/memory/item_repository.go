package memory

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aurabyshenoi/gallery/internal/domain"
)

// itemRepositoryInMemory — простая in-memory реализация ItemRepository.
type itemRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Item
}

// NewItemRepository возвращает in-memory каталог для локальной разработки и тестов.
func NewItemRepository() domain.ItemRepository {
	return &itemRepositoryInMemory{
		items: make(map[string]domain.Item),
	}
}

// Create сохраняет новую работу, если ID ещё не занят.
func (r *itemRepositoryInMemory) Create(item domain.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[item.ID]; exists {
		return domain.ErrItemAlreadyExists
	}
	r.items[item.ID] = item
	return nil
}

// Get возвращает работу или ErrItemNotFound, если её нет.
func (r *itemRepositoryInMemory) Get(id string) (domain.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return domain.Item{}, domain.ErrItemNotFound
	}
	return item, nil
}

// GetMany возвращает найденные работы в порядке запрошенных идентификаторов.
// Отсутствующие идентификаторы просто не попадают в результат.
func (r *itemRepositoryInMemory) GetMany(ids []string) ([]domain.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Item, 0, len(ids))
	for _, id := range ids {
		if item, ok := r.items[id]; ok {
			result = append(result, item)
		}
	}
	return result, nil
}

// List возвращает каталог по фильтру в порядке убывания даты создания.
func (r *itemRepositoryInMemory) List(filter domain.ItemFilter) ([]domain.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Item, 0, len(r.items))
	for _, item := range r.items {
		if filter.FeaturedOnly && !item.Featured {
			continue
		}
		if filter.AvailableOnly && !item.Available {
			continue
		}
		result = append(result, item)
	}

	slices.SortFunc(result, func(a, b domain.Item) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}

	return result, nil
}

// MarkUnavailable помечает работы проданными одним условным обновлением.
// Затрагиваются только записи, доступные на момент записи; возвращаются их
// идентификаторы. Расхождение со списком разбирает вызывающий код
// компенсацией, как и при частично применённом условном UPDATE.
func (r *itemRepositoryInMemory) MarkUnavailable(ids []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	reserved := make([]string, 0, len(ids))
	for _, id := range ids {
		item, ok := r.items[id]
		if !ok || !item.Available {
			continue
		}
		item.Available = false
		item.Version++
		item.UpdatedAt = now
		r.items[id] = item
		reserved = append(reserved, id)
	}
	return reserved, nil
}

// MarkAvailable возвращает работы в продажу (компенсация неудавшейся оплаты).
func (r *itemRepositoryInMemory) MarkAvailable(ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	for _, id := range ids {
		item, ok := r.items[id]
		if !ok || item.Available {
			continue
		}
		item.Available = true
		item.Version++
		item.UpdatedAt = now
		r.items[id] = item
	}
	return nil
}

var _ domain.ItemRepository = (*itemRepositoryInMemory)(nil)
