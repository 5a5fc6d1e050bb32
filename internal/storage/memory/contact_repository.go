package memory

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aurabyshenoi/gallery/internal/domain"
)

// contactRepositoryInMemory — простая in-memory реализация ContactRepository.
type contactRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Contact
}

// NewContactRepository возвращает in-memory репозиторий обращений.
func NewContactRepository() domain.ContactRepository {
	return &contactRepositoryInMemory{
		items: make(map[string]domain.Contact),
	}
}

// Create сохраняет новое обращение, если ID ещё не занят.
func (r *contactRepositoryInMemory) Create(contact domain.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[contact.ID]; exists {
		return domain.ErrContactAlreadyExists
	}
	r.items[contact.ID] = contact
	return nil
}

// Get возвращает обращение или ErrContactNotFound, если его нет.
func (r *contactRepositoryInMemory) Get(id string) (domain.Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	contact, ok := r.items[id]
	if !ok {
		return domain.Contact{}, domain.ErrContactNotFound
	}
	return contact, nil
}

// ListUnnotified возвращает обращения без отправленного уведомления,
// созданные не позже указанного момента, от старых к новым.
func (r *contactRepositoryInMemory) ListUnnotified(createdBefore time.Time, limit int) ([]domain.Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Contact, 0)
	for _, contact := range r.items {
		if contact.Notification.Sent {
			continue
		}
		if contact.CreatedAt.After(createdBefore) {
			continue
		}
		result = append(result, contact)
	}

	slices.SortFunc(result, func(a, b domain.Contact) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// UpdateNotification сохраняет состояние доставки уведомления обращения.
func (r *contactRepositoryInMemory) UpdateNotification(id string, state domain.NotificationState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	contact, ok := r.items[id]
	if !ok {
		return domain.ErrContactNotFound
	}
	contact.Notification = state
	r.items[id] = contact
	return nil
}

var _ domain.ContactRepository = (*contactRepositoryInMemory)(nil)
