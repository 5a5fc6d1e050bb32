package memory

import (
	"strings"
	"sync"
	"time"

	"github.com/aurabyshenoi/gallery/internal/domain"
)

// newsletterRepositoryInMemory — простая in-memory реализация NewsletterRepository.
// Подписки ключуются адресом в нижнем регистре.
type newsletterRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.NewsletterSubscriber
}

// NewNewsletterRepository возвращает in-memory репозиторий подписок.
func NewNewsletterRepository() domain.NewsletterRepository {
	return &newsletterRepositoryInMemory{
		items: make(map[string]domain.NewsletterSubscriber),
	}
}

// Subscribe сохраняет подписчика. Повторная активная подписка возвращает
// ErrAlreadySubscribed; ранее отписанный адрес активируется заново.
func (r *newsletterRepositoryInMemory) Subscribe(sub domain.NewsletterSubscriber) error {
	email := strings.ToLower(sub.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.items[email]; ok {
		if existing.Active {
			return domain.ErrAlreadySubscribed
		}
		existing.Active = true
		existing.SubscribedAt = time.Now().UTC()
		r.items[email] = existing
		return nil
	}

	sub.Email = email
	r.items[email] = sub
	return nil
}

// GetByEmail возвращает подписчика или ErrSubscriberNotFound, если его нет.
func (r *newsletterRepositoryInMemory) GetByEmail(email string) (domain.NewsletterSubscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.items[strings.ToLower(email)]
	if !ok {
		return domain.NewsletterSubscriber{}, domain.ErrSubscriberNotFound
	}
	return sub, nil
}

var _ domain.NewsletterRepository = (*newsletterRepositoryInMemory)(nil)
