package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/aurabyshenoi/gallery/internal/domain"
)

type newsletterRepository struct {
	db *sql.DB
}

// NewNewsletterRepository возвращает репозиторий подписок на рассылку.
func NewNewsletterRepository(store *Store) domain.NewsletterRepository {
	return &newsletterRepository{db: store.DB()}
}

// Subscribe сохраняет подписчика одним условным UPSERT. Повторная активная
// подписка возвращает ErrAlreadySubscribed; ранее отписанный адрес
// активируется заново с сохранением исходного идентификатора.
func (r *newsletterRepository) Subscribe(sub domain.NewsletterSubscriber) error {
	ctx, cancel := opCtx()
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO newsletter_subscribers (id, email, active, subscribed_at)
		VALUES ($1, lower($2), TRUE, $3)
		ON CONFLICT (email) DO UPDATE
		SET active = TRUE,
		    subscribed_at = EXCLUDED.subscribed_at
		WHERE newsletter_subscribers.active = FALSE
	`,
		sub.ID, sub.Email, sub.SubscribedAt,
	)
	if err != nil {
		return fmt.Errorf("subscribe newsletter: %w", err)
	}
	return requireAffected(res, domain.ErrAlreadySubscribed)
}

func (r *newsletterRepository) GetByEmail(email string) (domain.NewsletterSubscriber, error) {
	ctx, cancel := opCtx()
	defer cancel()

	var sub domain.NewsletterSubscriber
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, active, subscribed_at
		FROM newsletter_subscribers
		WHERE email = lower($1)
	`, email).Scan(&sub.ID, &sub.Email, &sub.Active, &sub.SubscribedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NewsletterSubscriber{}, domain.ErrSubscriberNotFound
		}
		return domain.NewsletterSubscriber{}, fmt.Errorf("select subscriber: %w", err)
	}

	return sub, nil
}

var _ domain.NewsletterRepository = (*newsletterRepository)(nil)
