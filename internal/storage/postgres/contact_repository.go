package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aurabyshenoi/gallery/internal/domain"
)

const contactColumns = `
	id, reference, name, email, phone, address, query, status,
	notified, notified_at, notify_attempts, notify_last_error, created_at`

type contactRepository struct {
	db *sql.DB
}

// NewContactRepository возвращает репозиторий обращений поверх пула store.
func NewContactRepository(store *Store) domain.ContactRepository {
	return &contactRepository{db: store.DB()}
}

func (r *contactRepository) Create(contact domain.Contact) error {
	ctx, cancel := opCtx()
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contacts (
			id, reference, name, email, phone, address, query, status,
			notified, notified_at, notify_attempts, notify_last_error, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		contact.ID, contact.Reference, contact.Name, contact.Email,
		contact.Phone, contact.Address, contact.Query, string(contact.Status),
		contact.Notification.Sent, contact.Notification.SentAt,
		contact.Notification.Attempts, contact.Notification.LastError,
		contact.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrContactAlreadyExists
		}
		return fmt.Errorf("insert contact: %w", err)
	}

	return nil
}

func (r *contactRepository) Get(id string) (domain.Contact, error) {
	ctx, cancel := opCtx()
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE id = $1
	`, id)

	contact, err := scanContact(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Contact{}, domain.ErrContactNotFound
		}
		return domain.Contact{}, fmt.Errorf("select contact: %w", err)
	}

	return contact, nil
}

func (r *contactRepository) ListUnnotified(createdBefore time.Time, limit int) ([]domain.Contact, error) {
	ctx, cancel := opCtx()
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE NOT notified
		  AND created_at <= $1
		ORDER BY created_at ASC, id ASC
		LIMIT NULLIF($2, 0)
	`, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list unnotified contacts: %w", err)
	}
	defer rows.Close()

	contacts := make([]domain.Contact, 0)
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact row: %w", err)
		}
		contacts = append(contacts, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contact rows: %w", err)
	}

	return contacts, nil
}

func (r *contactRepository) UpdateNotification(id string, state domain.NotificationState) error {
	ctx, cancel := opCtx()
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE contacts
		SET notified = $2,
		    notified_at = $3,
		    notify_attempts = $4,
		    notify_last_error = $5
		WHERE id = $1
	`, id, state.Sent, state.SentAt, state.Attempts, state.LastError)
	if err != nil {
		return fmt.Errorf("update contact notification: %w", err)
	}
	return requireAffected(res, domain.ErrContactNotFound)
}

func scanContact(row rowScanner) (domain.Contact, error) {
	var (
		contact    domain.Contact
		status     string
		notifiedAt sql.NullTime
	)

	err := row.Scan(
		&contact.ID, &contact.Reference, &contact.Name, &contact.Email,
		&contact.Phone, &contact.Address, &contact.Query, &status,
		&contact.Notification.Sent, &notifiedAt,
		&contact.Notification.Attempts, &contact.Notification.LastError,
		&contact.CreatedAt,
	)
	if err != nil {
		return domain.Contact{}, err
	}

	contact.Status = domain.ContactStatus(status)
	if notifiedAt.Valid {
		t := notifiedAt.Time
		contact.Notification.SentAt = &t
	}

	return contact, nil
}

var _ domain.ContactRepository = (*contactRepository)(nil)
