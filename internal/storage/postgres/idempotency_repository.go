package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aurabyshenoi/gallery/internal/domain"
)

const idempotencyDefaultTTL = 24 * time.Hour

// idempotencyRepository хранит записи идемпотентности в idempotency_keys.
// Гонку за один ключ выигрывает ровно один INSERT, проигравшие получают
// запись победителя.
type idempotencyRepository struct {
	db *sql.DB
}

// NewIdempotencyRepository возвращает хранилище ключей идемпотентности в PostgreSQL.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &idempotencyRepository{db: store.DB()}
}

// cleanKey нормализует ключ идемпотентности и отбрасывает пустые значения.
func cleanKey(raw string) (string, error) {
	key := strings.TrimSpace(raw)
	if key == "" {
		return "", domain.ErrIdempotencyKeyRequired
	}
	return key, nil
}

func (r *idempotencyRepository) CreateProcessing(key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key, err := cleanKey(key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	if requestHash = strings.TrimSpace(requestHash); requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := time.Now().UTC()
	if ttlAt.IsZero() {
		ttlAt = now.Add(idempotencyDefaultTTL)
	}

	rec := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	ctx, cancel := opCtx()
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (key, request_hash, status, ttl_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key) DO NOTHING
	`, rec.Key, rec.RequestHash, string(rec.Status), rec.TTLAt, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("insert idempotency key: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("idempotency rows affected: %w", err)
	}
	if inserted > 0 {
		return rec, nil
	}

	// Ключ уже занят другим запросом, отдаём его запись.
	existing, err := r.Get(key)
	if err != nil {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
	}
	if existing.RequestHash != requestHash {
		return existing, domain.ErrIdempotencyHashMismatch
	}
	return existing, domain.ErrIdempotencyKeyAlreadyExists
}

func (r *idempotencyRepository) Get(key string) (domain.IdempotencyRecord, error) {
	key, err := cleanKey(key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	ctx, cancel := opCtx()
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT key, request_hash, status, response_body, http_status, ttl_at, created_at, updated_at
		FROM idempotency_keys
		WHERE key = $1
	`, key)
	return scanIdempotencyRecord(row)
}

func (r *idempotencyRepository) MarkDone(key string, responseBody []byte, httpStatus int) error {
	return r.finish(key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *idempotencyRepository) MarkFailed(key string, responseBody []byte, httpStatus int) error {
	return r.finish(key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

func (r *idempotencyRepository) Delete(key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}

	ctx, cancel := opCtx()
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, key); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

func (r *idempotencyRepository) DeleteExpired(before time.Time, limit int) (int, error) {
	ctx, cancel := opCtx()
	defer cancel()

	cutoff := before
	if cutoff.IsZero() {
		cutoff = time.Now().UTC()
	}

	query := `DELETE FROM idempotency_keys WHERE ttl_at <= $1`
	args := []any{cutoff}
	if limit > 0 {
		// Порционное удаление, чтобы уборка не держала долгую блокировку.
		query = `
			DELETE FROM idempotency_keys
			WHERE key IN (
				SELECT key FROM idempotency_keys
				WHERE ttl_at <= $1
				ORDER BY ttl_at
				LIMIT $2
			)`
		args = append(args, limit)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("purge expired idempotency keys: %w", err)
	}
	purged, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("idempotency rows affected: %w", err)
	}
	return int(purged), nil
}

// finish переводит запись в терминальный статус вместе с зафиксированным
// ответом. Отсутствие строки означает, что запись уже вычищена по TTL.
func (r *idempotencyRepository) finish(key string, status domain.IdempotencyStatus, body []byte, code int) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}

	ctx, cancel := opCtx()
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET status = $2, response_body = $3, http_status = $4, updated_at = $5
		WHERE key = $1
	`, key, string(status), body, code, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("finish idempotency key: %w", err)
	}
	return requireAffected(res, domain.ErrIdempotencyKeyNotFound)
}

func scanIdempotencyRecord(row *sql.Row) (domain.IdempotencyRecord, error) {
	var (
		rec    domain.IdempotencyRecord
		status string
		body   []byte
		code   sql.NullInt64
	)

	err := row.Scan(&rec.Key, &rec.RequestHash, &status, &body, &code, &rec.TTLAt, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("scan idempotency key: %w", err)
	}

	rec.Status = domain.IdempotencyStatus(status)
	if !rec.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("stored idempotency status %q is not recognised", status)
	}
	rec.ResponseBody = append([]byte(nil), body...)
	if code.Valid {
		rec.HTTPStatus = int(code.Int64)
	}
	return rec, nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
