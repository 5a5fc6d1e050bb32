package memory

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aurabyshenoi/gallery/internal/domain"
)

const defaultIdempotencyTTL = 24 * time.Hour

// idempotencyRepositoryInMemory держит записи idempotency-key в карте под
// одним мьютексом. Наружу запись выходит только копией, чтобы вызывающий
// не мог дописать чужой зафиксированный ответ.
type idempotencyRepositoryInMemory struct {
	mu      sync.RWMutex
	records map[string]*domain.IdempotencyRecord
}

// NewIdempotencyRepository возвращает in-memory хранилище ключей идемпотентности.
func NewIdempotencyRepository() domain.IdempotencyRepository {
	return &idempotencyRepositoryInMemory{
		records: make(map[string]*domain.IdempotencyRecord),
	}
}

func (r *idempotencyRepositoryInMemory) CreateProcessing(key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key, err := normalizeIdempotencyKey(key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	if requestHash = strings.TrimSpace(requestHash); requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if held, ok := r.records[key]; ok {
		if held.RequestHash != requestHash {
			return copyIdempotencyRecord(held), domain.ErrIdempotencyHashMismatch
		}
		return copyIdempotencyRecord(held), domain.ErrIdempotencyKeyAlreadyExists
	}

	now := time.Now().UTC()
	if ttlAt.IsZero() {
		ttlAt = now.Add(defaultIdempotencyTTL)
	}
	rec := &domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.records[key] = rec
	return copyIdempotencyRecord(rec), nil
}

func (r *idempotencyRepositoryInMemory) Get(key string) (domain.IdempotencyRecord, error) {
	key, err := normalizeIdempotencyKey(key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return copyIdempotencyRecord(rec), nil
}

// MarkDone фиксирует успешный ответ; его же получат все повторы ключа.
func (r *idempotencyRepositoryInMemory) MarkDone(key string, responseBody []byte, httpStatus int) error {
	return r.settle(key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

// MarkFailed фиксирует ошибочный ответ; повторы ключа получат его же.
func (r *idempotencyRepositoryInMemory) MarkFailed(key string, responseBody []byte, httpStatus int) error {
	return r.settle(key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

// Delete освобождает ключ. Отсутствие записи ошибкой не считается.
func (r *idempotencyRepositoryInMemory) Delete(key string) error {
	key, err := normalizeIdempotencyKey(key)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, key)
	return nil
}

// DeleteExpired убирает не более limit записей с истёкшим TTL.
func (r *idempotencyRepositoryInMemory) DeleteExpired(before time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := before
	if cutoff.IsZero() {
		cutoff = time.Now().UTC()
	}

	var stale []string
	for key, rec := range r.records {
		if rec.TTLAt.After(cutoff) {
			continue
		}
		stale = append(stale, key)
		if limit > 0 && len(stale) == limit {
			break
		}
	}
	for _, key := range stale {
		delete(r.records, key)
	}
	return len(stale), nil
}

func (r *idempotencyRepositoryInMemory) settle(key string, status domain.IdempotencyStatus, body []byte, code int) error {
	key, err := normalizeIdempotencyKey(key)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	rec.Status = status
	rec.ResponseBody = slices.Clone(body)
	rec.HTTPStatus = code
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func normalizeIdempotencyKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", domain.ErrIdempotencyKeyRequired
	}
	return key, nil
}

func copyIdempotencyRecord(src *domain.IdempotencyRecord) domain.IdempotencyRecord {
	dst := *src
	dst.ResponseBody = slices.Clone(src.ResponseBody)
	return dst
}

var _ domain.IdempotencyRepository = (*idempotencyRepositoryInMemory)(nil)
