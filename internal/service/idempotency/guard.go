package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/aurabyshenoi/gallery/internal/domain"
)

const defaultGuardTTL = 24 * time.Hour

// StoredResponse описывает ранее отданный ответ, сохранённый под idempotency-key.
type StoredResponse struct {
	HTTPStatus int
	Body       []byte
}

// Guard согласует повторные отправки одного запроса под общим idempotency-key.
// Первая попытка проходит к обработчику, повтор с тем же телом получает
// сохранённый ответ без повторного исполнения. Повтор с другим телом под тем
// же ключом отклоняется.
type Guard struct {
	repo   domain.IdempotencyRepository
	logger *log.Entry
	ttl    time.Duration
}

// GuardOption настраивает Guard.
type GuardOption func(*Guard)

// WithGuardLogger подменяет логгер по умолчанию.
func WithGuardLogger(logger *log.Entry) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGuardTTL задаёт срок жизни записей idempotency-key.
func WithGuardTTL(ttl time.Duration) GuardOption {
	return func(g *Guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// NewGuard создаёт Guard поверх переданного репозитория.
func NewGuard(repo domain.IdempotencyRepository, options ...GuardOption) *Guard {
	g := &Guard{
		repo:   repo,
		logger: log.WithField("component", "idempotency-guard"),
		ttl:    defaultGuardTTL,
	}
	for _, option := range options {
		option(g)
	}
	return g
}

// Begin регистрирует попытку обработки запроса. Возвращает:
//   - (nil, nil), когда ключ занят этим запросом: обработку нужно продолжить
//     и завершить вызовом Complete, Fail или Abort;
//   - сохранённый ответ, когда ключ уже завершён с тем же телом запроса;
//   - ErrIdempotencyInFlight, когда первая попытка ещё не завершилась;
//   - ErrIdempotencyHashMismatch, когда под ключом пришло другое тело.
func (g *Guard) Begin(key string, payload []byte) (*StoredResponse, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, domain.ErrIdempotencyKeyRequired
	}

	record, err := g.repo.CreateProcessing(key, RequestHash(payload), time.Now().UTC().Add(g.ttl))
	switch {
	case err == nil:
		return nil, nil
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		guardReplaysTotal.WithLabelValues("hash_mismatch").Inc()
		g.logger.WithField("idempotency_key", key).Warn("idempotency key reused with a different payload")
		return nil, domain.ErrIdempotencyHashMismatch
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		if !record.Terminal() {
			guardReplaysTotal.WithLabelValues("in_flight").Inc()
			return nil, domain.ErrIdempotencyInFlight
		}
		guardReplaysTotal.WithLabelValues("replayed").Inc()
		g.logger.WithFields(log.Fields{
			"idempotency_key": key,
			"http_status":     record.HTTPStatus,
		}).Info("replaying stored response")
		return &StoredResponse{
			HTTPStatus: record.HTTPStatus,
			Body:       append([]byte(nil), record.ResponseBody...),
		}, nil
	default:
		return nil, fmt.Errorf("register idempotency key: %w", err)
	}
}

// Complete сохраняет успешный ответ: повтор с тем же ключом и телом получит
// его без повторного исполнения.
func (g *Guard) Complete(key string, httpStatus int, body []byte) {
	if err := g.repo.MarkDone(key, body, httpStatus); err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
	}
}

// Fail сохраняет окончательный ошибочный ответ. Используется для исходов,
// которые нельзя повторять вслепую, например отклонённый платёж.
func (g *Guard) Fail(key string, httpStatus int, body []byte) {
	if err := g.repo.MarkFailed(key, body, httpStatus); err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
	}
}

// Abort освобождает ключ, не сохраняя ответ. Используется, когда запрос не
// дошёл до необратимых действий и его безопасно повторить целиком.
func (g *Guard) Abort(key string) {
	if err := g.repo.Delete(key); err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to release idempotency key")
	}
}

// RequestHash возвращает hex-представление sha256 от тела запроса.
func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
