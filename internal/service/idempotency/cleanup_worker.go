package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/aurabyshenoi/gallery/internal/domain"
)

const (
	defaultSweepInterval = 15 * time.Minute
	defaultSweepBatch    = 256
)

// CleanupWorker периодически вычищает записи idempotency-key с истёкшим TTL.
// Пока запись жива, её ключ нельзя использовать повторно, поэтому уборка
// напрямую влияет на то, когда клиент сможет переиспользовать ключ.
type CleanupWorker struct {
	repo      domain.IdempotencyRepository
	logger    *log.Entry
	interval  time.Duration
	batchSize int
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupWorker)

// WithCleanupLogger подменяет логгер по умолчанию.
func WithCleanupLogger(logger *log.Entry) CleanupOption {
	return func(w *CleanupWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithCleanupInterval задаёт паузу между проходами.
func WithCleanupInterval(interval time.Duration) CleanupOption {
	return func(w *CleanupWorker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithCleanupBatchSize ограничивает число записей, удаляемых одним запросом.
func WithCleanupBatchSize(size int) CleanupOption {
	return func(w *CleanupWorker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// NewCleanupWorker создаёт воркер уборки поверх репозитория ключей.
func NewCleanupWorker(repo domain.IdempotencyRepository, options ...CleanupOption) *CleanupWorker {
	w := &CleanupWorker{
		repo:      repo,
		logger:    log.WithField("component", "idempotency-cleanup"),
		interval:  defaultSweepInterval,
		batchSize: defaultSweepBatch,
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// Run делает первый проход сразу, дальше ходит по интервалу до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("idempotency cleanup is disabled: repository is nil")
		return
	}

	for {
		w.sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.interval):
		}
	}
}

func (w *CleanupWorker) sweep(ctx context.Context) {
	purged, err := w.DeleteExpired(ctx, time.Now().UTC())
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return
	case err != nil:
		cleanupRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("idempotency sweep failed")
		return
	}

	cleanupRunsTotal.WithLabelValues("ok").Inc()
	cleanupLastDeleted.Set(float64(purged))
	if purged > 0 {
		w.logger.WithField("deleted", purged).Info("expired idempotency keys purged")
	}
}

// DeleteExpired удаляет записи с ttl_at <= before порциями и возвращает
// общее число удалённых. Останавливается, как только порция пришла неполной.
func (w *CleanupWorker) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := w.repo.DeleteExpired(before, w.batchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n > 0 {
			cleanupDeletedTotal.Add(float64(n))
		}
		if n < w.batchSize {
			return total, nil
		}
	}
}
