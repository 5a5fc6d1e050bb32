package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/aurabyshenoi/gallery/internal/domain"
	"github.com/aurabyshenoi/gallery/internal/storage/memory"
	"github.com/aurabyshenoi/gallery/internal/storage/postgres"
)

// repositories объединяет порты хранилища, которые нужны сервисам.
type repositories struct {
	items       domain.ItemRepository
	orders      domain.OrderRepository
	contacts    domain.ContactRepository
	newsletters domain.NewsletterRepository
	sequences   domain.SequenceRepository
	idempotency domain.IdempotencyRepository
}

// buildStorage создаёт репозитории для выбранного драйвера. Для postgres
// открывается пул соединений и выравнивается схема; возвращённый Store
// закрывает вызывающая сторона. Для памяти Store равен nil.
func buildStorage(ctx context.Context, cfg Config, logger *log.Entry) (repositories, *postgres.Store, error) {
	switch cfg.StorageDriver {
	case StoragePostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return repositories{}, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			if closeErr := store.Close(); closeErr != nil {
				logger.WithError(closeErr).Warn("failed to close postgres store")
			}
			return repositories{}, nil, fmt.Errorf("ensure schema: %w", err)
		}
		logger.Info("storage: postgres")
		return repositories{
			items:       postgres.NewItemRepository(store),
			orders:      postgres.NewOrderRepository(store),
			contacts:    postgres.NewContactRepository(store),
			newsletters: postgres.NewNewsletterRepository(store),
			sequences:   postgres.NewSequenceRepository(store),
			idempotency: postgres.NewIdempotencyRepository(store),
		}, store, nil
	default:
		logger.Info("storage: memory")
		return repositories{
			items:       memory.NewItemRepository(),
			orders:      memory.NewOrderRepository(),
			contacts:    memory.NewContactRepository(),
			newsletters: memory.NewNewsletterRepository(),
			sequences:   memory.NewSequenceRepository(),
			idempotency: memory.NewIdempotencyRepository(),
		}, nil, nil
	}
}
