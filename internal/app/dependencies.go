package app

import (
	"context"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/aurabyshenoi/gallery/internal/cache"
	"github.com/aurabyshenoi/gallery/internal/domain"
	"github.com/aurabyshenoi/gallery/internal/messaging/kafka"
	"github.com/aurabyshenoi/gallery/internal/service/mailer"
	"github.com/aurabyshenoi/gallery/internal/storage/postgres"
)

// Dependencies объединяет внешние зависимости сервиса: хранилище, кеш,
// публикацию событий и почтовый релей. Сборка детерминирована конфигурацией,
// поэтому один и тот же Run обслуживает и локальный запуск без внешних
// систем, и продуктивный со всеми.
type Dependencies struct {
	repos repositories

	Cache  domain.Cache
	Events domain.EventPublisher
	Relay  domain.MailRelay

	// Store не nil только для postgres; нужен пробе готовности.
	Store *postgres.Store

	producer    *kafka.Producer
	cacheCloser io.Closer
	logger      *log.Entry
}

// NewDependencies собирает зависимости по конфигурации. При ошибке все уже
// открытые подключения закрываются, наружу ничего не утекает.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	deps := &Dependencies{logger: logger}

	repos, store, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	deps.repos = repos
	deps.Store = store

	if cfg.RedisAddr != "" {
		redisCache, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		deps.Cache = redisCache
		deps.cacheCloser = redisCache
		logger.WithField("addr", cfg.RedisAddr).Info("cache: redis")
	} else {
		memCache := cache.NewMemory()
		deps.Cache = memCache
		deps.cacheCloser = memCache
		logger.Info("cache: memory")
	}

	// Недоступная Kafka не валит витрину: buildEvents деградирует до
	// заглушки и сам пишет предупреждение в лог.
	deps.Events, deps.producer = buildEvents(cfg.KafkaBrokers, logger)

	if cfg.RelayURL != "" {
		opts := []mailer.HTTPOption{}
		if cfg.RelayAPIKey != "" {
			opts = append(opts, mailer.WithAPIKey(cfg.RelayAPIKey))
		}
		deps.Relay = mailer.NewHTTPRelay(cfg.RelayURL, opts...)
		logger.WithField("url", cfg.RelayURL).Info("mail relay: http")
	} else {
		deps.Relay = mailer.NewMockRelay(logger)
		logger.Info("mail relay: mock")
	}

	return deps, nil
}

// Close освобождает подключения в порядке, обратном созданию. Вызов
// безопасен и для частично собранных зависимостей.
func (d *Dependencies) Close() {
	if d.producer != nil {
		if err := d.producer.Close(); err != nil {
			d.logger.WithError(err).Warn("failed to close kafka producer")
		}
		d.producer = nil
	}
	if d.cacheCloser != nil {
		if err := d.cacheCloser.Close(); err != nil {
			d.logger.WithError(err).Warn("failed to close cache")
		}
		d.cacheCloser = nil
	}
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.logger.WithError(err).Warn("failed to close postgres store")
		}
		d.Store = nil
	}
}
