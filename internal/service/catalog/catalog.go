// Package catalog отдаёт витрину галереи. Списки проходят через внедряемый
// кэш со сквозным чтением: продажа сбрасывает обе канонические выборки,
// поэтому проданная работа исчезает из витрины сразу, а не по истечении TTL.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/aurabyshenoi/gallery/internal/domain"
)

// defaultListingTTLSeconds задаёт время жизни кэшированных выборок.
const defaultListingTTLSeconds = 60

// Канонические ключи кэша. Кэшируются только полные выборки,
// ограничение размера применяется после чтения.
const (
	keyListingAll      = "catalog:listing:all"
	keyListingFeatured = "catalog:listing:featured"
)

var (
	listingCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gallery_catalog_cache_hits_total",
		Help: "Catalog listings served from cache.",
	})
	listingCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gallery_catalog_cache_misses_total",
		Help: "Catalog listings loaded from storage.",
	})
)

// Options задаёт параметры витрины.
type Options struct {
	Logger     *log.Entry
	Cache      domain.Cache
	TTLSeconds int
}

// Option настраивает Service.
type Option func(*Options)

// WithLogger задаёт logger витрины.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithCache задаёт кэш выборок. Без кэша витрина читает хранилище напрямую.
func WithCache(cache domain.Cache) Option {
	return func(opts *Options) {
		opts.Cache = cache
	}
}

// WithTTL задаёт время жизни кэшированных выборок в секундах.
func WithTTL(seconds int) Option {
	return func(opts *Options) {
		opts.TTLSeconds = seconds
	}
}

// Service отдаёт каталог работ галереи.
type Service struct {
	items  domain.ItemRepository
	cache  domain.Cache
	logger *log.Entry
	ttl    int
}

// NewService создаёт витрину поверх каталога.
func NewService(items domain.ItemRepository, options ...Option) *Service {
	opts := Options{TTLSeconds: defaultListingTTLSeconds}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "catalog")
	}
	if opts.TTLSeconds <= 0 {
		opts.TTLSeconds = defaultListingTTLSeconds
	}

	return &Service{
		items:  items,
		cache:  opts.Cache,
		logger: logger,
		ttl:    opts.TTLSeconds,
	}
}

// List возвращает витрину в порядке убывания даты создания. Проданные работы
// остаются в выборке с погашенным флагом доступности. Ограничение limit
// применяется к уже загруженной выборке и не влияет на содержимое кэша.
func (s *Service) List(ctx context.Context, featured bool, limit int) ([]domain.Item, error) {
	items, err := s.listing(ctx, featured)
	if err != nil {
		return nil, err
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items, nil
}

// Get возвращает работу по идентификатору.
func (s *Service) Get(ctx context.Context, id string) (domain.Item, error) {
	item, err := s.items.Get(id)
	if err != nil {
		return domain.Item{}, err
	}
	return item, nil
}

// InvalidateListing сбрасывает обе канонические выборки витрины.
func (s *Service) InvalidateListing(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}

	var firstErr error
	for _, key := range []string{keyListingAll, keyListingFeatured} {
		if err := s.cache.Delete(ctx, key); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("invalidate %s: %w", key, err)
		}
	}
	return firstErr
}

func (s *Service) listing(ctx context.Context, featured bool) ([]domain.Item, error) {
	key := listingKey(featured)

	if items, ok := s.cached(ctx, key); ok {
		return items, nil
	}

	items, err := s.items.List(domain.ItemFilter{FeaturedOnly: featured})
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	s.store(ctx, key, items)
	return items, nil
}

func (s *Service) cached(ctx context.Context, key string) ([]domain.Item, bool) {
	if s.cache == nil {
		return nil, false
	}

	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WithError(err).Warn("catalog cache read failed")
		listingCacheMisses.Inc()
		return nil, false
	}
	if !ok {
		listingCacheMisses.Inc()
		return nil, false
	}

	var items []domain.Item
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("catalog cache entry malformed")
		listingCacheMisses.Inc()
		return nil, false
	}

	listingCacheHits.Inc()
	return items, true
}

func (s *Service) store(ctx context.Context, key string, items []domain.Item) {
	if s.cache == nil {
		return
	}

	raw, err := json.Marshal(items)
	if err != nil {
		s.logger.WithError(err).Warn("catalog cache encode failed")
		return
	}
	if err := s.cache.Set(ctx, key, string(raw), s.ttl); err != nil {
		s.logger.WithError(err).Warn("catalog cache write failed")
	}
}

func listingKey(featured bool) string {
	if featured {
		return keyListingFeatured
	}
	return keyListingAll
}
