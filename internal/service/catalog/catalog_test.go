package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aurabyshenoi/gallery/internal/cache"
	"github.com/aurabyshenoi/gallery/internal/domain"
	"github.com/aurabyshenoi/gallery/internal/oid"
	"github.com/aurabyshenoi/gallery/internal/storage/memory"
)

func TestService_List_ServesFromCacheOnRepeat(t *testing.T) {
	t.Parallel()

	items, store := newCountingItems()
	mem := newTestCache(t)
	svc := NewService(items, WithCache(mem))

	now := time.Now().UTC()
	older := seedItem(t, store, "Quiet Harbor", 80, false, now.Add(-time.Hour))
	newer := seedItem(t, store, "Morning Field", 120, false, now)

	first, err := svc.List(context.Background(), false, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first) != 2 || first[0].ID != newer.ID || first[1].ID != older.ID {
		t.Fatalf("unexpected listing order: %+v", first)
	}

	second, err := svc.List(context.Background(), false, 0)
	if err != nil {
		t.Fatalf("list from cache: %v", err)
	}
	if len(second) != 2 {
		t.Fatalf("cached listing has %d items", len(second))
	}
	if items.listCalls() != 1 {
		t.Fatalf("storage hit %d times, want 1", items.listCalls())
	}
}

func TestService_List_AppliesLimitAfterCache(t *testing.T) {
	t.Parallel()

	items, store := newCountingItems()
	svc := NewService(items, WithCache(newTestCache(t)))

	now := time.Now().UTC()
	for i, title := range []string{"One", "Two", "Three"} {
		seedItem(t, store, title, 50, false, now.Add(-time.Duration(i)*time.Minute))
	}

	limited, err := svc.List(context.Background(), false, 2)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limit ignored: got %d items", len(limited))
	}

	full, err := svc.List(context.Background(), false, 0)
	if err != nil {
		t.Fatalf("list full: %v", err)
	}
	if len(full) != 3 {
		t.Fatalf("cached listing truncated to %d items", len(full))
	}
	if items.listCalls() != 1 {
		t.Fatalf("storage hit %d times, want 1", items.listCalls())
	}
}

func TestService_List_FeaturedUsesOwnKey(t *testing.T) {
	t.Parallel()

	items, store := newCountingItems()
	svc := NewService(items, WithCache(newTestCache(t)))

	now := time.Now().UTC()
	seedItem(t, store, "Plain", 60, false, now.Add(-time.Minute))
	featured := seedItem(t, store, "Showcase", 200, true, now)

	got, err := svc.List(context.Background(), true, 0)
	if err != nil {
		t.Fatalf("list featured: %v", err)
	}
	if len(got) != 1 || got[0].ID != featured.ID {
		t.Fatalf("unexpected featured listing: %+v", got)
	}

	all, err := svc.List(context.Background(), false, 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("full listing has %d items", len(all))
	}

	if _, err := svc.List(context.Background(), true, 0); err != nil {
		t.Fatalf("list featured again: %v", err)
	}
	if items.listCalls() != 2 {
		t.Fatalf("storage hit %d times, want 2", items.listCalls())
	}
}

func TestService_InvalidateListing_ForcesReload(t *testing.T) {
	t.Parallel()

	items, store := newCountingItems()
	svc := NewService(items, WithCache(newTestCache(t)))
	item := seedItem(t, store, "Red Chair", 150, false, time.Now().UTC())

	if _, err := svc.List(context.Background(), false, 0); err != nil {
		t.Fatalf("warm listing: %v", err)
	}

	if _, err := store.MarkUnavailable([]string{item.ID}); err != nil {
		t.Fatalf("sell item: %v", err)
	}
	if err := svc.InvalidateListing(context.Background()); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	got, err := svc.List(context.Background(), false, 0)
	if err != nil {
		t.Fatalf("list after invalidation: %v", err)
	}
	if len(got) != 1 || got[0].Available {
		t.Fatalf("stale listing after invalidation: %+v", got)
	}
	if items.listCalls() != 2 {
		t.Fatalf("storage hit %d times, want 2", items.listCalls())
	}
}

func TestService_List_WorksWithoutCache(t *testing.T) {
	t.Parallel()

	items, store := newCountingItems()
	svc := NewService(items)
	seedItem(t, store, "Loner", 40, false, time.Now().UTC())

	for i := 0; i < 2; i++ {
		got, err := svc.List(context.Background(), false, 0)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("unexpected listing: %+v", got)
		}
	}
	if items.listCalls() != 2 {
		t.Fatalf("storage hit %d times, want 2", items.listCalls())
	}
	if err := svc.InvalidateListing(context.Background()); err != nil {
		t.Fatalf("invalidate without cache: %v", err)
	}
}

func TestService_List_IgnoresMalformedCacheEntry(t *testing.T) {
	t.Parallel()

	items, store := newCountingItems()
	mem := newTestCache(t)
	svc := NewService(items, WithCache(mem))
	seedItem(t, store, "Recovered", 70, false, time.Now().UTC())

	if err := mem.Set(context.Background(), keyListingAll, "not-json", 60); err != nil {
		t.Fatalf("poison cache: %v", err)
	}

	got, err := svc.List(context.Background(), false, 0)
	if err != nil {
		t.Fatalf("list over malformed entry: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("unexpected listing: %+v", got)
	}

	raw, ok, err := mem.Get(context.Background(), keyListingAll)
	if err != nil || !ok {
		t.Fatalf("cache entry not rewritten: ok=%v err=%v", ok, err)
	}
	if raw == "not-json" {
		t.Fatal("malformed entry survived the reload")
	}
}

func TestService_Get_ReturnsItem(t *testing.T) {
	t.Parallel()

	items, store := newCountingItems()
	svc := NewService(items)
	item := seedItem(t, store, "Single", 30, false, time.Now().UTC())

	got, err := svc.Get(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != item.ID {
		t.Fatalf("got item %q, want %q", got.ID, item.ID)
	}

	if _, err := svc.Get(context.Background(), oid.New()); err != domain.ErrItemNotFound {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func newTestCache(t *testing.T) *cache.Memory {
	t.Helper()

	mem := cache.NewMemory()
	t.Cleanup(func() { _ = mem.Close() })
	return mem
}

func seedItem(t *testing.T, items domain.ItemRepository, title string, price int64, featured bool, createdAt time.Time) domain.Item {
	t.Helper()

	item := domain.Item{
		ID:        oid.New(),
		Title:     title,
		Price:     price,
		Available: true,
		Featured:  featured,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	if err := items.Create(item); err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return item
}

// countingItems считает обращения к хранилищу, чтобы отличать
// чтение из кэша от чтения из каталога.
type countingItems struct {
	domain.ItemRepository
	mu    sync.Mutex
	lists int
}

func newCountingItems() (*countingItems, domain.ItemRepository) {
	store := memory.NewItemRepository()
	return &countingItems{ItemRepository: store}, store
}

func (c *countingItems) List(filter domain.ItemFilter) ([]domain.Item, error) {
	c.mu.Lock()
	c.lists++
	c.mu.Unlock()
	return c.ItemRepository.List(filter)
}

func (c *countingItems) listCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lists
}
