// Package cache содержит реализации внедряемого кэша галереи:
// процессную TTL-карту и клиент общего Redis. Выбор реализации
// делается конфигурацией и не требует изменений в вызывающем коде.
package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/aurabyshenoi/gallery/internal/domain"
)

const janitorInterval = 30 * time.Second

type entry struct {
	value     string
	counter   int64
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory реализует domain.Cache поверх карты с временем жизни записей.
// Просроченные записи удаляются лениво при чтении и фоновой очисткой.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemory создаёт кэш и запускает фоновую очистку просроченных записей.
func NewMemory() *Memory {
	c := &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go c.janitor()
	return c
}

func (c *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false, nil
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (c *Memory) Set(ctx context.Context, key, value string, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry{value: value}
	if ttlSeconds > 0 {
		e.expiresAt = c.now().Add(time.Duration(ttlSeconds) * time.Second)
	}
	c.entries[key] = e
	return nil
}

func (c *Memory) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

func (c *Memory) Incr(ctx context.Context, key string, ttlSeconds int) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, ok := c.entries[key]
	if !ok || e.expired(now) {
		e = entry{}
		if ttlSeconds > 0 {
			e.expiresAt = now.Add(time.Duration(ttlSeconds) * time.Second)
		}
	}
	e.counter++
	e.value = strconv.FormatInt(e.counter, 10)
	c.entries[key] = e
	return e.counter, nil
}

// Close останавливает фоновую очистку.
func (c *Memory) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

func (c *Memory) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Memory) sweep() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
		}
	}
}

var _ domain.Cache = (*Memory)(nil)
