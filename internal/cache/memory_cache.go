package cache

import (
	"context"
	"sync"
	"time"

	"github.com/annel0/voxel-engine/internal/logging"
	"go.uber.org/atomic"
)

// DefaultTTL время жизни записи по умолчанию
const DefaultTTL = 10 * time.Minute

// MemoryOptions параметры кеша в памяти
type MemoryOptions struct {
	TTL time.Duration
	Now func() time.Time
}

type memoryEntry struct {
	value   []byte
	expires time.Time // Нулевое значение - без истечения
}

// MemoryCache реализует CacheRepo в памяти процесса.
// Используется, когда Redis не настроен, и в тестах.
// ВНИМАНИЕ: данные теряются при перезапуске, холодное хранилище остаётся источником правды.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	opts        MemoryOptions
	coldStorage ColdStorage
	invalidator CacheInvalidator
	logger      *logging.Logger

	requests  atomic.Int64
	hits      atomic.Int64
	misses    atomic.Int64
	coldLoads atomic.Int64
}

// NewMemoryCache создаёт кеш в памяти. coldStorage и invalidator могут быть nil.
func NewMemoryCache(opts MemoryOptions, coldStorage ColdStorage, invalidator CacheInvalidator) *MemoryCache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &MemoryCache{
		entries:     make(map[string]memoryEntry),
		opts:        opts,
		coldStorage: coldStorage,
		invalidator: invalidator,
		logger:      logging.GetComponentLogger(logging.ComponentCache),
	}
}

// Get возвращает значение из памяти или дочитывает его из холодного хранилища
func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.requests.Inc()

	now := m.opts.Now()
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if ok && (e.expires.IsZero() || now.Before(e.expires)) {
		m.hits.Inc()
		return copyBytes(e.value), nil
	}
	m.misses.Inc()

	if m.coldStorage == nil {
		return nil, ErrCacheMiss
	}
	val, err := m.coldStorage.Load(ctx, key)
	if err != nil {
		if IsCacheMiss(err) {
			m.logger.Trace("Промах холодного хранилища: %s", key)
		}
		return nil, err
	}
	m.coldLoads.Inc()
	m.put(key, val, m.opts.TTL)
	return copyBytes(val), nil
}

// Set сохраняет значение в памяти
func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = m.opts.TTL
	}
	m.put(key, copyBytes(value), ttl)
	return nil
}

func (m *MemoryCache) put(key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: value, expires: m.opts.Now().Add(ttl)}
	m.mu.Unlock()
}

// Delete удаляет ключ из памяти
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Invalidate удаляет ключ и рассылает уведомление остальным узлам
func (m *MemoryCache) Invalidate(ctx context.Context, key string) error {
	_ = m.Delete(ctx, key)
	if m.invalidator == nil {
		return nil
	}
	return m.invalidator.PublishInvalidation(ctx, key)
}

// ListenInvalidations удаляет ключи, инвалидированные другими узлами
func (m *MemoryCache) ListenInvalidations(ctx context.Context) error {
	if m.invalidator == nil {
		return nil
	}
	return m.invalidator.SubscribeInvalidations(ctx, func(key string) error {
		m.logger.Debug("Инвалидация ключа %s с другого узла", key)
		return m.Delete(ctx, key)
	})
}

// Purge удаляет просроченные записи и возвращает их количество
func (m *MemoryCache) Purge() int {
	now := m.opts.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, e := range m.entries {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Len возвращает количество записей, включая просроченные
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryCache) Close() error {
	m.mu.Lock()
	m.entries = make(map[string]memoryEntry)
	m.mu.Unlock()
	return nil
}

// GetMetrics возвращает текущие метрики кеша
func (m *MemoryCache) GetMetrics() *CacheMetrics {
	hits, misses := m.hits.Load(), m.misses.Load()
	return &CacheMetrics{
		TotalRequests: m.requests.Load(),
		CacheHits:     hits,
		CacheMisses:   misses,
		ColdLoads:     m.coldLoads.Load(),
		HitRatio:      hitRatio(hits, misses),
		TotalKeys:     int64(m.Len()),
		LastUpdate:    m.opts.Now(),
	}
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
