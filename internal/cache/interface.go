package cache

import (
	"context"
	"errors"
	"time"
)

// CacheRepo кеш сериализованных записей чанков.
// Двухуровневая схема: горячий кеш (Redis или память) поверх холодного хранилища (badger).
//
// Использование:
//
//	c := NewMemoryCache(MemoryOptions{TTL: time.Minute}, cold, nil)
//	data, err := c.Get(ctx, "chunk:0:0:0")
//	err = c.Invalidate(ctx, "chunk:0:0:0")
type CacheRepo interface {
	// Get возвращает значение по ключу. При промахе читает холодное хранилище.
	// Возвращает ErrCacheMiss, если ключа нет нигде.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set сохраняет значение с указанным TTL; 0 означает TTL по умолчанию.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete удаляет ключ только из этого кеша.
	Delete(ctx context.Context, key string) error

	// Invalidate удаляет ключ и уведомляет остальные узлы.
	Invalidate(ctx context.Context, key string) error

	Close() error

	GetMetrics() *CacheMetrics
}

// ColdStorage постоянное хранилище, из которого кеш дочитывает промахи.
// Load возвращает ошибку, обёрнутую в ErrCacheMiss, если ключа нет.
type ColdStorage interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, value []byte) error
	BatchStore(ctx context.Context, items map[string][]byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// CacheInvalidator рассылает уведомления об инвалидации между узлами
type CacheInvalidator interface {
	PublishInvalidation(ctx context.Context, key string) error
	SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error
	Close() error
}

// InvalidationHandler обрабатывает уведомление об инвалидации ключа
type InvalidationHandler func(key string) error

// CacheMetrics счётчики кеша
type CacheMetrics struct {
	TotalRequests int64     `json:"total_requests"`
	CacheHits     int64     `json:"cache_hits"`
	CacheMisses   int64     `json:"cache_misses"`
	ColdLoads     int64     `json:"cold_loads"`
	HitRatio      float64   `json:"hit_ratio"`
	TotalKeys     int64     `json:"total_keys"`
	LastUpdate    time.Time `json:"last_update"`
}

// ErrCacheMiss ключ не найден ни в кеше, ни в холодном хранилище
var ErrCacheMiss = errors.New("промах кеша")

// IsCacheMiss проверяет, является ли ошибка промахом кеша
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

func hitRatio(hits, misses int64) float64 {
	if total := hits + misses; total > 0 {
		return float64(hits) / float64(total)
	}
	return 0
}
