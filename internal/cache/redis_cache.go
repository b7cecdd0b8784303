package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/go-redis/redis/v8"
	"go.uber.org/atomic"
)

// RedisOptions параметры подключения к Redis
type RedisOptions struct {
	Addr        string
	Password    string
	DB          int
	TTL         time.Duration
	MaxTTL      time.Duration
	PoolSize    int
	DialTimeout time.Duration
}

// RedisOptionsFromURL разбирает адрес вида redis://[:password@]host:port/db
// или просто host:port. Ненулевой db переопределяет номер базы из URL.
func RedisOptionsFromURL(url string, db int, ttl time.Duration) (RedisOptions, error) {
	opts := RedisOptions{Addr: url, DB: db, TTL: ttl}
	if strings.HasPrefix(url, "redis://") || strings.HasPrefix(url, "rediss://") {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			return RedisOptions{}, fmt.Errorf("разбор адреса Redis: %w", err)
		}
		opts.Addr = parsed.Addr
		opts.Password = parsed.Password
		if db == 0 {
			opts.DB = parsed.DB
		}
	}
	if opts.Addr == "" {
		return RedisOptions{}, errors.New("пустой адрес Redis")
	}
	return opts, nil
}

// RedisCache реализует CacheRepo поверх Redis.
// При промахе дочитывает запись из холодного хранилища (read-through).
// Redis общий для узлов, поэтому Invalidate уведомляет только локальные кеши других узлов.
type RedisCache struct {
	client      *redis.Client
	opts        RedisOptions
	coldStorage ColdStorage
	invalidator CacheInvalidator
	logger      *logging.Logger

	requests  atomic.Int64
	hits      atomic.Int64
	misses    atomic.Int64
	coldLoads atomic.Int64
}

// NewRedisCache подключается к Redis и проверяет соединение
func NewRedisCache(opts RedisOptions, coldStorage ColdStorage, invalidator CacheInvalidator) (*RedisCache, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxTTL <= 0 {
		opts.MaxTTL = time.Hour
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 10
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("подключение к Redis %s: %w", opts.Addr, err)
	}

	c := &RedisCache{
		client:      rdb,
		opts:        opts,
		coldStorage: coldStorage,
		invalidator: invalidator,
		logger:      logging.GetComponentLogger(logging.ComponentCache),
	}
	c.logger.Info("Redis кеш подключён: %s (db %d, TTL %v)", opts.Addr, opts.DB, opts.TTL)
	return c, nil
}

// Get получает значение из Redis, при промахе читает холодное хранилище
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	r.requests.Inc()

	val, err := r.client.Get(ctx, key).Bytes()
	if err == nil {
		r.hits.Inc()
		return val, nil
	}
	r.misses.Inc()

	if !errors.Is(err, redis.Nil) {
		r.logger.Error("Ошибка Redis Get %s: %v", key, err)
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	if r.coldStorage == nil {
		return nil, ErrCacheMiss
	}

	val, err = r.coldStorage.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	r.coldLoads.Inc()
	if err := r.Set(ctx, key, val, r.opts.TTL); err != nil {
		r.logger.Warn("Не удалось прогреть ключ %s: %v", key, err)
	}
	return val, nil
}

// Set сохраняет значение в Redis. TTL ограничен сверху MaxTTL.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.opts.TTL
	}
	if ttl > r.opts.MaxTTL {
		ttl = r.opts.MaxTTL
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.logger.Error("Ошибка Redis Set %s: %v", key, err)
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete удаляет ключ из Redis
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.logger.Error("Ошибка Redis Delete %s: %v", key, err)
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// Invalidate удаляет ключ и рассылает уведомление
func (r *RedisCache) Invalidate(ctx context.Context, key string) error {
	if err := r.Delete(ctx, key); err != nil {
		return err
	}
	if r.invalidator == nil {
		return nil
	}
	return r.invalidator.PublishInvalidation(ctx, key)
}

// Close закрывает соединение с Redis
func (r *RedisCache) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Ошибка закрытия Redis: %v", err)
		return err
	}
	r.logger.Info("Redis кеш закрыт")
	return nil
}

// GetMetrics возвращает текущие метрики кеша
func (r *RedisCache) GetMetrics() *CacheMetrics {
	hits, misses := r.hits.Load(), r.misses.Load()
	m := &CacheMetrics{
		TotalRequests: r.requests.Load(),
		CacheHits:     hits,
		CacheMisses:   misses,
		ColdLoads:     r.coldLoads.Load(),
		HitRatio:      hitRatio(hits, misses),
		LastUpdate:    time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if n, err := r.client.DBSize(ctx).Result(); err == nil {
		m.TotalKeys = n
	}
	return m
}
