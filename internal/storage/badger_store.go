package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/annel0/voxel-engine/internal/cache"
	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/dgraph-io/badger/v3"
)

// ErrNotReady хранилище закрыто
var ErrNotReady = errors.New("хранилище не готово")

// BadgerStore ключ-значение хранилище на BadgerDB.
// Реализует cache.ColdStorage.
type BadgerStore struct {
	db     *badger.DB
	path   string
	mutex  sync.RWMutex
	ready  bool
	logger *logging.Logger
}

// OpenBadgerStore открывает хранилище в каталоге path.
// Пустой path открывает хранилище в памяти.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB %q: %w", path, err)
	}

	s := &BadgerStore{db: db, path: path, ready: true, logger: logging.GetStorageLogger()}
	if path == "" {
		s.logger.Info("BadgerDB открыта в памяти")
	} else {
		s.logger.Info("BadgerDB открыта: %s", path)
	}
	return s, nil
}

// Load читает значение ключа. Отсутствующий ключ даёт ошибку, обёрнутую в cache.ErrCacheMiss.
func (s *BadgerStore) Load(ctx context.Context, key string) ([]byte, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	defer s.mutex.RUnlock()

	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", cache.ErrCacheMiss, key)
	}
	if err != nil {
		return nil, fmt.Errorf("чтение %s: %w", key, err)
	}
	return out, nil
}

// Store записывает значение ключа
func (s *BadgerStore) Store(ctx context.Context, key string, value []byte) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	defer s.mutex.RUnlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("запись %s: %w", key, err)
	}
	return nil
}

// BatchStore записывает несколько ключей одной пачкой
func (s *BadgerStore) BatchStore(ctx context.Context, items map[string][]byte) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	defer s.mutex.RUnlock()

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for key, value := range items {
		if err := wb.Set([]byte(key), value); err != nil {
			return fmt.Errorf("пакетная запись %s: %w", key, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("пакетная запись %d ключей: %w", len(items), err)
	}
	return nil
}

// Delete удаляет ключ; отсутствие ключа не ошибка
func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	defer s.mutex.RUnlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("удаление %s: %w", key, err)
	}
	return nil
}

// Keys возвращает ключи с префиксом prefix в лексикографическом порядке
func (s *BadgerStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	defer s.mutex.RUnlock()

	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("перечисление ключей %q: %w", prefix, err)
	}
	return keys, nil
}

// CollectGarbage сжимает журнал значений. Возвращает nil, если сжимать нечего.
func (s *BadgerStore) CollectGarbage(discardRatio float64) error {
	if err := s.check(context.Background()); err != nil {
		return err
	}
	defer s.mutex.RUnlock()

	err := s.db.RunValueLogGC(discardRatio)
	if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
		return nil
	}
	return err
}

// Close закрывает хранилище данных
func (s *BadgerStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.ready {
		return nil
	}
	s.ready = false
	s.logger.Info("BadgerDB закрыта")
	return s.db.Close()
}

// check захватывает RLock при успехе; вызывающий обязан отпустить его
func (s *BadgerStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mutex.RLock()
	if !s.ready {
		s.mutex.RUnlock()
		return ErrNotReady
	}
	return nil
}
