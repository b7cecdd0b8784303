package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/annel0/voxel-engine/internal/cache"
	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/protocol"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world"
	"github.com/annel0/voxel-engine/internal/world/block"
)

// ErrChunkNotFound чанк не сохранён
var ErrChunkNotFound = errors.New("чанк не найден в хранилище")

const (
	chunkKeyPrefix = "chunk:"
	metaWorldKey   = "meta:world"
)

// ChunkKey возвращает ключ записи чанка: chunk:x:y:z
func ChunkKey(origin vec.Vec3) string {
	return fmt.Sprintf("%s%d:%d:%d", chunkKeyPrefix, origin.X, origin.Y, origin.Z)
}

// ParseChunkKey разбирает ключ, созданный ChunkKey
func ParseChunkKey(key string) (vec.Vec3, error) {
	rest, ok := strings.CutPrefix(key, chunkKeyPrefix)
	if !ok {
		return vec.Vec3{}, fmt.Errorf("ключ %q не является ключом чанка", key)
	}
	parts := strings.Split(rest, ":")
	if len(parts) != 3 {
		return vec.Vec3{}, fmt.Errorf("ключ %q: ожидалось три координаты", key)
	}
	var xyz [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return vec.Vec3{}, fmt.Errorf("ключ %q: %w", key, err)
		}
		xyz[i] = v
	}
	return vec.New(xyz[0], xyz[1], xyz[2]), nil
}

// ChunkStorageOptions параметры хранилища чанков
type ChunkStorageOptions struct {
	Compressor protocol.Compressor
}

// ChunkStorage сохраняет и восстанавливает чанки мира.
// Записи пишутся в холодное хранилище напрямую; кеш (может быть nil)
// обслуживает чтение и инвалидируется после записи.
// Реализует world.ChunkSource.
type ChunkStorage struct {
	cold     *BadgerStore
	cache    cache.CacheRepo
	catalog  *block.Catalog
	settings world.Settings
	comp     protocol.Compressor
	logger   *logging.Logger

	mu      sync.RWMutex
	remap   []block.BlockID // Сохранённый ID -> текущий
	dropped int
}

// NewChunkStorage проверяет совместимость сохранённых данных с миром.
// Для нового хранилища записывает заголовок и таблицу блоков.
func NewChunkStorage(ctx context.Context, cold *BadgerStore, c cache.CacheRepo, settings world.Settings, catalog *block.Catalog, opts ChunkStorageOptions) (*ChunkStorage, error) {
	if opts.Compressor == nil {
		comp, err := protocol.NewZstdCompressor()
		if err != nil {
			return nil, err
		}
		opts.Compressor = comp
	}
	s := &ChunkStorage{
		cold:     cold,
		cache:    c,
		catalog:  catalog,
		settings: settings,
		comp:     opts.Compressor,
		logger:   logging.GetStorageLogger(),
	}
	if err := s.loadMeta(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ChunkStorage) loadMeta(ctx context.Context) error {
	data, err := s.cold.Load(ctx, metaWorldKey)
	if cache.IsCacheMiss(err) {
		w := protocol.NewWriter()
		writeHeader(w, HeaderFromSettings(s.settings))
		writeNames(w, catalogNames(s.catalog))
		if err := s.cold.Store(ctx, metaWorldKey, w.Bytes()); err != nil {
			return fmt.Errorf("запись заголовка хранилища: %w", err)
		}
		s.remap = identityRemap(s.catalog)
		return nil
	}
	if err != nil {
		return err
	}

	r := protocol.NewReader(data)
	h := readHeader(r)
	if err := r.Err(); err != nil {
		return fmt.Errorf("%w: заголовок: %v", ErrCorruptRecord, err)
	}
	if err := h.Check(s.settings); err != nil {
		return err
	}
	names, err := readNames(r)
	if err != nil {
		return err
	}
	remap, missing := buildRemap(names, s.catalog)
	if len(missing) > 0 {
		s.logger.Warn("Блоки %v отсутствуют в каталоге и будут заменены воздухом", missing)
	}
	s.remap = remap
	return nil
}

// Dropped возвращает количество отброшенных при чтении состояний и сущностей
func (s *ChunkStorage) Dropped() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}

func (s *ChunkStorage) encode(c *world.Chunk) ([]byte, error) {
	w := protocol.NewWriter()
	writeRecord(w, RecordFromChunk(c))
	return s.comp.Compress(w.Bytes())
}

func (s *ChunkStorage) decode(origin vec.Vec3, data []byte) (ChunkRecord, error) {
	raw, err := s.comp.Decompress(data)
	if err != nil {
		return ChunkRecord{}, fmt.Errorf("%w: чанк %v: %v", ErrCorruptRecord, origin, err)
	}

	s.mu.RLock()
	d := recordDecoder{catalog: s.catalog, size: s.settings.ChunkSize, remap: s.remap}
	s.mu.RUnlock()

	rec, err := d.read(protocol.NewReader(raw))
	if d.dropped > 0 {
		s.mu.Lock()
		s.dropped += d.dropped
		s.mu.Unlock()
	}
	if err != nil {
		return ChunkRecord{}, err
	}
	if rec.Origin != origin {
		return ChunkRecord{}, fmt.Errorf("%w: запись %v под ключом %v", ErrCorruptRecord, rec.Origin, origin)
	}
	return rec, nil
}

// Save сохраняет чанк
func (s *ChunkStorage) Save(ctx context.Context, c *world.Chunk) error {
	data, err := s.encode(c)
	if err != nil {
		return fmt.Errorf("кодирование чанка %v: %w", c.Offset, err)
	}
	key := ChunkKey(c.Offset)
	if err := s.cold.Store(ctx, key, data); err != nil {
		return err
	}
	s.invalidate(ctx, key)
	return nil
}

// SaveAll сохраняет сгенерированные чанки одной пачкой и возвращает их количество
func (s *ChunkStorage) SaveAll(ctx context.Context, chunks []*world.Chunk) (int, error) {
	items := make(map[string][]byte, len(chunks))
	for _, c := range chunks {
		if !c.Generated() || c.Destroyed() {
			continue
		}
		data, err := s.encode(c)
		if err != nil {
			return 0, fmt.Errorf("кодирование чанка %v: %w", c.Offset, err)
		}
		items[ChunkKey(c.Offset)] = data
	}
	if len(items) == 0 {
		return 0, nil
	}
	if err := s.cold.BatchStore(ctx, items); err != nil {
		return 0, err
	}
	for key := range items {
		s.invalidate(ctx, key)
	}
	s.logger.Debug("Сохранено чанков: %d", len(items))
	return len(items), nil
}

// SaveWorld сохраняет все загруженные чанки мира
func (s *ChunkStorage) SaveWorld(ctx context.Context, w *world.World) (int, error) {
	return s.SaveAll(ctx, w.Chunks().All())
}

func (s *ChunkStorage) invalidate(ctx context.Context, key string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.logger.Warn("Инвалидация кеша %s: %v", key, err)
	}
}

func (s *ChunkStorage) read(ctx context.Context, key string) ([]byte, error) {
	if s.cache != nil {
		return s.cache.Get(ctx, key)
	}
	return s.cold.Load(ctx, key)
}

// Load читает запись чанка. Отсутствующий чанк даёт ErrChunkNotFound.
func (s *ChunkStorage) Load(ctx context.Context, origin vec.Vec3) (ChunkRecord, error) {
	data, err := s.read(ctx, ChunkKey(origin))
	if cache.IsCacheMiss(err) {
		return ChunkRecord{}, fmt.Errorf("%w: %v", ErrChunkNotFound, origin)
	}
	if err != nil {
		return ChunkRecord{}, err
	}
	return s.decode(origin, data)
}

// LoadChunk заполняет чанк сохранённым содержимым. Вызывается воркерами мира.
func (s *ChunkStorage) LoadChunk(ctx context.Context, c *world.Chunk) (bool, error) {
	rec, err := s.Load(ctx, c.Offset)
	if errors.Is(err, ErrChunkNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rec.Apply(c); err != nil {
		return false, err
	}
	return true, nil
}

// Restore добавляет сохранённый чанк в мир
func (s *ChunkStorage) Restore(ctx context.Context, w *world.World, origin vec.Vec3) (*world.Chunk, error) {
	rec, err := s.Load(ctx, origin)
	if err != nil {
		return nil, err
	}
	return w.AddChunk(origin, rec.Apply)
}

// RestoreAll добавляет в мир все сохранённые чанки. Повреждённые записи пропускаются.
func (s *ChunkStorage) RestoreAll(ctx context.Context, w *world.World) (int, error) {
	origins, err := s.Origins(ctx)
	if err != nil {
		return 0, err
	}
	restored := 0
	for _, origin := range origins {
		if _, err := s.Restore(ctx, w, origin); err != nil {
			if ctx.Err() != nil {
				return restored, ctx.Err()
			}
			s.logger.Warn("Чанк %v не восстановлен: %v", origin, err)
			continue
		}
		restored++
	}
	s.logger.Info("Восстановлено чанков: %d из %d", restored, len(origins))
	return restored, nil
}

// Delete удаляет сохранённый чанк
func (s *ChunkStorage) Delete(ctx context.Context, origin vec.Vec3) error {
	key := ChunkKey(origin)
	if err := s.cold.Delete(ctx, key); err != nil {
		return err
	}
	s.invalidate(ctx, key)
	return nil
}

// Origins возвращает начала всех сохранённых чанков
func (s *ChunkStorage) Origins(ctx context.Context) ([]vec.Vec3, error) {
	keys, err := s.cold.Keys(ctx, chunkKeyPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]vec.Vec3, 0, len(keys))
	for _, key := range keys {
		origin, err := ParseChunkKey(key)
		if err != nil {
			s.logger.Warn("Пропущен ключ %q: %v", key, err)
			continue
		}
		out = append(out, origin)
	}
	return out, nil
}
