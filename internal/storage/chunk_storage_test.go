package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/annel0/voxel-engine/internal/cache"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world"
	"github.com/annel0/voxel-engine/internal/world/block"
	"github.com/annel0/voxel-engine/internal/world/block/implementations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChunkStorage(t *testing.T, store *BadgerStore, c cache.CacheRepo, w *world.World) *ChunkStorage {
	t.Helper()
	s, err := NewChunkStorage(context.Background(), store, c, w.Settings(), w.Catalog(), ChunkStorageOptions{})
	require.NoError(t, err)
	return s
}

func TestChunkKey(t *testing.T) {
	origin := vec.New(16, -32, 0)
	key := ChunkKey(origin)
	assert.Equal(t, "chunk:16:-32:0", key)

	parsed, err := ParseChunkKey(key)
	require.NoError(t, err)
	assert.Equal(t, origin, parsed)

	for _, bad := range []string{"meta:world", "chunk:1:2", "chunk:a:0:0"} {
		_, err := ParseChunkKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestSaveAndRestoreChunk(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	src := newTestWorld(t, worldOptions{generate: true})
	c := buildEditedChunk(t, src)
	require.NoError(t, newChunkStorage(t, store, nil, src).Save(ctx, c))

	dst := newTestWorld(t, worldOptions{})
	storage := newChunkStorage(t, store, nil, dst)
	restored, err := storage.Restore(ctx, dst, vec.Vec3{})
	require.NoError(t, err)

	assert.Equal(t, c.Snapshot(), restored.Snapshot())
	st, ok := dst.GetState(vec.New(4, 4, 5)).(*block.LiquidState)
	require.True(t, ok, "состояние воды восстановлено")
	assert.Equal(t, uint8(2), st.Depth)
	assert.Equal(t, 0, restored.States().DirtyCount(), "восстановленные состояния не реплицируются")

	e, ok := restored.Entity(vec.New(1, 1, 2)).(*world.StoredEntity)
	require.True(t, ok)
	assert.Equal(t, "sign", e.ClassName)
	assert.Equal(t, []byte("привет"), e.Data)

	settle(dst)
	assert.True(t, restored.FirstUpdateDone())
	assert.Equal(t, uint8(15), dst.GetLight(world.ChannelSun, vec.New(8, 8, 15)), "солнце засеяно заново")
}

func TestLoadMissingChunk(t *testing.T) {
	w := newTestWorld(t, worldOptions{})
	s := newChunkStorage(t, openStore(t), nil, w)

	_, err := s.Load(context.Background(), vec.New(16, 0, 0))
	assert.True(t, errors.Is(err, ErrChunkNotFound))
}

func TestCorruptRecordRejected(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	w := newTestWorld(t, worldOptions{})
	s := newChunkStorage(t, store, nil, w)

	require.NoError(t, store.Store(ctx, ChunkKey(vec.Vec3{}), []byte("не zstd")))
	_, err := s.Load(ctx, vec.Vec3{})
	assert.True(t, errors.Is(err, ErrCorruptRecord))
}

func TestIncompatibleSettingsRejected(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	w := newTestWorld(t, worldOptions{})
	newChunkStorage(t, store, nil, w)

	other := testSettings()
	other.ChunkSize = vec.Splat(8)
	_, err := NewChunkStorage(ctx, store, nil, other, w.Catalog(), ChunkStorageOptions{})
	assert.True(t, errors.Is(err, ErrIncompatible))
}

func TestCatalogRemap(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	src := newTestWorld(t, worldOptions{generate: true})
	c := buildEditedChunk(t, src)
	require.NoError(t, newChunkStorage(t, store, nil, src).Save(ctx, c))

	// Другой порядок регистрации и без воды
	catalog := block.NewCatalog()
	catalog.MustRegister(&implementations.GlassBehavior{})
	stone := catalog.MustRegister(&implementations.StoneBehavior{})
	catalog.Freeze()

	dst := newTestWorld(t, worldOptions{catalog: catalog})
	s := newChunkStorage(t, store, nil, dst)
	rec, err := s.Load(ctx, vec.Vec3{})
	require.NoError(t, err)

	restored := world.NewChunk(vec.Vec3{}, dst.Settings().ChunkSize)
	require.NoError(t, rec.Apply(restored))
	assert.Equal(t, stone, restored.BlockAt(vec.New(0, 0, 0)), "камень получил новый ID")
	assert.Equal(t, catalog.MustLookup(implementations.NameGlass), restored.BlockAt(vec.New(3, 3, 5)))
	assert.Equal(t, block.AirID, restored.BlockAt(vec.New(4, 4, 5)), "неизвестная вода стала воздухом")
	assert.Nil(t, restored.States().Get(vec.New(4, 4, 5)))
	assert.Equal(t, 1, s.Dropped(), "состояние воды отброшено")
}

func TestChunkSourceRestoresBeforeGenerating(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	src := newTestWorld(t, worldOptions{generate: true})
	c := buildEditedChunk(t, src)
	require.NoError(t, newChunkStorage(t, store, nil, src).Save(ctx, c))

	catalogWorld := newTestWorld(t, worldOptions{})
	source := newChunkStorage(t, store, nil, catalogWorld)
	dst := newTestWorld(t, worldOptions{generate: true, source: source})

	saved, err := dst.GetOrCreateChunk(vec.Vec3{})
	require.NoError(t, err)
	fresh, err := dst.GetOrCreateChunk(vec.New(16, 0, 0))
	require.NoError(t, err)
	settle(dst)

	glass := dst.Catalog().MustLookup(implementations.NameGlass)
	assert.Equal(t, glass, saved.BlockAt(vec.New(3, 3, 5)), "чанк восстановлен из хранилища")
	assert.Equal(t, dst.Catalog().MustLookup(implementations.NameStone), fresh.BlockAt(vec.New(0, 0, 0)),
		"несохранённый чанк сгенерирован")
	assert.True(t, saved.FirstUpdateDone())
}

func TestSaveAllAndRestoreAll(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	src := newTestWorld(t, worldOptions{generate: true})
	for _, origin := range []vec.Vec3{{}, vec.New(16, 0, 0), vec.New(0, 16, 0)} {
		_, err := src.GetOrCreateChunk(origin)
		require.NoError(t, err)
	}
	settle(src)

	n, err := newChunkStorage(t, store, nil, src).SaveWorld(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	dst := newTestWorld(t, worldOptions{})
	s := newChunkStorage(t, store, nil, dst)
	origins, err := s.Origins(ctx)
	require.NoError(t, err)
	assert.Len(t, origins, 3)

	restored, err := s.RestoreAll(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, 3, restored)
	assert.Equal(t, 3, dst.Chunks().Len())

	require.NoError(t, s.Delete(ctx, vec.New(16, 0, 0)))
	origins, err = s.Origins(ctx)
	require.NoError(t, err)
	assert.Len(t, origins, 2)
}

func TestCacheServesReadsAndIsInvalidated(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	w := newTestWorld(t, worldOptions{generate: true})
	c := buildEditedChunk(t, w)

	mem := cache.NewMemoryCache(cache.MemoryOptions{TTL: time.Minute}, store, nil)
	s := newChunkStorage(t, store, mem, w)
	require.NoError(t, s.Save(ctx, c))

	_, err := s.Load(ctx, vec.Vec3{})
	require.NoError(t, err)
	_, err = s.Load(ctx, vec.Vec3{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), mem.GetMetrics().ColdLoads, "второе чтение из кеша")

	glass := w.Catalog().MustLookup(implementations.NameGlass)
	require.True(t, w.SetBlock(vec.New(6, 6, 6), glass, 0))
	require.NoError(t, s.Save(ctx, c))

	rec, err := s.Load(ctx, vec.Vec3{})
	require.NoError(t, err)
	restored := world.NewChunk(vec.Vec3{}, w.Settings().ChunkSize)
	require.NoError(t, rec.Apply(restored))
	assert.Equal(t, glass, restored.BlockAt(vec.New(6, 6, 6)), "после сохранения кеш перечитал запись")
	assert.Equal(t, int64(2), mem.GetMetrics().ColdLoads)
}
