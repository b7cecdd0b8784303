package storage

import (
	"context"
	"testing"

	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world"
	"github.com/annel0/voxel-engine/internal/world/block"
	"github.com/annel0/voxel-engine/internal/world/block/implementations"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func testSettings() world.Settings {
	s := world.DefaultSettings()
	s.MaxSize = vec.New(32, 32, 16)
	s.ChunkSize = vec.Splat(16)
	s.VoxelSize = 1
	return s
}

type worldOptions struct {
	catalog  *block.Catalog
	settings *world.Settings
	generate bool
	source   world.ChunkSource
}

func newTestWorld(t *testing.T, o worldOptions) *world.World {
	t.Helper()

	if o.catalog == nil {
		o.catalog = implementations.MustStandard()
	}
	settings := testSettings()
	if o.settings != nil {
		settings = *o.settings
	}
	opts := world.Options{
		Settings:      settings,
		Catalog:       o.catalog,
		Authoritative: true,
		Headless:      true,
		Source:        o.source,
	}
	if o.generate {
		stone := o.catalog.MustLookup(implementations.NameStone)
		opts.Generator = &world.FlatGenerator{Layers: []block.BlockID{stone, stone}}
	}
	w, err := world.New(opts)
	require.NoError(t, err)
	t.Cleanup(w.Destroy)
	return w
}

func settle(w *world.World) {
	w.Scheduler().Drain(context.Background(), 10000)
	w.Tick()
}

func openStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := OpenBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// buildEditedChunk генерирует чанк в начале координат и добавляет в него
// стекло, воду с глубиной 2 и сущность.
func buildEditedChunk(t *testing.T, w *world.World) *world.Chunk {
	t.Helper()

	c, err := w.GetOrCreateChunk(vec.Vec3{})
	require.NoError(t, err)
	settle(w)
	require.True(t, c.FirstUpdateDone())

	catalog := w.Catalog()
	require.True(t, w.SetBlock(vec.New(3, 3, 5), catalog.MustLookup(implementations.NameGlass), 0))
	require.True(t, w.SetBlock(vec.New(4, 4, 5), catalog.MustLookup(implementations.NameWater), 0))
	st, ok := w.GetOrCreateState(vec.New(4, 4, 5)).(*block.LiquidState)
	require.True(t, ok)
	st.Depth = 2

	c.SetEntity(vec.New(1, 1, 2), &world.StoredEntity{
		ClassName: "sign",
		Pos:       mgl32.Vec3{1.5, 1.5, 2},
		Rot:       mgl32.QuatIdent(),
		Data:      []byte("привет"),
	})
	return c
}
