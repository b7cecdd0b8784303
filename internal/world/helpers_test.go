package world

import (
	"context"
	"testing"
	"time"

	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
	"github.com/annel0/voxel-engine/internal/world/block/implementations"
	"github.com/stretchr/testify/require"
)

// recorderBehavior записывает вызовы хуков
type recorderBehavior struct {
	block.Base
	removed    []vec.Vec3
	added      []vec.Vec3
	neighbours []vec.Vec3
	ticks      []vec.Vec3
}

func (p *recorderBehavior) Name() string { return "recorder" }

func (p *recorderBehavior) Properties() block.Properties { return block.OpaqueProperties(1) }

func (p *recorderBehavior) OnBlockAdded(api block.BlockAPI, pos vec.Vec3, direction int) {
	p.added = append(p.added, pos)
}

func (p *recorderBehavior) OnBlockRemoved(api block.BlockAPI, pos vec.Vec3) {
	p.removed = append(p.removed, pos)
}

func (p *recorderBehavior) OnNeighbourUpdated(api block.BlockAPI, pos, neighbourPos vec.Vec3) {
	p.neighbours = append(p.neighbours, pos)
}

func (p *recorderBehavior) Tick(api block.BlockAPI, pos vec.Vec3) {
	p.ticks = append(p.ticks, pos)
}

// testClock управляемое время для тиков
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type testEnv struct {
	world    *World
	recorder *recorderBehavior
	clock    *testClock

	recorderID block.BlockID
	stoneID    block.BlockID
	waterID    block.BlockID
	lampID     block.BlockID
}

func testSettings(world, chunk int) Settings {
	s := DefaultSettings()
	s.MaxSize = vec.Splat(world)
	s.ChunkSize = vec.Splat(chunk)
	s.VoxelSize = 1
	s.ChunkRenderDistance = 1
	s.ChunkUnloadDistance = 2
	s.MinimumLoadedChunks = 1
	s.BuildCollisionInThread = true
	return s
}

func newTestEnv(t *testing.T, settings Settings, layers ...string) *testEnv {
	t.Helper()

	catalog := block.NewCatalog()
	require.NoError(t, implementations.RegisterStandard(catalog))
	recorder := &recorderBehavior{}
	recorderID, err := catalog.Register(recorder)
	require.NoError(t, err)
	catalog.Freeze()

	gen := &FlatGenerator{}
	for _, name := range layers {
		gen.Layers = append(gen.Layers, catalog.MustLookup(name))
	}

	clock := &testClock{now: time.Unix(1000, 0)}
	w, err := New(Options{
		Settings:      settings,
		Catalog:       catalog,
		Generator:     gen,
		Authoritative: true,
		Headless:      true,
		Now:           clock.Now,
	})
	require.NoError(t, err)
	t.Cleanup(w.Destroy)

	return &testEnv{
		world:      w,
		recorder:   recorder,
		clock:      clock,
		recorderID: recorderID,
		stoneID:    catalog.MustLookup(implementations.NameStone),
		waterID:    catalog.MustLookup(implementations.NameWater),
		lampID:     catalog.MustLookup(implementations.NameRedLamp),
	}
}

// loadAll создаёт все чанки мира
func (e *testEnv) loadAll(t *testing.T) {
	t.Helper()
	s := e.world.Settings()
	for x := 0; x < s.MaxSize.X; x += s.ChunkSize.X {
		for y := 0; y < s.MaxSize.Y; y += s.ChunkSize.Y {
			for z := 0; z < s.MaxSize.Z; z += s.ChunkSize.Z {
				_, err := e.world.GetOrCreateChunk(vec.New(x, y, z))
				require.NoError(t, err)
			}
		}
	}
}

// settle синхронно выполняет все задачи планировщика и применяет результаты
func (e *testEnv) settle(t *testing.T) {
	t.Helper()
	s := e.world.scheduler
	for i := 0; i < 10000; i++ {
		c, kind, ok := s.next()
		if !ok {
			e.world.Tick()
			return
		}
		s.run(context.Background(), c, kind)
	}
	t.Fatal("очереди планировщика не опустели")
}
