package replication

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/annel0/voxel-engine/internal/eventbus"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world"
	"github.com/annel0/voxel-engine/internal/world/block"
	"github.com/annel0/voxel-engine/internal/world/block/implementations"
	"github.com/stretchr/testify/require"
)

func testSettings() world.Settings {
	s := world.DefaultSettings()
	s.MaxSize = vec.New(32, 32, 16)
	s.ChunkSize = vec.Splat(16)
	s.VoxelSize = 1
	s.ChunkRenderDistance = 1
	s.ChunkUnloadDistance = 2
	s.MinimumLoadedChunks = 1
	s.BuildCollisionInThread = true
	return s
}

// newTestWorld создаёт мир со стандартным каталогом. Серверный мир получает
// плоский генератор с двумя слоями камня.
func newTestWorld(t *testing.T, authoritative bool) *world.World {
	t.Helper()

	catalog := implementations.MustStandard()
	opts := world.Options{
		Settings:      testSettings(),
		Catalog:       catalog,
		Authoritative: authoritative,
		Headless:      true,
	}
	if authoritative {
		stone := catalog.MustLookup(implementations.NameStone)
		opts.Generator = &world.FlatGenerator{Layers: []block.BlockID{stone, stone}}
	}
	w, err := world.New(opts)
	require.NoError(t, err)
	t.Cleanup(w.Destroy)
	return w
}

// settle синхронно выполняет задачи планировщика и применяет результаты
func settle(w *world.World) {
	w.Scheduler().Drain(context.Background(), 10000)
	w.Tick()
}

// recordingBus шина, запоминающая опубликованные конверты
type recordingBus struct {
	mu        sync.Mutex
	published []*eventbus.Envelope
	fail      error
}

func (b *recordingBus) Publish(ctx context.Context, ev *eventbus.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	b.published = append(b.published, ev)
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, f eventbus.Filter, h eventbus.Handler) (eventbus.Subscription, error) {
	return nopSubscription{}, nil
}

func (b *recordingBus) Metrics() eventbus.Stats { return eventbus.Stats{} }

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) envelopes(eventType string) []*eventbus.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*eventbus.Envelope
	for _, ev := range b.published {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func (b *recordingBus) setFail(err error) {
	b.mu.Lock()
	b.fail = err
	b.mu.Unlock()
}

type nopSubscription struct{}

func (nopSubscription) Unsubscribe() {}

var errBusDown = errors.New("шина недоступна")

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 10*time.Millisecond, msg)
}
