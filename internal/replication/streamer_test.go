package replication

import (
	"context"
	"testing"

	"github.com/annel0/voxel-engine/internal/eventbus"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world"
	"github.com/annel0/voxel-engine/internal/world/block/implementations"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type link struct {
	server, client *world.World
	pub            *Publisher
	streamer       *Streamer
	recv           *Receiver
	viewer         *world.Viewer
}

func newLink(t *testing.T) *link {
	t.Helper()
	ctx := context.Background()
	bus := eventbus.NewMemoryBus(256)
	t.Cleanup(func() { bus.Close() })

	l := &link{
		server: newTestWorld(t, true),
		client: newTestWorld(t, false),
		viewer: world.NewViewer(uuid.New(), mgl32.Vec3{8, 8, 8}),
	}

	var err error
	l.pub, err = NewPublisher(bus, l.server, PublisherOptions{Source: "server"})
	require.NoError(t, err)
	require.NoError(t, l.pub.Listen(ctx))
	t.Cleanup(l.pub.Close)
	l.streamer = NewStreamer(l.server, l.pub, 2)

	l.recv, err = NewReceiver(bus, l.client, ReceiverOptions{ID: l.viewer.ID.String()})
	require.NoError(t, err)
	require.NoError(t, l.recv.Start(ctx))
	t.Cleanup(l.recv.Stop)

	require.NoError(t, l.streamer.Join(ctx, l.viewer))
	return l
}

// step выполняет один тик сервера и клиента
func (l *link) step(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, l.streamer.Tick(ctx))
	settle(l.server)
	assert.NoError(t, l.pub.Flush(ctx))
	_, err := l.recv.Apply(ctx)
	assert.NoError(t, err)
	settle(l.client)
}

func TestStreamerReplicatesWorldToViewer(t *testing.T) {
	l := newLink(t)

	eventually(t, func() bool {
		l.step(t)
		return l.viewer.LoadedCount() == 4 && len(l.client.Chunks().All()) == 4
	}, "клиент должен получить все четыре чанка")

	snap, ok := l.recv.Snapshot()
	require.True(t, ok)
	assert.Equal(t, l.server.Settings(), snap.Settings)
	assert.True(t, l.viewer.HasLoadedMinimumChunks(l.server.Settings()))

	stone := l.server.Catalog().MustLookup(implementations.NameStone)
	assert.Equal(t, stone, l.client.GetBlock(vec.New(20, 20, 1)))
	for _, c := range l.server.Chunks().All() {
		got := l.client.Chunks().Get(c.Offset)
		require.NotNil(t, got)
		assert.Equal(t, c.Snapshot(), got.Snapshot(), "чанк %v", c.Offset)
	}

	glass := l.server.Catalog().MustLookup(implementations.NameGlass)
	pos := vec.New(17, 3, 6)
	require.True(t, l.server.SetBlockAndUpdate(pos, glass, 0, false))

	eventually(t, func() bool {
		l.step(t)
		return l.client.GetBlock(pos) == glass && l.pub.Pending() == 0
	}, "изменение блока должно дойти и быть подтверждено")
}

func TestStreamerUnloadsDistantChunks(t *testing.T) {
	l := newLink(t)
	eventually(t, func() bool {
		l.step(t)
		return len(l.client.Chunks().All()) == 4
	}, "клиент должен получить чанки")

	l.viewer.SetPosition(mgl32.Vec3{500, 500, 8})
	eventually(t, func() bool {
		l.step(t)
		return len(l.client.Chunks().All()) == 0
	}, "клиент должен выгрузить дальние чанки")
	assert.Zero(t, l.viewer.LoadedCount())
}

func TestStreamerLeave(t *testing.T) {
	l := newLink(t)

	assert.True(t, l.streamer.Leave(l.viewer.ID))
	assert.False(t, l.streamer.Leave(l.viewer.ID))
	assert.Nil(t, l.server.GetViewer(l.viewer.ID))

	glass := l.server.Catalog().MustLookup(implementations.NameGlass)
	_, err := l.server.GetOrCreateChunk(vec.Zero)
	require.NoError(t, err)
	settle(l.server)
	require.True(t, l.server.SetBlock(vec.New(1, 1, 5), glass, 0))
	require.NoError(t, l.pub.Flush(context.Background()))
	assert.Zero(t, l.pub.Pending(), "ушедший наблюдатель не задерживает пакеты")
}
