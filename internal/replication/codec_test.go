package replication

import (
	"testing"

	"github.com/annel0/voxel-engine/internal/protocol"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world"
	"github.com/annel0/voxel-engine/internal/world/block"
	"github.com/annel0/voxel-engine/internal/world/block/implementations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	w := newTestWorld(t, true)

	snap := NewSnapshot(w)
	decoded, err := DecodeSnapshot(EncodeSnapshot(snap))
	require.NoError(t, err)

	assert.Equal(t, w.Settings(), decoded.Settings)
	require.Len(t, decoded.Blocks, w.Catalog().Len())
	assert.Equal(t, implementations.NameStone, decoded.Blocks[w.Catalog().MustLookup(implementations.NameStone)].Name)
	assert.NoError(t, decoded.CheckCatalog(w.Catalog()))
}

func TestSnapshotDetectsCatalogMismatch(t *testing.T) {
	w := newTestWorld(t, true)
	snap := NewSnapshot(w)
	snap.Blocks[1].ID, snap.Blocks[2].ID = snap.Blocks[2].ID, snap.Blocks[1].ID

	assert.ErrorIs(t, snap.CheckCatalog(w.Catalog()), ErrCatalogMismatch)

	snap = NewSnapshot(w)
	snap.Blocks = snap.Blocks[:len(snap.Blocks)-1]
	assert.ErrorIs(t, snap.CheckCatalog(w.Catalog()), ErrCatalogMismatch)
}

func TestDecodeSnapshotRejectsTruncated(t *testing.T) {
	w := newTestWorld(t, true)
	data := EncodeSnapshot(NewSnapshot(w))

	_, err := DecodeSnapshot(data[:len(data)-3])
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestChunkRoundTripIsBitExact(t *testing.T) {
	w := newTestWorld(t, true)
	c, err := w.GetOrCreateChunk(vec.Zero)
	require.NoError(t, err)
	settle(w)
	require.True(t, c.FirstUpdateDone())

	water := w.Catalog().MustLookup(implementations.NameWater)
	require.True(t, w.SetBlock(vec.New(3, 3, 2), water, 0))
	require.NotNil(t, w.GetOrCreateState(vec.New(3, 3, 2)))
	settle(w)

	payloads, dropped, err := DecodeChunks(EncodeChunks([]*world.Chunk{c}), c.Size, w.Catalog())
	require.NoError(t, err)
	assert.Zero(t, dropped)
	require.Len(t, payloads, 1)

	p := payloads[0]
	assert.Equal(t, c.Offset, p.Origin)
	assert.False(t, p.HasOnlyAir)
	assert.Equal(t, c.Snapshot(), p.Blocks)
	assert.Equal(t, c.Light().Serialize(), p.Light)
	assert.Equal(t, c.StateEntries(), p.States)
}

func TestAirChunkOmitsBlocks(t *testing.T) {
	w := newTestWorld(t, true)
	c, err := w.GetOrCreateChunk(vec.Zero)
	require.NoError(t, err)
	settle(w)

	// Чанк без прохода генерации состоит из воздуха
	air, err := w.GetOrCreateChunk(vec.New(16, 0, 0))
	require.NoError(t, err)

	full := EncodeChunks([]*world.Chunk{c})
	empty := EncodeChunks([]*world.Chunk{air})
	assert.Equal(t, len(full)-c.Size.Volume(), len(empty), "блоки пустого чанка не передаются")

	payloads, _, err := DecodeChunks(empty, air.Size, w.Catalog())
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.True(t, payloads[0].HasOnlyAir)
	assert.Nil(t, payloads[0].Blocks)
}

func TestMalformedStateEntryIsDropped(t *testing.T) {
	w := newTestWorld(t, true)
	water := w.Catalog().MustLookup(implementations.NameWater)

	pw := protocol.NewWriter()
	pw.WriteInt(1) // один чанк
	pw.WriteVec3(vec.Zero)
	pw.WriteInt(3) // три записи

	// Корректная запись
	good := protocol.NewWriter()
	(&block.LiquidState{Depth: 5}).Serialize(good)
	pw.WriteBool(true)
	pw.WriteVec3(vec.New(1, 1, 1))
	pw.WriteU8(uint8(water))
	pw.WriteBlob(good.Bytes())

	// Обрезанное состояние жидкости
	pw.WriteBool(true)
	pw.WriteVec3(vec.New(2, 2, 2))
	pw.WriteU8(uint8(water))
	pw.WriteBlob([]byte{7})

	// Состояние у воздуха
	pw.WriteBool(true)
	pw.WriteVec3(vec.New(3, 3, 3))
	pw.WriteU8(uint8(block.AirID))
	pw.WriteBlob([]byte{1})

	diffs, dropped, err := DecodeStateDiffs(pw.Bytes(), w.Settings().ChunkSize, w.Catalog())
	require.NoError(t, err, "повреждённые записи не должны прерывать пакет")
	assert.Equal(t, 2, dropped)
	require.Len(t, diffs, 1)
	require.Len(t, diffs[0].Entries, 1)

	st, ok := diffs[0].Entries[0].State.(*block.LiquidState)
	require.True(t, ok)
	assert.Equal(t, uint8(5), st.Depth)
}

func TestStateRemovalIsEncodedAsInvalidEntry(t *testing.T) {
	w := newTestWorld(t, true)
	diffs := []world.StateDiff{{
		Origin:  vec.New(16, 0, 0),
		Entries: []world.StateEntry{{Local: vec.New(4, 5, 6), ID: block.AirID}},
	}}

	decoded, dropped, err := DecodeStateDiffs(EncodeStateDiffs(diffs), w.Settings().ChunkSize, w.Catalog())
	require.NoError(t, err)
	assert.Zero(t, dropped)
	assert.Equal(t, diffs, decoded)
}

func TestBlockDiffAndUnloadRoundTrip(t *testing.T) {
	updates := []world.BlockUpdate{
		{Pos: vec.New(1, 2, 3), ID: 4, Direction: 2},
		{Pos: vec.New(31, 0, 15), ID: 0, Direction: -1},
	}
	decoded, err := DecodeBlockDiff(EncodeBlockDiff(updates))
	require.NoError(t, err)
	assert.Equal(t, updates, decoded)

	origins := []vec.Vec3{vec.Zero, vec.New(16, 16, 0)}
	gotOrigins, err := DecodeUnload(EncodeUnload(origins))
	require.NoError(t, err)
	assert.Equal(t, origins, gotOrigins)
}

func TestDecodeRejectsImplausibleCount(t *testing.T) {
	pw := protocol.NewWriter()
	pw.WriteInt(1 << 30)

	_, err := DecodeBlockDiff(pw.Bytes())
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = DecodeUnload(pw.Bytes())
	assert.ErrorIs(t, err, ErrMalformed)
}
