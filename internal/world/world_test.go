package world

import (
	"testing"
	"time"

	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
	"github.com/annel0/voxel-engine/internal/world/block/implementations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadSettings(t *testing.T) {
	catalog := implementations.MustStandard()

	s := testSettings(16, 16)
	s.ChunkSize = vec.Splat(64)
	_, err := New(Options{Settings: s, Catalog: catalog})
	assert.Error(t, err, "чанк 64 не помещается в упаковку вершин")

	s = testSettings(20, 16)
	_, err = New(Options{Settings: s, Catalog: catalog})
	assert.Error(t, err, "размер мира должен быть кратен размеру чанка")

	_, err = New(Options{Settings: testSettings(16, 16), Catalog: block.NewCatalog()})
	assert.Error(t, err, "каталог должен быть заморожен")
}

func TestWorldBounds(t *testing.T) {
	env := newTestEnv(t, testSettings(16, 8), implementations.NameStone)
	env.loadAll(t)
	env.settle(t)
	w := env.world

	assert.True(t, w.IsInBounds(vec.New(15, 15, 15)))
	assert.False(t, w.IsInBounds(vec.New(16, 0, 0)))
	assert.False(t, w.IsInBounds(vec.New(0, -1, 0)))

	assert.Equal(t, block.AirID, w.GetBlock(vec.New(-1, 0, 0)), "вне мира всегда воздух")
	assert.False(t, w.SetBlock(vec.New(0, 0, 16), env.stoneID, 0), "запись вне мира отклоняется")
	assert.Nil(t, w.GetChunk(vec.New(0, 0, 16)))

	_, err := w.GetOrCreateChunk(vec.New(3, 0, 0))
	assert.ErrorIs(t, err, ErrOutOfBounds, "начало чанка должно быть выровнено")

	assert.Equal(t, vec.New(8, 0, 8), w.ToChunkOffset(vec.New(9, 7, 15)))
	assert.Equal(t, vec.New(1, 7, 7), w.ToLocal(vec.New(9, 7, 15)))
}

func TestWorldGeneratesAndPublishesChunks(t *testing.T) {
	env := newTestEnv(t, testSettings(16, 8), implementations.NameStone, implementations.NameStone)
	env.loadAll(t)
	env.settle(t)
	w := env.world

	assert.Equal(t, 8, w.Chunks().Len())
	for _, c := range w.Chunks().All() {
		assert.True(t, c.Generated(), "чанк %v должен быть сгенерирован", c.Offset)
		assert.True(t, c.FirstUpdateDone(), "чанк %v должен пройти первый проход", c.Offset)
		assert.Equal(t, LifecycleLive, c.Lifecycle())
		assert.NotNil(t, c.Mesh(), "геометрия чанка %v должна быть применена", c.Offset)
	}

	assert.Equal(t, env.stoneID, w.GetBlock(vec.New(3, 3, 1)))
	assert.Equal(t, block.AirID, w.GetBlock(vec.New(3, 3, 2)))
}

func TestSunLightsOpenColumn(t *testing.T) {
	env := newTestEnv(t, testSettings(16, 16), implementations.NameStone)
	env.loadAll(t)
	env.settle(t)
	w := env.world

	assert.Equal(t, uint8(MaxLight), w.GetLight(ChannelSun, vec.New(5, 5, 15)), "верхний слой освещён солнцем")
	assert.Equal(t, uint8(MaxLight), w.GetLight(ChannelSun, vec.New(5, 5, 1)), "солнце проходит столб без ослабления")
	assert.Equal(t, uint8(0), w.GetLight(ChannelSun, vec.New(5, 5, 0)), "камень не освещается")
}

func TestOpaqueBlockShadowsColumn(t *testing.T) {
	env := newTestEnv(t, testSettings(16, 16))
	env.loadAll(t)
	env.settle(t)
	w := env.world

	require.Equal(t, uint8(MaxLight), w.GetLight(ChannelSun, vec.New(5, 5, 10)))

	pos := vec.New(6, 5, 10)
	require.True(t, w.SetBlockAndUpdate(pos, env.stoneID, 0, false))
	env.settle(t)

	assert.Equal(t, uint8(0), w.GetLight(ChannelSun, pos), "непрозрачный блок не хранит свет")
	assert.Equal(t, uint8(MaxLight), w.GetLight(ChannelSun, vec.New(6, 5, 11)), "свет над блоком сохраняется")
	assert.Equal(t, uint8(MaxLight), w.GetLight(ChannelSun, vec.New(5, 5, 10)), "соседний столб не затронут")
	assert.Equal(t, uint8(MaxLight-1), w.GetLight(ChannelSun, vec.New(6, 5, 9)), "под блоком свет приходит сбоку")
}

func torchSettings() Settings {
	s := testSettings(16, 16)
	s.MaxSize = vec.New(16, 16, 32)
	return s
}

func TestTorchLightAddRemoveRestoresDarkness(t *testing.T) {
	env := newTestEnv(t, torchSettings())
	_, err := env.world.GetOrCreateChunk(vec.Zero)
	require.NoError(t, err)
	env.settle(t)
	w := env.world
	c := w.GetChunk(vec.Zero)
	before := c.Light().Serialize()

	lamp := vec.New(8, 8, 8)
	require.True(t, w.SetBlockAndUpdate(lamp, env.lampID, 0, false))
	env.settle(t)

	assert.Equal(t, uint8(15), w.GetLight(ChannelRed, lamp))
	assert.Equal(t, uint8(14), w.GetLight(ChannelRed, vec.New(9, 8, 8)))
	assert.Equal(t, uint8(12), w.GetLight(ChannelRed, vec.New(8, 11, 8)))
	assert.Equal(t, uint8(0), w.GetLight(ChannelGreen, vec.New(9, 8, 8)), "каналы независимы")
	assert.Equal(t, uint8(0), w.GetLight(ChannelSun, vec.New(9, 8, 8)), "чанк не касается верха мира")

	require.True(t, w.SetBlockAndUpdate(lamp, block.AirID, 0, false))
	env.settle(t)

	after := c.Light().Serialize()
	for i := range before {
		if i%BytesPerVoxel > 1 {
			continue
		}
		require.Equal(t, before[i], after[i], "освещение должно вернуться к исходному (байт %d)", i)
	}
}

// seamSettings два чанка вдоль X
func seamSettings() Settings {
	s := testSettings(16, 16)
	s.MaxSize = vec.New(32, 16, 16)
	return s
}

// redChannel снимает красный канал всех загруженных чанков
func redChannel(w *World) map[vec.Vec3]uint8 {
	out := make(map[vec.Vec3]uint8)
	for _, c := range w.Chunks().All() {
		for i := 0; i < c.Size.Volume(); i++ {
			local := c.LocalFromIndex(i)
			if v := c.Light().Get(ChannelRed, local); v > 0 {
				out[c.Offset.Add(local)] = v
			}
		}
	}
	return out
}

func TestTorchLightCrossesChunkSeam(t *testing.T) {
	env := newTestEnv(t, seamSettings())
	env.loadAll(t)
	env.settle(t)
	w := env.world

	lamp := vec.New(14, 8, 4)
	require.True(t, w.SetBlockAndUpdate(lamp, env.lampID, 0, false))
	env.settle(t)

	assert.Equal(t, uint8(15), w.GetLight(ChannelRed, lamp))
	assert.Equal(t, uint8(13), w.GetLight(ChannelRed, vec.New(16, 8, 4)), "первый воксель соседнего чанка")
	assert.Equal(t, uint8(9), w.GetLight(ChannelRed, vec.New(20, 8, 4)))
	assert.Equal(t, uint8(8), w.GetLight(ChannelRed, vec.New(20, 9, 4)))
	for _, c := range w.Chunks().All() {
		assert.False(t, c.Light().Pending(), "очереди чанка %v должны опустеть", c.Offset)
	}

	require.True(t, w.SetBlockAndUpdate(lamp, block.AirID, 0, false))
	env.settle(t)
	assert.Empty(t, redChannel(w), "после удаления лампы оба чанка тёмные")
}

func TestTorchLightReaddMatchesFirstPlacement(t *testing.T) {
	env := newTestEnv(t, seamSettings())
	env.loadAll(t)
	env.settle(t)
	w := env.world

	lamp := vec.New(13, 5, 6)
	require.True(t, w.SetBlockAndUpdate(lamp, env.lampID, 0, false))
	env.settle(t)
	first := redChannel(w)
	require.NotEmpty(t, first)

	require.True(t, w.SetBlockAndUpdate(lamp, block.AirID, 0, false))
	env.settle(t)
	require.Empty(t, redChannel(w))

	require.True(t, w.SetBlockAndUpdate(lamp, env.lampID, 0, false))
	env.settle(t)
	assert.Equal(t, first, redChannel(w), "повторная установка даёт то же поле")
}

func TestSetBlockNotifiesAndQueuesNeighbours(t *testing.T) {
	env := newTestEnv(t, testSettings(12, 6))
	env.loadAll(t)
	env.settle(t)
	w := env.world

	pos := vec.New(5, 5, 5)
	require.True(t, w.SetBlock(pos, env.recorderID, 0))
	assert.Equal(t, []vec.Vec3{pos}, env.recorder.added)
	env.settle(t)

	assert.False(t, w.SetBlockAndUpdate(pos, env.recorderID, 0, false), "тот же ID ничего не меняет")

	require.True(t, w.SetBlockAndUpdate(pos, env.stoneID, 0, false))
	assert.Equal(t, []vec.Vec3{pos}, env.recorder.removed, "старый блок получает OnBlockRemoved")

	_, full := w.Scheduler().QueueLengths()
	assert.Equal(t, 4, full, "чанк позиции и три смежных чанка")
	for _, origin := range []vec.Vec3{vec.Zero, vec.New(6, 0, 0), vec.New(0, 6, 0), vec.New(0, 0, 6)} {
		assert.Equal(t, LifecyclePendingFullUpdate, w.Chunks().Get(origin).Lifecycle(), "чанк %v", origin)
	}
	assert.Equal(t, LifecycleLive, w.Chunks().Get(vec.New(6, 6, 0)).Lifecycle())

	updates := w.DrainBlockUpdates(DefaultBlockUpdateBatch)
	require.Len(t, updates, 2)
	assert.Equal(t, BlockUpdate{Pos: pos, ID: env.stoneID}, updates[1])
	assert.Zero(t, w.PendingBlockUpdates())
}

func TestSetBlockNotifiesNeighbourBlocks(t *testing.T) {
	env := newTestEnv(t, testSettings(8, 8))
	env.loadAll(t)
	env.settle(t)
	w := env.world

	watchedPos := vec.New(4, 4, 4)
	require.True(t, w.SetBlock(watchedPos, env.recorderID, 0))
	require.True(t, w.SetBlock(vec.New(4, 4, 5), env.stoneID, 0))
	require.True(t, w.SetBlock(vec.New(3, 4, 4), env.stoneID, 0))

	assert.Equal(t, []vec.Vec3{watchedPos, watchedPos}, env.recorder.neighbours)
}

func TestBlockTicksDeduplicatedAndChecked(t *testing.T) {
	env := newTestEnv(t, testSettings(8, 8))
	env.loadAll(t)
	env.settle(t)
	w := env.world

	pos := vec.New(2, 2, 2)
	require.True(t, w.SetBlock(pos, env.recorderID, 0))

	w.QueueBlockTick(pos, env.recorderID, 100*time.Millisecond)
	w.QueueBlockTick(pos, env.recorderID, 10*time.Millisecond)
	assert.Equal(t, 1, w.PendingTicks(), "повторный тик той же пары игнорируется")

	w.Tick()
	assert.Empty(t, env.recorder.ticks, "тик ещё не созрел")

	env.clock.Advance(100 * time.Millisecond)
	w.Tick()
	assert.Equal(t, []vec.Vec3{pos}, env.recorder.ticks)

	w.QueueBlockTick(pos, env.recorderID, 0)
	require.True(t, w.SetBlock(pos, env.stoneID, 0))
	w.Tick()
	assert.Len(t, env.recorder.ticks, 1, "тик не срабатывает, если блок сменился")
}

func TestLiquidFallsThroughWorld(t *testing.T) {
	env := newTestEnv(t, testSettings(8, 8), implementations.NameStone, implementations.NameStone)
	env.loadAll(t)
	env.settle(t)
	w := env.world

	pos := vec.New(4, 4, 5)
	require.True(t, w.SetBlockAndUpdate(pos, env.waterID, 0, false))
	st, ok := w.GetOrCreateState(pos).(*block.LiquidState)
	require.True(t, ok)
	st.Depth = 3

	env.clock.Advance(implementations.LiquidTickDelay)
	w.Tick()

	below := vec.New(4, 4, 4)
	require.Equal(t, env.waterID, w.GetBlock(below), "вода стекает вниз")
	belowState, ok := w.GetState(below).(*block.LiquidState)
	require.True(t, ok)
	assert.Equal(t, uint8(2), belowState.Depth)
	assert.Equal(t, block.AirID, w.GetBlock(vec.New(3, 4, 5)), "без опоры вода не растекается в стороны")

	diffs := w.DrainDirtyStates(DefaultStateBatch)
	require.Len(t, diffs, 1)
	assert.Equal(t, vec.Zero, diffs[0].Origin)
}

func TestLiquidAtZeroDepthDoesNotSpread(t *testing.T) {
	env := newTestEnv(t, testSettings(8, 8), implementations.NameStone)
	env.loadAll(t)
	env.settle(t)
	w := env.world

	pos := vec.New(2, 2, 4)
	require.True(t, w.SetBlock(pos, env.waterID, 0))
	require.NoError(t, w.SetState(pos, &block.LiquidState{Depth: 0}))

	env.clock.Advance(time.Second)
	w.Tick()

	assert.Equal(t, block.AirID, w.GetBlock(vec.New(2, 2, 3)))
	assert.Equal(t, block.AirID, w.GetBlock(vec.New(3, 2, 4)))
}

func TestStateReplicationQueue(t *testing.T) {
	env := newTestEnv(t, testSettings(16, 8))
	env.loadAll(t)
	env.settle(t)
	w := env.world
	w.DrainDirtyStates(DefaultStateBatch)

	a := vec.New(1, 1, 1)
	b := vec.New(9, 1, 1)
	require.NoError(t, w.SetState(a, &block.BaseState{HealthValue: 7}))
	require.NoError(t, w.SetState(b, &block.BaseState{HealthValue: 9}))

	diffs := w.DrainDirtyStates(1)
	require.Len(t, diffs, 1, "лимит пакета соблюдается")
	require.Len(t, diffs[0].Entries, 1)

	w.RestoreDirtyStates(diffs)
	diffs = w.DrainDirtyStates(DefaultStateBatch)
	require.Len(t, diffs, 2)
	assert.Equal(t, vec.Zero, diffs[0].Origin)
	assert.Equal(t, uint8(7), diffs[0].Entries[0].State.Health())

	assert.True(t, w.RemoveState(a))
	diffs = w.DrainDirtyStates(DefaultStateBatch)
	require.Len(t, diffs, 1)
	assert.Nil(t, diffs[0].Entries[0].State, "удалённое состояние уходит как nil")
}

func TestUnloadChunkReleasesEntities(t *testing.T) {
	env := newTestEnv(t, testSettings(16, 8))
	env.loadAll(t)
	env.settle(t)
	w := env.world

	c := w.GetChunk(vec.Zero)
	e := &StoredEntity{ClassName: "chest"}
	c.SetEntity(vec.New(1, 1, 1), e)
	w.QueueBlockTick(vec.New(1, 1, 1), env.stoneID, time.Second)

	require.True(t, w.UnloadChunk(vec.Zero))
	assert.True(t, e.Released())
	assert.True(t, c.Destroyed())
	assert.Zero(t, w.PendingTicks(), "тики выгруженного чанка отбрасываются")
	assert.Nil(t, w.GetChunk(vec.New(1, 1, 1)))
	assert.False(t, w.UnloadChunk(vec.Zero))
}

func TestDestroyStopsTicks(t *testing.T) {
	env := newTestEnv(t, testSettings(8, 8))
	env.loadAll(t)
	env.settle(t)
	w := env.world

	w.Destroy()
	assert.True(t, w.Destroyed())
	assert.Zero(t, w.Chunks().Len())

	count := w.TickCount()
	w.Tick()
	assert.Equal(t, count, w.TickCount())
}
