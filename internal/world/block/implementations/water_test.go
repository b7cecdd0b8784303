package implementations

import (
	"testing"

	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupWater(t *testing.T) (*mockBlockAPI, *LiquidBehavior, block.BlockID, block.BlockID) {
	t.Helper()
	catalog := MustStandard()
	waterID := catalog.MustLookup(NameWater)
	stoneID := catalog.MustLookup(NameStone)
	water, ok := catalog.Get(waterID).Behavior.(*LiquidBehavior)
	require.True(t, ok, "вода должна быть жидкостью")
	return newMockBlockAPI(catalog, vec.New(5, 5, 5)), water, waterID, stoneID
}

func placeWater(api *mockBlockAPI, id block.BlockID, pos vec.Vec3, depth uint8) {
	api.blocks[pos] = id
	api.states[pos] = &block.LiquidState{Depth: depth}
}

func TestLiquidFallsWithDecreasingDepth(t *testing.T) {
	api, water, waterID, _ := setupWater(t)
	pos := vec.New(2, 2, 3)
	placeWater(api, waterID, pos, 5)

	water.Tick(api, pos)

	below := vec.New(2, 2, 2)
	assert.Equal(t, waterID, api.GetBlock(below), "вода должна стечь вниз")
	assert.Equal(t, uint8(4), api.depth(below), "глубина снизу уменьшается на 1")
	assert.Contains(t, api.ticks, below, "для новой воды должен быть запланирован тик")
	assert.Equal(t, LiquidTickDelay, api.ticks[below])
}

func TestLiquidSpreadsOnGround(t *testing.T) {
	api, water, waterID, stoneID := setupWater(t)
	for x := 0; x < 5; x++ {
		for y := 0; y < 5; y++ {
			api.blocks[vec.New(x, y, 0)] = stoneID
		}
	}
	pos := vec.New(2, 2, 1)
	placeWater(api, waterID, pos, 3)

	water.Tick(api, pos)

	for f := block.Face(0); f < block.FaceCount; f++ {
		nb := f.Neighbour(pos)
		if !f.Horizontal() {
			continue
		}
		assert.Equal(t, waterID, api.GetBlock(nb), "вода должна растечься на %s", f)
		assert.Equal(t, uint8(2), api.depth(nb), "глубина соседа %s", f)
	}
	assert.Equal(t, block.AirID, api.GetBlock(vec.New(2, 2, 2)), "вверх вода не течёт")
}

func TestLiquidAtZeroDepthDoesNotSpread(t *testing.T) {
	api, water, waterID, _ := setupWater(t)
	pos := vec.New(2, 2, 3)
	placeWater(api, waterID, pos, 0)

	water.Tick(api, pos)

	assert.Len(t, api.blocks, 1, "при глубине 0 мир не меняется")
	assert.Empty(t, api.ticks, "новые тики не планируются")
}

func TestLiquidDoesNotFlowOutOfBounds(t *testing.T) {
	api, water, waterID, stoneID := setupWater(t)
	api.blocks[vec.New(0, 0, 0)] = stoneID
	pos := vec.New(0, 0, 1)
	placeWater(api, waterID, pos, 2)

	water.Tick(api, pos)

	for pos := range api.blocks {
		assert.True(t, api.IsInBounds(pos), "блок %v вне мира", pos)
	}
}

func TestLiquidNonAuthoritativeIsIdle(t *testing.T) {
	api, water, waterID, _ := setupWater(t)
	api.authoritative = false
	pos := vec.New(2, 2, 3)
	placeWater(api, waterID, pos, 5)

	water.Tick(api, pos)
	water.OnNeighbourUpdated(api, pos, vec.New(2, 2, 4))

	assert.Equal(t, block.AirID, api.GetBlock(vec.New(2, 2, 2)))
	assert.Empty(t, api.ticks)
}
