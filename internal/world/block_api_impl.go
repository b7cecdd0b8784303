package world

import (
	"time"

	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

// worldBlockAPI реализует block.BlockAPI поверх мира
type worldBlockAPI struct {
	world *World
}

// GetBlock возвращает ID блока по мировым координатам
func (api *worldBlockAPI) GetBlock(pos vec.Vec3) block.BlockID {
	return api.world.GetBlock(pos)
}

// SetBlock перенаправляет запрос в мир с обновлением затронутых чанков
func (api *worldBlockAPI) SetBlock(pos vec.Vec3, id block.BlockID, direction int) bool {
	return api.world.SetBlockAndUpdate(pos, id, direction, false)
}

func (api *worldBlockAPI) IsInBounds(pos vec.Vec3) bool {
	return api.world.IsInBounds(pos)
}

func (api *worldBlockAPI) GetState(pos vec.Vec3) block.State {
	return api.world.GetState(pos)
}

func (api *worldBlockAPI) GetOrCreateState(pos vec.Vec3) block.State {
	return api.world.GetOrCreateState(pos)
}

func (api *worldBlockAPI) MarkStateDirty(pos vec.Vec3) {
	api.world.MarkStateDirty(pos)
}

func (api *worldBlockAPI) QueueBlockTick(pos vec.Vec3, id block.BlockID, delay time.Duration) {
	api.world.QueueBlockTick(pos, id, delay)
}

func (api *worldBlockAPI) IsAuthoritative() bool {
	return api.world.authoritative
}

// worldLightEnv реализует LightEnv: блоки и поля освещения соседних чанков
type worldLightEnv struct {
	world *World
}

func (e *worldLightEnv) BlockTypeAt(pos vec.Vec3) *block.BlockType {
	return e.world.GetBlockType(pos)
}

func (e *worldLightEnv) LightFieldAt(pos vec.Vec3) *LightField {
	c := e.world.GetChunk(pos)
	if c == nil || c.Destroyed() {
		return nil
	}
	return c.light
}
