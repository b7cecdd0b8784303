package world

import (
	"context"

	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

// Generator заполняет блоки нового чанка. Вызывается из воркеров,
// реализация не должна обращаться к миру.
type Generator interface {
	Generate(ctx context.Context, origin, size vec.Vec3, blocks []block.BlockID) error
}

// ChunkSource источник ранее сохранённых чанков. LoadChunk заполняет блоки,
// состояния и сущности чанка и сообщает, найден ли он. Вызывается из воркеров
// до генератора.
type ChunkSource interface {
	LoadChunk(ctx context.Context, c *Chunk) (bool, error)
}

// BiomeDescriptor запись таблицы биомов для снимка мира
type BiomeDescriptor struct {
	ID        uint8
	Name      string
	Generator string
}

// BiomeSource генератор, публикующий таблицу биомов
type BiomeSource interface {
	Biomes() []BiomeDescriptor
}

// FlatGenerator плоский мир: Layers[z] задаёт блок слоя z, выше - воздух
type FlatGenerator struct {
	Layers []block.BlockID
}

// Generate заполняет чанк слоями
func (g *FlatGenerator) Generate(ctx context.Context, origin, size vec.Vec3, blocks []block.BlockID) error {
	for x := 0; x < size.X; x++ {
		for y := 0; y < size.Y; y++ {
			for z := 0; z < size.Z; z++ {
				wz := origin.Z + z
				if wz >= len(g.Layers) {
					break
				}
				blocks[x*size.Y*size.Z+y*size.Z+z] = g.Layers[wz]
			}
		}
	}
	return ctx.Err()
}
