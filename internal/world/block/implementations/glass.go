package implementations

import "github.com/annel0/voxel-engine/internal/world/block"

// GlassBehavior прозрачное стекло с альфа-тестом
type GlassBehavior struct {
	block.Base
}

// Name возвращает имя блока
func (b *GlassBehavior) Name() string {
	return "glass"
}

// Properties возвращает свойства стекла
func (b *GlassBehavior) Properties() block.Properties {
	p := block.OpaqueProperties(TextureGlass)
	p.Translucent = true
	return p
}

// ShouldCullFace скрывает грани между соседними блоками стекла
func (b *GlassBehavior) ShouldCullFace(face block.Face, self, neighbour *block.BlockType) bool {
	return neighbour.ID == self.ID
}
