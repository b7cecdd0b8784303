package implementations

import "github.com/annel0/voxel-engine/internal/world/block"

// SnowBehavior снежный покров холодных биомов
type SnowBehavior struct {
	block.Base
}

func (b *SnowBehavior) Name() string {
	return "snow"
}

func (b *SnowBehavior) Properties() block.Properties {
	return block.OpaqueProperties(TextureSnow)
}
