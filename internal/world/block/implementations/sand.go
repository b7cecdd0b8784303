package implementations

import "github.com/annel0/voxel-engine/internal/world/block"

// SandBehavior песок пляжей
type SandBehavior struct {
	block.Base
}

func (b *SandBehavior) Name() string {
	return "sand"
}

func (b *SandBehavior) Properties() block.Properties {
	return block.OpaqueProperties(TextureSand)
}
