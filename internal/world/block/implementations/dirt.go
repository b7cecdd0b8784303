package implementations

import "github.com/annel0/voxel-engine/internal/world/block"

// DirtBehavior реализует поведение блока земли
type DirtBehavior struct {
	block.Base
}

// Name возвращает имя блока
func (b *DirtBehavior) Name() string {
	return "dirt"
}

// Properties возвращает свойства земли
func (b *DirtBehavior) Properties() block.Properties {
	p := block.OpaqueProperties(TextureDirt)
	p.MaxHueShift = 8
	return p
}
