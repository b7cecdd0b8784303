package implementations

import "github.com/annel0/voxel-engine/internal/world/block"

// StoneBehavior реализует поведение блока камня
type StoneBehavior struct {
	block.Base
}

// Name возвращает имя блока
func (b *StoneBehavior) Name() string {
	return "stone"
}

// Aliases возвращает альтернативные имена
func (b *StoneBehavior) Aliases() []string {
	return []string{"rock", "cobble"}
}

// Properties возвращает свойства камня
func (b *StoneBehavior) Properties() block.Properties {
	p := block.OpaqueProperties(TextureStone)
	p.MaxHueShift = 4
	return p
}
