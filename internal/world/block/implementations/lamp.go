package implementations

import "github.com/annel0/voxel-engine/internal/world/block"

// LampBehavior источник цветного света
type LampBehavior struct {
	block.Base
	name     string
	emission [3]uint8
	texture  uint16
}

// NewLampBehavior создаёт лампу с заданным излучением (каждый канал 0..15)
func NewLampBehavior(name string, emission [3]uint8, texture uint16) *LampBehavior {
	return &LampBehavior{name: name, emission: emission, texture: texture}
}

// Name возвращает имя блока
func (b *LampBehavior) Name() string {
	return b.name
}

// Properties возвращает свойства лампы
func (b *LampBehavior) Properties() block.Properties {
	p := block.OpaqueProperties(b.texture)
	p.LightEmission = b.emission
	return p
}
