package block

import (
	"github.com/annel0/voxel-engine/internal/vec"
)

// Properties неизменяемые свойства типа блока, читаемые в горячих циклах
// освещения и построения мешей.
type Properties struct {
	Passable        bool
	Translucent     bool
	UseTransparency bool
	AttenuatesSun   bool
	HideMesh        bool
	LightEmission   [3]uint8   // R, G, B в диапазоне 0..15
	LightFilter     [3]float32 // множитель затухания по каналам
	MinHueShift     int
	MaxHueShift     int
	Textures        [FaceCount]uint16
}

// Emits сообщает, излучает ли блок свет хотя бы в одном канале
func (p Properties) Emits() bool {
	return p.LightEmission[0] != 0 || p.LightEmission[1] != 0 || p.LightEmission[2] != 0
}

// BlockBehavior определяет поведение вида блока
type BlockBehavior interface {
	Name() string
	Aliases() []string
	Properties() Properties
	// ShouldCullFace сообщает, нужно ли скрыть грань self, смежную с neighbour.
	ShouldCullFace(face Face, self, neighbour *BlockType) bool
	// NewState создаёт состояние для нового экземпляра блока; nil - без состояния.
	NewState() State
	OnBlockAdded(api BlockAPI, pos vec.Vec3, direction int)
	OnBlockRemoved(api BlockAPI, pos vec.Vec3)
	OnNeighbourUpdated(api BlockAPI, pos, neighbourPos vec.Vec3)
	Tick(api BlockAPI, pos vec.Vec3)
}

// Base реализует BlockBehavior по умолчанию. Встраивается в конкретные блоки.
type Base struct{}

func (Base) Aliases() []string { return nil }

func (Base) ShouldCullFace(face Face, self, neighbour *BlockType) bool { return false }

func (Base) NewState() State { return &BaseState{} }

func (Base) OnBlockAdded(api BlockAPI, pos vec.Vec3, direction int) {}

func (Base) OnBlockRemoved(api BlockAPI, pos vec.Vec3) {}

func (Base) OnNeighbourUpdated(api BlockAPI, pos, neighbourPos vec.Vec3) {}

func (Base) Tick(api BlockAPI, pos vec.Vec3) {}

// OpaqueProperties свойства обычного непрозрачного твёрдого блока
func OpaqueProperties(texture uint16) Properties {
	p := Properties{LightFilter: [3]float32{1, 1, 1}}
	for i := range p.Textures {
		p.Textures[i] = texture
	}
	return p
}

// airBehavior пустой блок с ID 0
type airBehavior struct{ Base }

func (airBehavior) Name() string { return "air" }

func (airBehavior) Properties() Properties {
	return Properties{
		Passable:    true,
		Translucent: true,
		HideMesh:    true,
		LightFilter: [3]float32{1, 1, 1},
	}
}

func (airBehavior) NewState() State { return nil }
