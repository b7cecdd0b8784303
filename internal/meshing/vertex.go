package meshing

import (
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

// Раскладка битов вершины:
//
//	BlockData: x(6) | y(6)<<6 | z(6)<<12 | texture(9)<<18 | normal(3)<<27
//	ChunkData: vx(6) | vy(6)<<6 | vz(6)<<12 | hue(6)<<18
const (
	coordBits   = 6
	coordMask   = 1<<coordBits - 1
	textureMask = 1<<9 - 1
	normalMask  = 1<<3 - 1
	hueMask     = 1<<6 - 1

	textureShift = 18
	normalShift  = 27
	hueShift     = 18

	// MaxHueShift наибольший сдвиг оттенка, помещающийся в вершину
	MaxHueShift = hueMask
)

// Vertex упакованная вершина грани: 8 байт
type Vertex struct {
	BlockData uint32
	ChunkData uint32
}

// PackVertex упаковывает угол грани, координату вокселя, текстуру, нормаль и оттенок
func PackVertex(corner, voxel vec.Vec3, texture uint16, normal block.Face, hue uint8) Vertex {
	return Vertex{
		BlockData: packCoord(corner) |
			uint32(texture&textureMask)<<textureShift |
			uint32(normal&normalMask)<<normalShift,
		ChunkData: packCoord(voxel) | uint32(hue&hueMask)<<hueShift,
	}
}

func packCoord(v vec.Vec3) uint32 {
	return uint32(v.X&coordMask) | uint32(v.Y&coordMask)<<coordBits | uint32(v.Z&coordMask)<<(2*coordBits)
}

func unpackCoord(d uint32) vec.Vec3 {
	return vec.New(int(d&coordMask), int(d>>coordBits&coordMask), int(d>>(2*coordBits)&coordMask))
}

// Corner локальный угол грани
func (v Vertex) Corner() vec.Vec3 {
	return unpackCoord(v.BlockData)
}

// Voxel локальная координата вокселя
func (v Vertex) Voxel() vec.Vec3 {
	return unpackCoord(v.ChunkData)
}

// Texture индекс текстуры в атласе
func (v Vertex) Texture() uint16 {
	return uint16(v.BlockData >> textureShift & textureMask)
}

// Normal грань, которой принадлежит вершина
func (v Vertex) Normal() block.Face {
	return block.Face(v.BlockData >> normalShift & normalMask)
}

// Hue сдвиг оттенка
func (v Vertex) Hue() uint8 {
	return uint8(v.ChunkData >> hueShift & hueMask)
}
