package block

import "github.com/annel0/voxel-engine/internal/vec"

// Face грань вокселя. Порядок фиксирован: противоположная грань
// получается инверсией младшего бита.
type Face uint8

const (
	FaceTop    Face = iota // +Z
	FaceBottom             // -Z
	FaceNorth              // +Y
	FaceSouth              // -Y
	FaceWest               // -X
	FaceEast               // +X
)

// FaceCount количество граней вокселя
const FaceCount = 6

var faceDirections = [FaceCount]vec.Vec3{
	{X: 0, Y: 0, Z: 1},
	{X: 0, Y: 0, Z: -1},
	{X: 0, Y: 1, Z: 0},
	{X: 0, Y: -1, Z: 0},
	{X: -1, Y: 0, Z: 0},
	{X: 1, Y: 0, Z: 0},
}

var faceNames = [FaceCount]string{"top", "bottom", "north", "south", "west", "east"}

// Direction возвращает единичный вектор нормали грани
func (f Face) Direction() vec.Vec3 {
	if f >= FaceCount {
		return vec.Zero
	}
	return faceDirections[f]
}

// Opposite возвращает противоположную грань
func (f Face) Opposite() Face {
	return f ^ 1
}

// Horizontal сообщает, лежит ли нормаль грани в горизонтальной плоскости
func (f Face) Horizontal() bool {
	return f != FaceTop && f != FaceBottom
}

func (f Face) String() string {
	if f >= FaceCount {
		return "invalid"
	}
	return faceNames[f]
}

// Neighbour возвращает позицию соседа через грань
func (f Face) Neighbour(pos vec.Vec3) vec.Vec3 {
	return pos.Add(f.Direction())
}

// FaceFromDirection находит грань по единичному вектору
func FaceFromDirection(d vec.Vec3) (Face, bool) {
	for i, dir := range faceDirections {
		if dir == d {
			return Face(i), true
		}
	}
	return 0, false
}
