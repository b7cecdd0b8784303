package vec

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Vec3 представляет трехмерный вектор с целочисленными координатами.
// Ось Z направлена вверх.
type Vec3 struct {
	X int
	Y int
	Z int
}

// Zero нулевой вектор
var Zero = Vec3{}

// New создаёт вектор из трёх координат
func New(x, y, z int) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

// Splat создаёт вектор с одинаковыми координатами
func Splat(v int) Vec3 {
	return Vec3{X: v, Y: v, Z: v}
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Sub вычитает вектор
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{
		X: v.X - other.X,
		Y: v.Y - other.Y,
		Z: v.Z - other.Z,
	}
}

// Scale умножает вектор на скаляр
func (v Vec3) Scale(k int) Vec3 {
	return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Div делит вектор покомпонентно (усечение к нулю)
func (v Vec3) Div(other Vec3) Vec3 {
	return Vec3{X: v.X / other.X, Y: v.Y / other.Y, Z: v.Z / other.Z}
}

// Mul умножает вектор покомпонентно
func (v Vec3) Mul(other Vec3) Vec3 {
	return Vec3{X: v.X * other.X, Y: v.Y * other.Y, Z: v.Z * other.Z}
}

// DistanceSq возвращает квадрат расстояния до другого вектора
func (v Vec3) DistanceSq(other Vec3) int {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return dx*dx + dy*dy + dz*dz
}

// DistanceTo возвращает расстояние до другого вектора
func (v Vec3) DistanceTo(other Vec3) float64 {
	return math.Sqrt(float64(v.DistanceSq(other)))
}

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// Volume возвращает произведение координат (объём бокса такого размера)
func (v Vec3) Volume() int {
	return v.X * v.Y * v.Z
}

// ChunkOrigin возвращает начало чанка, которому принадлежит позиция.
// Деление усекающее: отрицательные координаты не переносятся в соседний чанк,
// такие позиции считаются вне мира.
func (v Vec3) ChunkOrigin(size Vec3) Vec3 {
	return v.Div(size).Mul(size)
}

// Local возвращает позицию внутри чанка заданного размера
func (v Vec3) Local(size Vec3) Vec3 {
	return Vec3{X: v.X % size.X, Y: v.Y % size.Y, Z: v.Z % size.Z}
}

// Within проверяет, что 0 <= v < size по всем осям
func (v Vec3) Within(size Vec3) bool {
	return v.X >= 0 && v.Y >= 0 && v.Z >= 0 &&
		v.X < size.X && v.Y < size.Y && v.Z < size.Z
}

// Vec3f преобразует в вектор с плавающей точкой
func (v Vec3) Vec3f() mgl32.Vec3 {
	return mgl32.Vec3{float32(v.X), float32(v.Y), float32(v.Z)}
}

// FromVec3f округляет вектор вниз до целочисленного
func FromVec3f(f mgl32.Vec3) Vec3 {
	return Vec3{
		X: int(math.Floor(float64(f[0]))),
		Y: int(math.Floor(float64(f[1]))),
		Z: int(math.Floor(float64(f[2]))),
	}
}

// Column возвращает горизонтальную проекцию позиции
func (v Vec3) Column() Vec2 {
	return Vec2{X: v.X, Y: v.Y}
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z)
}
