package vec

import "math"

// Vec2 представляет горизонтальные координаты столбца (X, Y)
type Vec2 struct {
	X, Y int
}

// Add складывает два вектора
func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Y: v.Y + other.Y}
}

// WithZ поднимает столбец до трёхмерной позиции
func (v Vec2) WithZ(z int) Vec3 {
	return Vec3{X: v.X, Y: v.Y, Z: z}
}

// DistanceTo вычисляет расстояние до другой точки
func (v Vec2) DistanceTo(other Vec2) float64 {
	dx := float64(v.X - other.X)
	dy := float64(v.Y - other.Y)
	return math.Sqrt(dx*dx + dy*dy)
}
