package meshing

import "github.com/annel0/voxel-engine/internal/vec"

// faceCorners углы каждой грани против часовой стрелки при взгляде снаружи.
// Порядок граней совпадает с block.Face.
var faceCorners = [6][4]vec.Vec3{
	// Top
	{{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: 0, Y: 1, Z: 1}},
	// Bottom
	{{X: 0, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 1, Y: 0, Z: 0}},
	// North
	{{X: 1, Y: 1, Z: 0}, {X: 0, Y: 1, Z: 0}, {X: 0, Y: 1, Z: 1}, {X: 1, Y: 1, Z: 1}},
	// South
	{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 1}, {X: 0, Y: 0, Z: 1}},
	// West
	{{X: 0, Y: 1, Z: 0}, {X: 0, Y: 0, Z: 0}, {X: 0, Y: 0, Z: 1}, {X: 0, Y: 1, Z: 1}},
	// East
	{{X: 1, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 1, Y: 1, Z: 1}, {X: 1, Y: 0, Z: 1}},
}

// faceTriangles два треугольника квада
var faceTriangles = [6]int{0, 1, 2, 2, 3, 0}

// VerticesPerFace количество вершин визуальной грани
const VerticesPerFace = len(faceTriangles)
