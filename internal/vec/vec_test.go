package vec

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestChunkOriginTruncates(t *testing.T) {
	size := Splat(32)

	assert.Equal(t, New(0, 0, 0), New(5, 31, 0).ChunkOrigin(size))
	assert.Equal(t, New(32, 64, 96), New(33, 70, 127).ChunkOrigin(size))
	// Отрицательные координаты усекаются к нулю, а не к -32
	assert.Equal(t, New(0, 0, 0), New(-5, -1, -31).ChunkOrigin(size))
}

func TestLocalAndWithin(t *testing.T) {
	size := New(16, 16, 32)
	local := New(20, 3, 40).Local(size)

	assert.Equal(t, New(4, 3, 8), local)
	assert.True(t, local.Within(size))
	assert.False(t, New(-1, 0, 0).Within(size))
	assert.False(t, New(0, 16, 0).Within(size))
}

func TestDistances(t *testing.T) {
	a := New(1, 2, 3)
	b := New(4, 6, 3)

	assert.Equal(t, 25, a.DistanceSq(b))
	assert.InDelta(t, 5.0, a.DistanceTo(b), 1e-9)
	assert.InDelta(t, 5.0, a.Column().DistanceTo(b.Column()), 1e-9)
}

func TestFloatConversion(t *testing.T) {
	assert.Equal(t, New(1, -2, 3), FromVec3f(mgl32.Vec3{1.7, -1.2, 3.0}))
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, New(1, 2, 3).Vec3f())
}
