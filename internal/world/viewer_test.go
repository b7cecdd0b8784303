package world

import (
	"testing"

	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func viewerSettings() Settings {
	s := testSettings(16, 16)
	s.MaxSize = vec.New(64, 64, 32)
	return s
}

func origins(chunks []*Chunk) []vec.Vec3 {
	out := make([]vec.Vec3, len(chunks))
	for i, c := range chunks {
		out[i] = c.Offset
	}
	return out
}

func TestViewerStreamsReadyChunks(t *testing.T) {
	env := newTestEnv(t, viewerSettings())
	w := env.world
	v := NewViewer(uuid.New(), mgl32.Vec3{8, 8, 8})
	w.AddViewer(v)

	update := v.Update(w)
	assert.Empty(t, update.Send, "неготовые чанки не отправляются")
	assert.NotNil(t, w.Chunks().Get(vec.Zero), "чанк наблюдателя создаётся")
	assert.Nil(t, w.Chunks().Get(vec.New(48, 0, 0)), "дальние чанки не создаются")
	assert.False(t, v.CurrentChunkReady())

	env.settle(t)
	update = v.Update(w)
	sent := origins(update.Send)
	assert.Contains(t, sent, vec.Zero)
	assert.Contains(t, sent, vec.New(16, 0, 0))
	assert.NotContains(t, sent, vec.New(48, 0, 0))
	assert.True(t, v.CurrentChunkReady())
	assert.True(t, v.HasLoadedMinimumChunks(w.Settings()))

	update = v.Update(w)
	assert.Empty(t, update.Send, "повторно чанки не отправляются")

	v.Forget(vec.Zero)
	update = v.Update(w)
	assert.Equal(t, []vec.Vec3{vec.Zero}, origins(update.Send))
}

func TestViewerUnloadsDistantChunks(t *testing.T) {
	env := newTestEnv(t, viewerSettings())
	w := env.world
	v := NewViewer(uuid.New(), mgl32.Vec3{8, 8, 8})
	w.AddViewer(v)

	v.Update(w)
	env.settle(t)
	v.Update(w)
	require.True(t, v.IsLoaded(vec.Zero))

	v.SetPosition(mgl32.Vec3{56, 56, 8})
	update := v.Update(w)
	assert.Contains(t, update.Unload, vec.Zero)
	assert.False(t, v.IsLoaded(vec.Zero))
}

func TestWorldViewerRegistry(t *testing.T) {
	env := newTestEnv(t, viewerSettings())
	w := env.world
	id := uuid.New()

	w.AddViewer(NewViewer(id, mgl32.Vec3{}))
	assert.NotNil(t, w.GetViewer(id))
	assert.Len(t, w.Viewers(), 1)

	assert.True(t, w.RemoveViewer(id))
	assert.False(t, w.RemoveViewer(id))
	assert.Nil(t, w.GetViewer(id))
}
