package world

import (
	"sort"
	"sync"

	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// ViewerUpdate результат обновления наблюдателя за тик
type ViewerUpdate struct {
	Send   []*Chunk   // Готовые чанки, которых у наблюдателя ещё нет
	Unload []vec.Vec3 // Начала чанков, которые наблюдатель должен выгрузить
}

// Viewer наблюдатель (игрок), вокруг которого мир загружает и отправляет чанки
type Viewer struct {
	ID uuid.UUID

	mu           sync.Mutex
	position     mgl32.Vec3 // В единицах бэкенда
	loaded       map[vec.Vec3]struct{}
	currentReady bool
}

// NewViewer создаёт наблюдателя в заданной позиции
func NewViewer(id uuid.UUID, position mgl32.Vec3) *Viewer {
	return &Viewer{
		ID:       id,
		position: position,
		loaded:   make(map[vec.Vec3]struct{}),
	}
}

// SetPosition обновляет позицию наблюдателя
func (v *Viewer) SetPosition(p mgl32.Vec3) {
	v.mu.Lock()
	v.position = p
	v.mu.Unlock()
}

// Position возвращает позицию наблюдателя
func (v *Viewer) Position() mgl32.Vec3 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.position
}

// IsLoaded сообщает, отправлен ли чанк наблюдателю
func (v *Viewer) IsLoaded(origin vec.Vec3) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.loaded[origin]
	return ok
}

// LoadedCount возвращает количество отправленных чанков
func (v *Viewer) LoadedCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.loaded)
}

// Forget убирает чанк из загруженных, чтобы он был отправлен повторно
func (v *Viewer) Forget(origin vec.Vec3) {
	v.mu.Lock()
	delete(v.loaded, origin)
	v.mu.Unlock()
}

// CurrentChunkReady сообщает, прошёл ли чанк наблюдателя первый проход
func (v *Viewer) CurrentChunkReady() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.currentReady
}

// HasLoadedMinimumChunks сообщает, получил ли наблюдатель минимум чанков для старта
func (v *Viewer) HasLoadedMinimumChunks(s Settings) bool {
	return v.LoadedCount() >= s.MinimumLoadedChunks
}

// Update выгружает дальние чанки, создаёт чанки в радиусе прорисовки
// и возвращает готовые к отправке. Вызывается из потока симуляции.
func (v *Viewer) Update(w *World) ViewerUpdate {
	v.mu.Lock()
	defer v.mu.Unlock()

	var out ViewerUpdate
	s := w.settings
	bounds := mgl32.Vec3{
		float32(s.ChunkSize.X), float32(s.ChunkSize.Y), float32(s.ChunkSize.Z),
	}.Len() * s.VoxelSize
	unloadDist := bounds * float32(s.ChunkUnloadDistance)
	renderDist := bounds * float32(s.ChunkRenderDistance)
	half := s.ChunkSize.Div(vec.Splat(2))

	for origin := range v.loaded {
		center := w.ToSourcePosition(origin.Add(half))
		if v.position.Sub(center).Len() >= unloadDist {
			delete(v.loaded, origin)
			out.Unload = append(out.Unload, origin)
		}
	}
	sort.Slice(out.Unload, func(i, j int) bool { return lessVec(out.Unload[i], out.Unload[j]) })

	voxel := w.ToVoxelPosition(v.position)
	current := w.GetChunk(voxel)
	v.currentReady = current != nil && current.FirstUpdateDone()

	start := w.ToChunkOffset(voxel)
	if !w.IsInBounds(start) {
		return out
	}

	visited := map[vec.Vec3]struct{}{start: {}}
	queue := []vec.Vec3{start}
	for len(queue) > 0 {
		origin := queue[0]
		queue = queue[1:]

		center := w.ToSourcePosition(origin.Add(half))
		if v.position.Sub(center).Len() > renderDist {
			continue
		}
		c, err := w.GetOrCreateChunk(origin)
		if err != nil {
			continue
		}

		if _, ok := v.loaded[origin]; !ok && c.Generated() && c.FirstUpdateDone() {
			v.loaded[origin] = struct{}{}
			out.Send = append(out.Send, c)
		}

		for f := block.Face(0); f < block.FaceCount; f++ {
			nb := origin.Add(f.Direction().Mul(s.ChunkSize))
			if _, seen := visited[nb]; seen || !w.IsInBounds(nb) {
				continue
			}
			visited[nb] = struct{}{}
			queue = append(queue, nb)
		}
	}
	return out
}

// AddViewer регистрирует наблюдателя
func (w *World) AddViewer(v *Viewer) {
	w.viewersMu.Lock()
	w.viewers[v.ID] = v
	w.viewersMu.Unlock()
}

// RemoveViewer удаляет наблюдателя
func (w *World) RemoveViewer(id uuid.UUID) bool {
	w.viewersMu.Lock()
	defer w.viewersMu.Unlock()
	if _, ok := w.viewers[id]; !ok {
		return false
	}
	delete(w.viewers, id)
	return true
}

// GetViewer возвращает наблюдателя по ID или nil
func (w *World) GetViewer(id uuid.UUID) *Viewer {
	w.viewersMu.RLock()
	defer w.viewersMu.RUnlock()
	return w.viewers[id]
}

// Viewers возвращает наблюдателей, упорядоченных по ID
func (w *World) Viewers() []*Viewer {
	w.viewersMu.RLock()
	out := make([]*Viewer, 0, len(w.viewers))
	for _, v := range w.viewers {
		out = append(out, v)
	}
	w.viewersMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func (w *World) viewerVoxelPositions() []vec.Vec3 {
	w.viewersMu.RLock()
	defer w.viewersMu.RUnlock()
	out := make([]vec.Vec3, 0, len(w.viewers))
	for _, v := range w.viewers {
		out = append(out, w.ToVoxelPosition(v.Position()))
	}
	return out
}
