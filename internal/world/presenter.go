package world

import (
	"sync"

	"github.com/annel0/voxel-engine/internal/meshing"
	"github.com/annel0/voxel-engine/internal/vec"
)

// ChunkUpdate результат прохода, передаваемый бэкенду отрисовки и физики
type ChunkUpdate struct {
	Origin vec.Vec3
	Mesh   *meshing.ChunkMesh
	Light  []byte // Опубликованный буфер освещения
}

// Presenter бэкенд, получающий геометрию чанков. Вызывается только из потока симуляции.
type Presenter interface {
	Apply(update ChunkUpdate)
	Release(origin vec.Vec3)
}

// NopPresenter бэкенд, игнорирующий обновления
type NopPresenter struct{}

func (NopPresenter) Apply(ChunkUpdate) {}
func (NopPresenter) Release(vec.Vec3)  {}

// MeshStats сводка по применённой геометрии чанка
type MeshStats struct {
	Opaque         int `json:"opaque_faces"`
	AlphaTest      int `json:"alpha_test_faces"`
	Translucent    int `json:"translucent_faces"`
	CollisionFaces int `json:"collision_faces"`
	Updates        int `json:"updates"`
}

// StatsPresenter бэкенд сервера: хранит только статистику геометрии для админ-API
type StatsPresenter struct {
	mu    sync.RWMutex
	stats map[vec.Vec3]MeshStats
}

// NewStatsPresenter создаёт бэкенд статистики
func NewStatsPresenter() *StatsPresenter {
	return &StatsPresenter{stats: make(map[vec.Vec3]MeshStats)}
}

// Apply запоминает количество граней
func (p *StatsPresenter) Apply(update ChunkUpdate) {
	if update.Mesh == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats[update.Origin]
	s.Opaque = update.Mesh.FaceCount(meshing.LayerOpaque)
	s.AlphaTest = update.Mesh.FaceCount(meshing.LayerAlphaTest)
	s.Translucent = update.Mesh.FaceCount(meshing.LayerTranslucent)
	s.CollisionFaces = update.Mesh.CollisionFaceCount()
	s.Updates++
	p.stats[update.Origin] = s
}

// Release забывает статистику выгруженного чанка
func (p *StatsPresenter) Release(origin vec.Vec3) {
	p.mu.Lock()
	delete(p.stats, origin)
	p.mu.Unlock()
}

// Stats возвращает статистику чанка
func (p *StatsPresenter) Stats(origin vec.Vec3) (MeshStats, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.stats[origin]
	return s, ok
}
