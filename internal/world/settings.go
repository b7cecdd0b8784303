package world

import (
	"errors"
	"fmt"

	"github.com/annel0/voxel-engine/internal/config"
	"github.com/annel0/voxel-engine/internal/vec"
)

// ErrOutOfBounds возвращается при обращении за пределы мира или чанка
var ErrOutOfBounds = errors.New("позиция вне границ")

// AtlasInfo описание атласа текстур для клиента
type AtlasInfo struct {
	Opaque      string
	Translucent string
	TextureSize int
}

// Settings параметры мира, передаваемые клиенту в снимке
type Settings struct {
	Seed                   int
	SeaLevel               int
	MaxSize                vec.Vec3 // Размер мира в вокселях
	ChunkSize              vec.Vec3
	VoxelSize              float32 // Размер вокселя в единицах бэкенда
	ChunkRenderDistance    int
	ChunkUnloadDistance    int
	MinimumLoadedChunks    int
	BuildCollisionInThread bool
	Atlas                  AtlasInfo
}

// DefaultSettings возвращает параметры мира по умолчанию
func DefaultSettings() Settings {
	return SettingsFromConfig(config.Default().World)
}

// SettingsFromConfig переносит секцию world конфигурации в параметры мира
func SettingsFromConfig(cfg config.WorldConfig) Settings {
	return Settings{
		Seed:                   int(cfg.Seed),
		SeaLevel:               cfg.SeaLevel,
		MaxSize:                vec.New(cfg.MaxSize[0], cfg.MaxSize[1], cfg.MaxSize[2]),
		ChunkSize:              vec.New(cfg.ChunkSize[0], cfg.ChunkSize[1], cfg.ChunkSize[2]),
		VoxelSize:              cfg.VoxelSize,
		ChunkRenderDistance:    cfg.ChunkRenderDistance,
		ChunkUnloadDistance:    cfg.ChunkUnloadDistance,
		MinimumLoadedChunks:    cfg.MinimumLoadedChunks,
		BuildCollisionInThread: cfg.BuildCollisionInThread,
		Atlas: AtlasInfo{
			Opaque:      cfg.AtlasOpaque,
			Translucent: cfg.AtlasTranslucent,
			TextureSize: cfg.TextureSize,
		},
	}
}

// Validate проверяет согласованность размеров
func (s Settings) Validate() error {
	cs := s.ChunkSize
	if cs.X <= 0 || cs.Y <= 0 || cs.Z <= 0 || cs.X > 63 || cs.Y > 63 || cs.Z > 63 {
		return fmt.Errorf("недопустимый размер чанка %v", cs)
	}
	ms := s.MaxSize
	if ms.X <= 0 || ms.Y <= 0 || ms.Z <= 0 {
		return fmt.Errorf("недопустимый размер мира %v", ms)
	}
	if ms.X%cs.X != 0 || ms.Y%cs.Y != 0 || ms.Z%cs.Z != 0 {
		return fmt.Errorf("размер мира %v не кратен размеру чанка %v", ms, cs)
	}
	if s.VoxelSize <= 0 {
		return fmt.Errorf("недопустимый размер вокселя %v", s.VoxelSize)
	}
	return nil
}

// ChunkCount возвращает количество чанков по каждой оси
func (s Settings) ChunkCount() vec.Vec3 {
	return s.MaxSize.Div(s.ChunkSize)
}
