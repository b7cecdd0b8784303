package world

import (
	"sort"

	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/go-gl/mathgl/mgl32"
)

// EntityHandle непрозрачная сущность, принадлежащая чанку.
// Игровая логика сущностей живёт вне движка; чанк только хранит и освобождает их.
// Реализации должны быть указателями.
type EntityHandle interface {
	Class() string        // Имя класса для восстановления
	Position() mgl32.Vec3 // Позиция в единицах бэкенда
	Rotation() mgl32.Quat // Ориентация
	Payload() []byte      // Сериализованные данные класса
	Release()             // Освобождение ресурсов представления
}

// EntityRecord сущность вместе с локальной позицией вокселя
type EntityRecord struct {
	Local  vec.Vec3
	Handle EntityHandle
}

func sortEntityRecords(records []EntityRecord) {
	sort.Slice(records, func(i, j int) bool {
		return lessVec(records[i].Local, records[j].Local)
	})
}

// StoredEntity сущность, восстановленная из файла сохранения или сети
type StoredEntity struct {
	ClassName string
	Pos       mgl32.Vec3
	Rot       mgl32.Quat
	Data      []byte
	released  bool
}

func (e *StoredEntity) Class() string        { return e.ClassName }
func (e *StoredEntity) Position() mgl32.Vec3 { return e.Pos }
func (e *StoredEntity) Rotation() mgl32.Quat { return e.Rot }
func (e *StoredEntity) Payload() []byte      { return e.Data }
func (e *StoredEntity) Release()             { e.released = true }

// Released сообщает, была ли сущность освобождена чанком
func (e *StoredEntity) Released() bool {
	return e.released
}
