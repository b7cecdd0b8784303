package block

import (
	"time"

	"github.com/annel0/voxel-engine/internal/vec"
)

// BlockAPI определяет интерфейс для взаимодействия блоков с миром.
// Все вызовы выполняются в потоке симуляции.
type BlockAPI interface {
	// GetBlock возвращает ID блока в мировой позиции (AirID вне мира).
	GetBlock(pos vec.Vec3) BlockID

	// SetBlock ставит блок и ставит в очередь полное обновление затронутых чанков.
	SetBlock(pos vec.Vec3, id BlockID, direction int) bool

	// IsInBounds проверяет, лежит ли позиция внутри мира.
	IsInBounds(pos vec.Vec3) bool

	// GetState возвращает состояние блока или nil.
	GetState(pos vec.Vec3) State

	// GetOrCreateState создаёт состояние при необходимости и помечает его грязным.
	GetOrCreateState(pos vec.Vec3) State

	// MarkStateDirty добавляет состояние в набор для репликации.
	MarkStateDirty(pos vec.Vec3)

	// QueueBlockTick планирует вызов Tick для блока id через delay.
	QueueBlockTick(pos vec.Vec3, id BlockID, delay time.Duration)

	// IsAuthoritative сообщает, является ли мир серверным (источником правды).
	IsAuthoritative() bool
}
