package implementations

import (
	"time"

	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

// LiquidTickDelay задержка между шагами растекания жидкости
const LiquidTickDelay = 150 * time.Millisecond

// LiquidBehavior реализует растекающуюся жидкость.
// Глубина хранится в LiquidState и уменьшается на единицу с каждым шагом;
// жидкость глубины 0 не растекается.
type LiquidBehavior struct {
	block.Base
	name    string
	texture uint16
	id      block.BlockID
}

// NewLiquidBehavior создаёт жидкость с именем name
func NewLiquidBehavior(name string, texture uint16) *LiquidBehavior {
	return &LiquidBehavior{name: name, texture: texture}
}

// Bind сообщает жидкости её собственный ID после регистрации
func (b *LiquidBehavior) Bind(id block.BlockID) {
	b.id = id
}

// ID возвращает идентификатор жидкости в каталоге
func (b *LiquidBehavior) ID() block.BlockID {
	return b.id
}

// Name возвращает имя блока
func (b *LiquidBehavior) Name() string {
	return b.name
}

// Properties возвращает свойства жидкости
func (b *LiquidBehavior) Properties() block.Properties {
	p := block.OpaqueProperties(b.texture)
	p.Passable = true
	p.Translucent = true
	p.UseTransparency = true
	p.AttenuatesSun = true
	p.LightFilter = [3]float32{0.8, 0.9, 1}
	return p
}

// ShouldCullFace скрывает грани между соседними блоками той же жидкости
func (b *LiquidBehavior) ShouldCullFace(face block.Face, self, neighbour *block.BlockType) bool {
	return neighbour.ID == self.ID
}

// NewState создаёт состояние жидкости с глубиной по умолчанию
func (b *LiquidBehavior) NewState() block.State {
	return block.NewLiquidState()
}

// OnBlockAdded планирует первый шаг растекания
func (b *LiquidBehavior) OnBlockAdded(api block.BlockAPI, pos vec.Vec3, direction int) {
	if api.IsAuthoritative() {
		api.QueueBlockTick(pos, b.id, LiquidTickDelay)
	}
}

// OnNeighbourUpdated планирует шаг растекания после изменения соседа
func (b *LiquidBehavior) OnNeighbourUpdated(api block.BlockAPI, pos, neighbourPos vec.Vec3) {
	if api.IsAuthoritative() {
		api.QueueBlockTick(pos, b.id, LiquidTickDelay)
	}
}

// Tick выполняет один шаг растекания
func (b *LiquidBehavior) Tick(api block.BlockAPI, pos vec.Vec3) {
	if !api.IsAuthoritative() {
		return
	}

	st, ok := api.GetOrCreateState(pos).(*block.LiquidState)
	if !ok || st.Depth == 0 {
		return
	}

	below := block.FaceBottom.Neighbour(pos)
	belowID := api.GetBlock(below)

	if belowID != block.AirID && belowID != b.id {
		b.spreadSides(api, pos, st.Depth, false, true)
		return
	}

	if belowID == block.AirID && api.IsInBounds(below) {
		b.place(api, below, st.Depth-1)
	}

	neighbours := 0
	for f := block.Face(0); f < block.FaceCount; f++ {
		if f.Horizontal() && api.GetBlock(f.Neighbour(pos)) == b.id {
			neighbours++
		}
	}
	b.spreadSides(api, pos, st.Depth, true, neighbours >= 3)
}

// spreadSides растекается в стороны. withGround требует опоры под соседом,
// без withWater сосед над той же жидкостью пропускается.
func (b *LiquidBehavior) spreadSides(api block.BlockAPI, pos vec.Vec3, depth uint8, withGround, withWater bool) {
	for f := block.Face(0); f < block.FaceCount; f++ {
		if !f.Horizontal() {
			continue
		}

		nb := f.Neighbour(pos)
		if !api.IsInBounds(nb) {
			continue
		}

		underID := api.GetBlock(block.FaceBottom.Neighbour(nb))
		if withGround && underID == block.AirID {
			continue
		}
		if !withWater && underID == b.id {
			continue
		}

		if api.GetBlock(nb) == block.AirID {
			b.place(api, nb, depth-1)
		}
	}
}

func (b *LiquidBehavior) place(api block.BlockAPI, pos vec.Vec3, depth uint8) {
	if !api.SetBlock(pos, b.id, 0) {
		return
	}
	if st, ok := api.GetOrCreateState(pos).(*block.LiquidState); ok {
		st.Depth = depth
		api.MarkStateDirty(pos)
	}
}
