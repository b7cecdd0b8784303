package implementations

import (
	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

// LogBehavior ствол дерева, ориентированный по направлению установки
type LogBehavior struct {
	block.Base
}

// Name возвращает имя блока
func (b *LogBehavior) Name() string {
	return "log"
}

// Aliases возвращает альтернативные имена
func (b *LogBehavior) Aliases() []string {
	return []string{"wood"}
}

// Properties возвращает свойства ствола
func (b *LogBehavior) Properties() block.Properties {
	p := block.OpaqueProperties(TextureLogSide)
	p.Textures[block.FaceTop] = TextureLogTop
	p.Textures[block.FaceBottom] = TextureLogTop
	return p
}

// NewState создаёт ориентированное состояние
func (b *LogBehavior) NewState() block.State {
	return &block.DirectionalState{}
}

// OnBlockAdded запоминает направление установки
func (b *LogBehavior) OnBlockAdded(api block.BlockAPI, pos vec.Vec3, direction int) {
	if direction < 0 || direction >= block.FaceCount {
		logging.Debug("Ствол %v: неизвестное направление %d, используется top", pos, direction)
		direction = int(block.FaceTop)
	}

	st, ok := api.GetOrCreateState(pos).(*block.DirectionalState)
	if !ok {
		return
	}
	st.Direction = block.Face(direction)
	api.MarkStateDirty(pos)
}
