package implementations

import (
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

// GrassBehavior реализует поведение блока травы.
// Трава, накрытая непрозрачным блоком, превращается в землю.
type GrassBehavior struct {
	block.Base
	catalog *block.Catalog
	dirtID  block.BlockID
}

// NewGrassBehavior создаёт траву, превращающуюся в блок dirtID
func NewGrassBehavior(catalog *block.Catalog, dirtID block.BlockID) *GrassBehavior {
	return &GrassBehavior{catalog: catalog, dirtID: dirtID}
}

// Name возвращает имя блока
func (b *GrassBehavior) Name() string {
	return "grass"
}

// Properties возвращает свойства травы: верх и бока разные, низ - земля
func (b *GrassBehavior) Properties() block.Properties {
	p := block.OpaqueProperties(TextureGrassSide)
	p.Textures[block.FaceTop] = TextureGrassTop
	p.Textures[block.FaceBottom] = TextureDirt
	p.MinHueShift = 2
	p.MaxHueShift = 12
	return p
}

// OnBlockAdded проверяет покрытие сразу после установки
func (b *GrassBehavior) OnBlockAdded(api block.BlockAPI, pos vec.Vec3, direction int) {
	b.checkCovered(api, pos)
}

// OnNeighbourUpdated реагирует на установку блока сверху
func (b *GrassBehavior) OnNeighbourUpdated(api block.BlockAPI, pos, neighbourPos vec.Vec3) {
	if neighbourPos != block.FaceTop.Neighbour(pos) {
		return
	}
	b.checkCovered(api, pos)
}

func (b *GrassBehavior) checkCovered(api block.BlockAPI, pos vec.Vec3) {
	if !api.IsAuthoritative() {
		return
	}
	above := b.catalog.Get(api.GetBlock(block.FaceTop.Neighbour(pos)))
	if above.Translucent {
		return
	}
	api.SetBlock(pos, b.dirtID, 0)
}
