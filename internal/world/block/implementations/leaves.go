package implementations

import "github.com/annel0/voxel-engine/internal/world/block"

// LeavesBehavior листва: пропускает свет, но ослабляет солнечный столб
type LeavesBehavior struct {
	block.Base
}

func (b *LeavesBehavior) Name() string {
	return "leaves"
}

func (b *LeavesBehavior) Aliases() []string {
	return []string{"foliage"}
}

func (b *LeavesBehavior) Properties() block.Properties {
	p := block.OpaqueProperties(TextureLeaves)
	p.Translucent = true
	p.AttenuatesSun = true
	p.MinHueShift = 0
	p.MaxHueShift = 16
	return p
}
