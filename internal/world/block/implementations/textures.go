package implementations

// Индексы текстур в стандартном атласе
const (
	TextureNone uint16 = iota
	TextureStone
	TextureDirt
	TextureGrassTop
	TextureGrassSide
	TextureSand
	TextureLogTop
	TextureLogSide
	TextureLeaves
	TextureGlass
	TextureWater
	TextureLampRed
	TextureLampGreen
	TextureLampBlue
	TextureLampWhite
	TextureSnow
)
