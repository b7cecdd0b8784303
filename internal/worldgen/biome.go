package worldgen

import (
	"fmt"

	"github.com/annel0/voxel-engine/internal/world/block"
	"github.com/annel0/voxel-engine/internal/world/block/implementations"
)

// Biome набор блоков поверхности и климатические параметры.
// Параметры сравниваются с шумом сэмплера в диапазоне [-1, 1].
type Biome struct {
	ID            uint8
	Name          string
	TopID         block.BlockID
	GroundID      block.BlockID
	UndergroundID block.BlockID
	BeachID       block.BlockID
	LiquidID      block.BlockID
	TreeLogID     block.BlockID // AirID - биом без деревьев
	TreeLeafID    block.BlockID
	TreeChance    float64 // Вероятность дерева на верхнем блоке
	Temperature   float64
	Precipitation float64
	Weighting     float64
}

// HasTrees сообщает, растут ли в биоме деревья
func (b *Biome) HasTrees() bool {
	return b.TreeLogID != block.AirID && b.TreeChance > 0
}

func (b *Biome) parameters() [samplerChannels]float64 {
	return [samplerChannels]float64{b.Temperature, b.Precipitation, b.Weighting}
}

// StandardBiomes равнины, лес, пустыня и тундра из стандартного каталога
func StandardBiomes(c *block.Catalog) ([]Biome, error) {
	ids := make(map[string]block.BlockID)
	for _, name := range []string{
		implementations.NameGrass, implementations.NameDirt, implementations.NameStone,
		implementations.NameSand, implementations.NameSnow, implementations.NameWater,
		implementations.NameLog, implementations.NameLeaves,
	} {
		id, ok := c.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q нужен для биомов", block.ErrUnknownBlock, name)
		}
		ids[name] = id
	}

	grass, dirt, stone := ids[implementations.NameGrass], ids[implementations.NameDirt], ids[implementations.NameStone]
	sand, snow, water := ids[implementations.NameSand], ids[implementations.NameSnow], ids[implementations.NameWater]
	log, leaves := ids[implementations.NameLog], ids[implementations.NameLeaves]

	return []Biome{
		{
			ID: 0, Name: "plains",
			TopID: grass, GroundID: dirt, UndergroundID: stone, BeachID: sand, LiquidID: water,
			TreeLogID: log, TreeLeafID: leaves, TreeChance: 0.002,
			Temperature: 0.1, Precipitation: 0,
		},
		{
			ID: 1, Name: "forest",
			TopID: grass, GroundID: dirt, UndergroundID: stone, BeachID: sand, LiquidID: water,
			TreeLogID: log, TreeLeafID: leaves, TreeChance: 0.02,
			Temperature: 0.1, Precipitation: 0.4,
		},
		{
			ID: 2, Name: "desert",
			TopID: sand, GroundID: sand, UndergroundID: stone, BeachID: sand, LiquidID: water,
			Temperature: 0.5, Precipitation: -0.4,
		},
		{
			ID: 3, Name: "tundra",
			TopID: snow, GroundID: dirt, UndergroundID: stone, BeachID: sand, LiquidID: water,
			TreeLogID: log, TreeLeafID: leaves, TreeChance: 0.001,
			Temperature: -0.5, Precipitation: 0.1,
		},
	}, nil
}
