package implementations

import (
	"fmt"

	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/world/block"
)

// Имена стандартных блоков
const (
	NameStone     = "stone"
	NameDirt      = "dirt"
	NameGrass     = "grass"
	NameSand      = "sand"
	NameSnow      = "snow"
	NameLog       = "log"
	NameLeaves    = "leaves"
	NameGlass     = "glass"
	NameWater     = "water"
	NameRedLamp   = "red_lamp"
	NameGreenLamp = "green_lamp"
	NameBlueLamp  = "blue_lamp"
	NameLamp      = "lamp"
)

// RegisterStandard регистрирует стандартный набор блоков в фиксированном порядке.
// Порядок определяет ID и должен совпадать у сервера и клиента.
func RegisterStandard(c *block.Catalog) error {
	dirtID, err := c.Register(&DirtBehavior{})
	if err != nil {
		return err
	}

	water := NewLiquidBehavior(NameWater, TextureWater)
	behaviors := []block.BlockBehavior{
		&StoneBehavior{},
		NewGrassBehavior(c, dirtID),
		&SandBehavior{},
		&SnowBehavior{},
		&LogBehavior{},
		&LeavesBehavior{},
		&GlassBehavior{},
		water,
		NewLampBehavior(NameRedLamp, [3]uint8{15, 0, 0}, TextureLampRed),
		NewLampBehavior(NameGreenLamp, [3]uint8{0, 15, 0}, TextureLampGreen),
		NewLampBehavior(NameBlueLamp, [3]uint8{0, 0, 15}, TextureLampBlue),
		NewLampBehavior(NameLamp, [3]uint8{15, 15, 15}, TextureLampWhite),
	}

	for _, b := range behaviors {
		if _, err := c.Register(b); err != nil {
			return fmt.Errorf("регистрация блока %s: %w", b.Name(), err)
		}
	}
	water.Bind(c.MustLookup(NameWater))
	return nil
}

// Standard создаёт замороженный каталог со стандартными блоками и
// дополнительными ресурсами из YAML-файлов.
func Standard(resourceFiles ...string) (*block.Catalog, error) {
	c := block.NewCatalog()
	if err := RegisterStandard(c); err != nil {
		return nil, err
	}

	for _, path := range resourceFiles {
		resources, err := LoadResourceFile(path)
		if err != nil {
			return nil, err
		}
		if err := RegisterResources(c, resources); err != nil {
			return nil, err
		}
		logging.Info("Загружено %d блоков из %s", len(resources), path)
	}

	c.Freeze()
	return c, nil
}

// MustStandard как Standard без ресурсов; паникует при ошибке
func MustStandard() *block.Catalog {
	c, err := Standard()
	if err != nil {
		panic(err)
	}
	return c
}
