package implementations

import (
	"fmt"
	"os"
	"strings"

	"github.com/annel0/voxel-engine/internal/world/block"
	"gopkg.in/yaml.v3"
)

// BlockResource описание блока без собственной логики, загружаемое из YAML
type BlockResource struct {
	Name            string            `yaml:"name"`
	Aliases         []string          `yaml:"aliases"`
	Texture         uint16            `yaml:"texture"`
	FaceTextures    map[string]uint16 `yaml:"face_textures"`
	Translucent     bool              `yaml:"translucent"`
	UseTransparency bool              `yaml:"use_transparency"`
	Passable        bool              `yaml:"passable"`
	AttenuatesSun   bool              `yaml:"attenuates_sun"`
	LightLevel      [3]uint8          `yaml:"light_level"`
	LightFilter     *[3]float32       `yaml:"light_filter"`
	MinHueShift     int               `yaml:"min_hue_shift"`
	MaxHueShift     int               `yaml:"max_hue_shift"`
}

// resourceFile корневая структура файла ресурсов
type resourceFile struct {
	Blocks []BlockResource `yaml:"blocks"`
}

// AssetBehavior блок, полностью описанный ресурсом
type AssetBehavior struct {
	block.Base
	res BlockResource
}

// NewAssetBehavior создаёт поведение по ресурсу
func NewAssetBehavior(res BlockResource) *AssetBehavior {
	return &AssetBehavior{res: res}
}

func (b *AssetBehavior) Name() string {
	return b.res.Name
}

func (b *AssetBehavior) Aliases() []string {
	return b.res.Aliases
}

func (b *AssetBehavior) Properties() block.Properties {
	p := block.OpaqueProperties(b.res.Texture)
	for name, tex := range b.res.FaceTextures {
		if f, ok := faceByName(name); ok {
			p.Textures[f] = tex
		}
	}
	p.Translucent = b.res.Translucent
	p.UseTransparency = b.res.UseTransparency
	p.Passable = b.res.Passable
	p.AttenuatesSun = b.res.AttenuatesSun
	p.LightEmission = b.res.LightLevel
	if b.res.LightFilter != nil {
		p.LightFilter = *b.res.LightFilter
	}
	p.MinHueShift = b.res.MinHueShift
	p.MaxHueShift = b.res.MaxHueShift
	return p
}

func faceByName(name string) (block.Face, bool) {
	for f := block.Face(0); f < block.FaceCount; f++ {
		if strings.EqualFold(f.String(), name) {
			return f, true
		}
	}
	return 0, false
}

// ParseResources разбирает YAML со списком блоков
func ParseResources(data []byte) ([]BlockResource, error) {
	var file resourceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("ошибка разбора ресурсов блоков: %w", err)
	}

	for i, res := range file.Blocks {
		if strings.TrimSpace(res.Name) == "" {
			return nil, fmt.Errorf("ресурс блока #%d без имени", i)
		}
		for name := range res.FaceTextures {
			if _, ok := faceByName(name); !ok {
				return nil, fmt.Errorf("ресурс блока %s: неизвестная грань %q", res.Name, name)
			}
		}
	}
	return file.Blocks, nil
}

// LoadResourceFile читает ресурсы блоков из файла
func LoadResourceFile(path string) ([]BlockResource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать ресурсы блоков %s: %w", path, err)
	}
	return ParseResources(data)
}

// RegisterResources регистрирует блоки из ресурсов в каталоге
func RegisterResources(c *block.Catalog, resources []BlockResource) error {
	for _, res := range resources {
		if _, err := c.Register(NewAssetBehavior(res)); err != nil {
			return fmt.Errorf("регистрация ресурса %s: %w", res.Name, err)
		}
	}
	return nil
}
