package worldgen

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world"
	"github.com/annel0/voxel-engine/internal/world/block"
	"github.com/aquilax/go-perlin"
	"github.com/ojrac/opensimplex-go"
)

// GeneratorName имя генератора в таблице биомов снимка
const GeneratorName = "perlin"

// Параметры шума высот
const (
	perlinAlpha   = 2.0 // Сглаживание шума
	perlinBeta    = 2.0 // Частота шума
	perlinOctaves = 4

	heightFrequency = 1.0 / 256
	ridgeFrequency  = 1.0 / 1024
	caveFrequency   = 1.0 / 48
	caveOffset      = 88.0

	// DefaultCaveThreshold порог n1²+n2², ниже которого воксель становится пещерой
	DefaultCaveThreshold = 0.02
	// DefaultAmplitude размах высот относительно базового уровня
	DefaultAmplitude = 32
)

// Options параметры генератора. Отрицательный CaveThreshold отключает пещеры,
// отрицательный TreeScale отключает деревья.
type Options struct {
	Seed          int64
	SeaLevel      int
	BaseHeight    int // 0 - SeaLevel+4
	Amplitude     float64
	CaveThreshold float64
	TreeScale     float64 // Множитель вероятности деревьев биома; 0 - 1
	Biomes        []Biome
}

// PerlinGenerator генерирует рельеф по карте высот из шума Перлина,
// заливает низины жидкостью, вырезает пещеры трёхмерным simplex-шумом
// и сажает деревья. Биомы выбираются BiomeSampler.
// Реализует world.Generator и world.BiomeSource.
type PerlinGenerator struct {
	opts    Options
	heights [3]*perlin.Perlin
	ridge   opensimplex.Noise
	cave    opensimplex.Noise
	sampler *BiomeSampler
}

// NewPerlinGenerator создаёт генератор
func NewPerlinGenerator(opts Options) (*PerlinGenerator, error) {
	if len(opts.Biomes) == 0 {
		return nil, errors.New("генератору нужен хотя бы один биом")
	}
	if len(opts.Biomes) > 256 {
		return nil, fmt.Errorf("слишком много биомов: %d", len(opts.Biomes))
	}
	if opts.BaseHeight == 0 {
		opts.BaseHeight = opts.SeaLevel + 4
	}
	if opts.Amplitude == 0 {
		opts.Amplitude = DefaultAmplitude
	}
	if opts.CaveThreshold == 0 {
		opts.CaveThreshold = DefaultCaveThreshold
	}
	if opts.TreeScale == 0 {
		opts.TreeScale = 1
	}

	g := &PerlinGenerator{
		opts:    opts,
		ridge:   opensimplex.New(opts.Seed + 3),
		cave:    opensimplex.New(opts.Seed + 4),
		sampler: NewBiomeSampler(opts.Seed+16, opts.Biomes),
	}
	for i := range g.heights {
		g.heights[i] = perlin.NewPerlin(perlinAlpha, perlinBeta, perlinOctaves, opts.Seed+int64(i))
	}
	logging.Info("Генератор рельефа: seed %d, уровень моря %d, %d биомов", opts.Seed, opts.SeaLevel, len(opts.Biomes))
	return g, nil
}

// Biomes публикует таблицу биомов
func (g *PerlinGenerator) Biomes() []world.BiomeDescriptor {
	out := make([]world.BiomeDescriptor, len(g.opts.Biomes))
	for i, b := range g.opts.Biomes {
		out[i] = world.BiomeDescriptor{ID: b.ID, Name: b.Name, Generator: GeneratorName}
	}
	return out
}

// BiomeAt возвращает биом колонки (x, y)
func (g *PerlinGenerator) BiomeAt(x, y int) *Biome {
	return g.sampler.At(x, y)
}

// HeightAt возвращает высоту поверхности в колонке (x, y)
func (g *PerlinGenerator) HeightAt(x, y int) int {
	fx, fy := float64(x)*heightFrequency, float64(y)*heightFrequency
	n1 := g.heights[0].Noise2D(fx, fy)
	n2 := g.heights[1].Noise2D(fx, fy)
	n3 := g.heights[2].Noise2D(fx, fy)
	n4 := (g.ridge.Eval2(float64(x)*ridgeFrequency, float64(y)*ridgeFrequency) + 1) / 2
	return int((n1+n2*n3*(n4*2-1))*g.opts.Amplitude) + g.opts.BaseHeight
}

func (g *PerlinGenerator) isCave(x, y, z int) bool {
	if g.opts.CaveThreshold < 0 {
		return false
	}
	fx, fy, fz := float64(x)*caveFrequency, float64(y)*caveFrequency, float64(z)*caveFrequency
	n1 := g.cave.Eval3(fx, fy, fz)
	n2 := g.cave.Eval3(fx, fy+caveOffset*caveFrequency, fz)
	return n1*n1+n2*n2 < g.opts.CaveThreshold
}

// chunkRand детерминированный генератор случайных чисел чанка
func (g *PerlinGenerator) chunkRand(origin, size vec.Vec3) *rand.Rand {
	seed := g.opts.Seed
	for _, v := range [...]int{origin.X, origin.Y, origin.Z, size.X} {
		seed = seed*31 + int64(v)
	}
	return rand.New(rand.NewSource(seed))
}

// Generate заполняет блоки чанка
func (g *PerlinGenerator) Generate(ctx context.Context, origin, size vec.Vec3, blocks []block.BlockID) error {
	if len(blocks) != size.Volume() {
		return fmt.Errorf("буфер блоков %d, ожидалось %d", len(blocks), size.Volume())
	}
	rng := g.chunkRand(origin, size)
	sea := g.opts.SeaLevel
	index := func(x, y, z int) int { return x*size.Y*size.Z + y*size.Z + z }

	for x := 0; x < size.X; x++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for y := 0; y < size.Y; y++ {
			wx, wy := origin.X+x, origin.Y+y
			biome := g.sampler.At(wx, wy)
			h := g.HeightAt(wx, wy)

			for z := 0; z < size.Z; z++ {
				wz := origin.Z + z
				i := index(x, y, z)

				if wz > h {
					if wz < sea && blocks[i] == block.AirID {
						blocks[i] = biome.LiquidID
					}
					continue
				}

				top := wz == h && wz > sea-1
				switch {
				case top:
					blocks[i] = biome.TopID
				case wz <= sea-1 && h < sea && wz > h-3:
					blocks[i] = biome.BeachID
				case wz > h-3:
					blocks[i] = biome.GroundID
				default:
					blocks[i] = biome.UndergroundID
				}

				if g.isCave(wx, wy, wz) {
					blocks[i] = block.AirID
					continue
				}

				if top && biome.HasTrees() && rng.Float64() < biome.TreeChance*g.opts.TreeScale {
					placeTree(blocks, size, vec.New(x, y, z), biome, rng)
				}
			}
		}
	}
	return nil
}

// placeTree ставит ствол и крону над локальной позицией base.
// Деревья, не помещающиеся в чанк целиком, пропускаются.
func placeTree(blocks []block.BlockID, size, base vec.Vec3, biome *Biome, rng *rand.Rand) bool {
	const (
		minTrunk, maxTrunk   = 3, 6
		minRadius, maxRadius = 1, 2
	)
	trunk := minTrunk + rng.Intn(maxTrunk-minTrunk+1)
	radius := minRadius + rng.Intn(maxRadius-minRadius+1)
	x, y, z := base.X, base.Y, base.Z
	trunkTop := z + trunk

	if trunkTop+radius+1 >= size.Z ||
		x <= radius || x >= size.X-radius ||
		y <= radius || y >= size.Y-radius {
		return false
	}

	index := func(p vec.Vec3) int { return p.X*size.Y*size.Z + p.Y*size.Z + p.Z }

	for tz := z + 1; tz < trunkTop; tz++ {
		blocks[index(vec.New(x, y, tz))] = biome.TreeLogID
	}

	for lx := x - radius; lx <= x+radius; lx++ {
		for ly := y - radius; ly <= y+radius; ly++ {
			corner := (lx == x-radius || lx == x+radius) && (ly == y-radius || ly == y+radius)
			if corner {
				continue
			}
			for lz := trunkTop; lz <= trunkTop+radius; lz++ {
				if i := index(vec.New(lx, ly, lz)); blocks[i] == block.AirID {
					blocks[i] = biome.TreeLeafID
				}
			}
		}
	}

	for lx := x - (radius - 1); lx <= x+(radius-1); lx++ {
		for ly := y - (radius - 1); ly <= y+(radius-1); ly++ {
			if i := index(vec.New(lx, ly, trunkTop+radius+1)); blocks[i] == block.AirID {
				blocks[i] = biome.TreeLeafID
			}
		}
	}
	return true
}
