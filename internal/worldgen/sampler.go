package worldgen

import (
	"math"

	"github.com/ojrac/opensimplex-go"
)

const (
	samplerChannels  = 3 // Температура, осадки, вес
	samplerOctaves   = 5
	samplerFrequency = 1.0 / 800
)

// BiomeSampler выбирает биом, климатические параметры которого ближе всего
// к значениям шума в точке.
type BiomeSampler struct {
	noises [samplerChannels]opensimplex.Noise
	biomes []Biome
}

// NewBiomeSampler создаёт сэмплер; каналы шума используют seed, seed+1, seed+2
func NewBiomeSampler(seed int64, biomes []Biome) *BiomeSampler {
	s := &BiomeSampler{biomes: biomes}
	for i := range s.noises {
		s.noises[i] = opensimplex.New(seed + int64(i))
	}
	return s
}

// At возвращает биом в колонке (x, y) или nil, если таблица пуста
func (s *BiomeSampler) At(x, y int) *Biome {
	var sample [samplerChannels]float64
	for i, n := range s.noises {
		sample[i] = fbm2(n, float64(x), float64(y), samplerOctaves, samplerFrequency)
	}

	var best *Biome
	bestDeviation := math.Inf(1)
	for i := range s.biomes {
		b := &s.biomes[i]
		params := b.parameters()
		deviation := 0.0
		for c := range sample {
			d := sample[c] - params[c]
			deviation += d * d
		}
		if deviation < bestDeviation {
			bestDeviation = deviation
			best = b
		}
	}
	return best
}

// fbm2 фрактальный шум: октавы с удвоением частоты и половинной амплитудой,
// нормированный к [-1, 1]
func fbm2(n opensimplex.Noise, x, y float64, octaves int, freq float64) float64 {
	sum, amp, norm := 0.0, 1.0, 0.0
	for i := 0; i < octaves; i++ {
		sum += n.Eval2(x*freq, y*freq) * amp
		norm += amp
		amp *= 0.5
		freq *= 2
	}
	return sum / norm
}
