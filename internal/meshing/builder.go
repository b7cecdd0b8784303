package meshing

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
	"github.com/go-gl/mathgl/mgl32"
)

// Layer слой отрисовки
type Layer int

const (
	LayerOpaque Layer = iota
	LayerAlphaTest
	LayerTranslucent
	LayerCount
)

func (l Layer) String() string {
	switch l {
	case LayerOpaque:
		return "opaque"
	case LayerAlphaTest:
		return "alpha_test"
	case LayerTranslucent:
		return "translucent"
	default:
		return "unknown"
	}
}

// CollisionMesh объединённая сетка столкновений чанка в мировых координатах
type CollisionMesh struct {
	Vertices []mgl32.Vec3
	Indices  []uint32
}

// ChunkMesh результат построения геометрии чанка
type ChunkMesh struct {
	Origin    vec.Vec3
	Valid     bool
	Layers    [LayerCount][]Vertex
	Collision CollisionMesh
}

// FaceCount возвращает количество визуальных граней слоя
func (m *ChunkMesh) FaceCount(layer Layer) int {
	return len(m.Layers[layer]) / VerticesPerFace
}

// CollisionFaceCount возвращает количество граней столкновений
func (m *ChunkMesh) CollisionFaceCount() int {
	return len(m.Collision.Indices) / len(faceTriangles)
}

// BlockQuery даёт доступ к блокам соседних чанков (мировые позиции)
type BlockQuery interface {
	BlockAt(pos vec.Vec3) block.BlockID
}

// Source снимок блоков чанка, по которому строится геометрия
type Source struct {
	Origin    vec.Vec3
	Size      vec.Vec3
	VoxelSize float32
	Blocks    []block.BlockID // индекс x*sy*sz + y*sz + z
}

func (s *Source) index(local vec.Vec3) int {
	return local.X*s.Size.Y*s.Size.Z + local.Y*s.Size.Z + local.Z
}

// Builder строит геометрию чанка по каталогу блоков.
// Не хранит состояния между вызовами и может использоваться из нескольких горутин.
type Builder struct {
	catalog        *block.Catalog
	buildVisual    bool
	buildCollision bool
}

// Option настраивает Builder
type Option func(*Builder)

// WithoutVisual отключает построение визуальных слоёв (сервер без рендера)
func WithoutVisual() Option {
	return func(b *Builder) { b.buildVisual = false }
}

// WithoutCollision отключает построение сетки столкновений
func WithoutCollision() Option {
	return func(b *Builder) { b.buildCollision = false }
}

// NewBuilder создаёт построитель геометрии
func NewBuilder(catalog *block.Catalog, opts ...Option) *Builder {
	b := &Builder{
		catalog:        catalog,
		buildVisual:    true,
		buildCollision: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// HueSeed возвращает зерно генератора оттенков для чанка
func HueSeed(origin, size vec.Vec3) int64 {
	return int64(origin.X*size.Y*size.Z + origin.Y*size.Z + origin.Z)
}

// Build строит визуальные слои и сетку столкновений. Прерывается при отмене ctx.
func (b *Builder) Build(ctx context.Context, src Source, query BlockQuery) (*ChunkMesh, error) {
	if len(src.Blocks) != src.Size.Volume() {
		return nil, fmt.Errorf("снимок чанка %v: ожидалось %d блоков, получено %d",
			src.Origin, src.Size.Volume(), len(src.Blocks))
	}

	mesh := &ChunkMesh{Origin: src.Origin}
	rng := rand.New(rand.NewSource(HueSeed(src.Origin, src.Size)))

	for x := 0; x < src.Size.X; x++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for y := 0; y < src.Size.Y; y++ {
			for z := 0; z < src.Size.Z; z++ {
				local := vec.New(x, y, z)
				id := src.Blocks[src.index(local)]
				if id == block.AirID {
					continue
				}
				bt := b.catalog.Get(id)
				hue := pickHue(rng, bt)

				for f := block.Face(0); f < block.FaceCount; f++ {
					nb := b.catalog.Get(b.neighbour(&src, query, local, f))
					b.emitFace(mesh, &src, local, bt, nb, f, hue)
				}
			}
		}
	}

	mesh.Valid = true
	return mesh, nil
}

func (b *Builder) neighbour(src *Source, query BlockQuery, local vec.Vec3, f block.Face) block.BlockID {
	nl := f.Neighbour(local)
	if nl.Within(src.Size) {
		return src.Blocks[src.index(nl)]
	}
	if query == nil {
		return block.AirID
	}
	return query.BlockAt(src.Origin.Add(nl))
}

func pickHue(rng *rand.Rand, bt *block.BlockType) uint8 {
	lo := clampHue(bt.MinHueShift)
	hi := clampHue(bt.MaxHueShift)
	if hi <= lo {
		return uint8(lo)
	}
	return uint8(lo + rng.Intn(hi-lo+1))
}

func clampHue(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxHueShift {
		return MaxHueShift
	}
	return v
}

func (b *Builder) emitFace(mesh *ChunkMesh, src *Source, local vec.Vec3, bt, nb *block.BlockType, f block.Face, hue uint8) {
	visual := b.buildVisual && !bt.HideMesh && nb.Translucent && !bt.ShouldCullFace(f, nb)
	collision := b.buildCollision && !bt.Passable && nb.Passable
	if !visual && !collision {
		return
	}

	corners := faceCorners[f]

	if visual {
		layer := LayerOpaque
		if bt.Translucent {
			layer = LayerAlphaTest
			if bt.UseTransparency {
				layer = LayerTranslucent
			}
		}
		texture := bt.TextureID(f)
		for _, i := range faceTriangles {
			mesh.Layers[layer] = append(mesh.Layers[layer],
				PackVertex(local.Add(corners[i]), local, texture, f, hue))
		}
	}

	if collision {
		base := uint32(len(mesh.Collision.Vertices))
		world := src.Origin.Add(local)
		for _, c := range corners {
			mesh.Collision.Vertices = append(mesh.Collision.Vertices,
				world.Add(c).Vec3f().Mul(src.VoxelSize))
		}
		for _, i := range faceTriangles {
			mesh.Collision.Indices = append(mesh.Collision.Indices, base+uint32(i))
		}
	}
}
