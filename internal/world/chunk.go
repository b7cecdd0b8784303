package world

import (
	"fmt"
	"sync"
	"time"

	"github.com/annel0/voxel-engine/internal/meshing"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
)

// Lifecycle стадия жизненного цикла чанка
type Lifecycle int32

const (
	LifecycleUnloaded Lifecycle = iota
	LifecycleGenerating
	LifecycleAwaitingFirstUpdate
	LifecycleLive
	LifecyclePendingFullUpdate
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleUnloaded:
		return "unloaded"
	case LifecycleGenerating:
		return "generating"
	case LifecycleAwaitingFirstUpdate:
		return "awaiting_first_update"
	case LifecycleLive:
		return "live"
	case LifecyclePendingFullUpdate:
		return "pending_full_update"
	default:
		return "unknown"
	}
}

// Chunk участок мира фиксированного размера.
// Блоки пишутся только из потока симуляции; воркеры читают их под RLock.
type Chunk struct {
	Offset vec.Vec3 // Мировая позиция начала чанка
	Size   vec.Vec3 // Размер чанка в вокселях

	mu     sync.RWMutex    // Защищает blocks
	blocks []block.BlockID // Индекс x*sy*sz + y*sz + z

	light  *LightField
	states *BlockStateStore

	passMu sync.Mutex // Удерживается на время прохода освещения и построения геометрии

	flagsMu             sync.Mutex // Защищает поля ниже
	lifecycle           Lifecycle
	generated           bool
	firstUpdateDone     bool
	queuedInitial       bool // Чанк стоит в начальной очереди
	queuedForUpdate     bool // Чанк стоит в очереди полного обновления
	queuedForNextUpdate bool // Нужен повторный проход после текущего
	inPass              bool
	destroyed           bool
	retryAt             time.Time // Неудачный первый проход повторяется не раньше
	entities            map[vec.Vec3]EntityHandle
	mesh                *meshing.ChunkMesh
}

// NewChunk создаёт пустой (заполненный воздухом) чанк
func NewChunk(offset, size vec.Vec3) *Chunk {
	return &Chunk{
		Offset:   offset,
		Size:     size,
		blocks:   make([]block.BlockID, size.Volume()),
		light:    NewLightField(offset, size),
		states:   NewBlockStateStore(),
		entities: make(map[vec.Vec3]EntityHandle),
	}
}

// Index возвращает индекс локальной позиции или -1 вне чанка
func (c *Chunk) Index(local vec.Vec3) int {
	if !local.Within(c.Size) {
		return -1
	}
	return local.X*c.Size.Y*c.Size.Z + local.Y*c.Size.Z + local.Z
}

// LocalFromIndex восстанавливает локальную позицию по индексу
func (c *Chunk) LocalFromIndex(i int) vec.Vec3 {
	yz := c.Size.Y * c.Size.Z
	return vec.New(i/yz, (i%yz)/c.Size.Z, i%c.Size.Z)
}

// Contains проверяет, принадлежит ли мировая позиция чанку
func (c *Chunk) Contains(pos vec.Vec3) bool {
	return pos.Sub(c.Offset).Within(c.Size)
}

// Center возвращает центр чанка в мировых вокселях
func (c *Chunk) Center() vec.Vec3 {
	return c.Offset.Add(c.Size.Div(vec.Splat(2)))
}

// BlockAt возвращает блок в локальной позиции (воздух вне чанка)
func (c *Chunk) BlockAt(local vec.Vec3) block.BlockID {
	i := c.Index(local)
	if i < 0 {
		return block.AirID
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[i]
}

// GetBlock как BlockAt, но сообщает об обращении вне чанка
func (c *Chunk) GetBlock(local vec.Vec3) (block.BlockID, error) {
	i := c.Index(local)
	if i < 0 {
		return block.AirID, fmt.Errorf("%w: %v в чанке %v", ErrOutOfBounds, local, c.Offset)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[i], nil
}

// SetBlockLocal записывает блок без хуков и освещения
func (c *Chunk) SetBlockLocal(local vec.Vec3, id block.BlockID) error {
	i := c.Index(local)
	if i < 0 {
		return fmt.Errorf("%w: %v в чанке %v", ErrOutOfBounds, local, c.Offset)
	}
	c.mu.Lock()
	c.blocks[i] = id
	c.mu.Unlock()
	return nil
}

// Snapshot возвращает копию массива блоков
func (c *Chunk) Snapshot() []block.BlockID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]block.BlockID, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// LoadBlocks заменяет массив блоков целиком
func (c *Chunk) LoadBlocks(blocks []block.BlockID) error {
	if len(blocks) != len(c.blocks) {
		return fmt.Errorf("чанк %v: ожидалось %d блоков, получено %d", c.Offset, len(c.blocks), len(blocks))
	}
	c.mu.Lock()
	copy(c.blocks, blocks)
	c.mu.Unlock()
	return nil
}

// HasOnlyAir сообщает, состоит ли чанк только из воздуха
func (c *Chunk) HasOnlyAir() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range c.blocks {
		if id != block.AirID {
			return false
		}
	}
	return true
}

// Light возвращает поле освещения чанка
func (c *Chunk) Light() *LightField {
	return c.light
}

// States возвращает хранилище состояний блоков
func (c *Chunk) States() *BlockStateStore {
	return c.states
}

// StateEntries возвращает состояния вместе с ID блоков
func (c *Chunk) StateEntries() []StateEntry {
	return c.states.Entries(c.BlockAt)
}

// Lifecycle возвращает текущую стадию
func (c *Chunk) Lifecycle() Lifecycle {
	c.flagsMu.Lock()
	defer c.flagsMu.Unlock()
	return c.lifecycle
}

func (c *Chunk) setLifecycle(l Lifecycle) {
	c.flagsMu.Lock()
	c.lifecycle = l
	c.flagsMu.Unlock()
}

// Generated сообщает, был ли чанк сгенерирован или загружен
func (c *Chunk) Generated() bool {
	c.flagsMu.Lock()
	defer c.flagsMu.Unlock()
	return c.generated
}

// MarkGenerated помечает чанк заполненным (генератором, хранилищем или сетью)
func (c *Chunk) MarkGenerated() {
	c.flagsMu.Lock()
	c.generated = true
	c.flagsMu.Unlock()
}

// FirstUpdateDone сообщает, завершён ли первый полный проход
func (c *Chunk) FirstUpdateDone() bool {
	c.flagsMu.Lock()
	defer c.flagsMu.Unlock()
	return c.firstUpdateDone
}

// Destroyed сообщает, был ли чанк выгружен
func (c *Chunk) Destroyed() bool {
	c.flagsMu.Lock()
	defer c.flagsMu.Unlock()
	return c.destroyed
}

// Mesh возвращает последнюю применённую геометрию
func (c *Chunk) Mesh() *meshing.ChunkMesh {
	c.flagsMu.Lock()
	defer c.flagsMu.Unlock()
	return c.mesh
}

func (c *Chunk) setMesh(m *meshing.ChunkMesh) {
	c.flagsMu.Lock()
	c.mesh = m
	c.flagsMu.Unlock()
}

// SetEntity привязывает сущность к вокселю, освобождая предыдущую
func (c *Chunk) SetEntity(local vec.Vec3, e EntityHandle) {
	c.flagsMu.Lock()
	prev := c.entities[local]
	if e == nil {
		delete(c.entities, local)
	} else {
		c.entities[local] = e
	}
	c.flagsMu.Unlock()

	if prev != nil && prev != e {
		prev.Release()
	}
}

// RemoveEntity освобождает сущность вокселя
func (c *Chunk) RemoveEntity(local vec.Vec3) {
	c.SetEntity(local, nil)
}

// Entity возвращает сущность вокселя или nil
func (c *Chunk) Entity(local vec.Vec3) EntityHandle {
	c.flagsMu.Lock()
	defer c.flagsMu.Unlock()
	return c.entities[local]
}

// Entities возвращает сущности чанка в детерминированном порядке
func (c *Chunk) Entities() []EntityRecord {
	c.flagsMu.Lock()
	defer c.flagsMu.Unlock()

	out := make([]EntityRecord, 0, len(c.entities))
	for local, e := range c.entities {
		out = append(out, EntityRecord{Local: local, Handle: e})
	}
	sortEntityRecords(out)
	return out
}

// Destroy освобождает сущности и помечает чанк выгруженным
func (c *Chunk) Destroy() {
	c.flagsMu.Lock()
	if c.destroyed {
		c.flagsMu.Unlock()
		return
	}
	c.destroyed = true
	c.lifecycle = LifecycleUnloaded
	entities := c.entities
	c.entities = make(map[vec.Vec3]EntityHandle)
	c.mesh = nil
	c.flagsMu.Unlock()

	for _, e := range entities {
		e.Release()
	}
}
