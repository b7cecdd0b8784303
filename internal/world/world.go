package world

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/meshing"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"go.uber.org/atomic"
)

const (
	// DefaultBlockUpdateBatch максимум исходящих изменений блоков за тик
	DefaultBlockUpdateBatch = 8192
	// DefaultStateBatch максимум изменённых состояний за тик
	DefaultStateBatch = 4096
)

// BlockUpdate исходящее изменение блока для репликации
type BlockUpdate struct {
	Pos       vec.Vec3
	ID        block.BlockID
	Direction int
}

// StateDiff изменённые состояния одного чанка. Запись с nil State означает удаление.
type StateDiff struct {
	Origin  vec.Vec3
	Entries []StateEntry
}

// Options параметры создания мира
type Options struct {
	Settings      Settings
	Catalog       *block.Catalog
	Generator     Generator   // nil у клиента: блоки приходят по сети
	Source        ChunkSource // Сохранённые чанки; проверяется до генератора
	Presenter     Presenter
	Authoritative bool // Сервер, источник правды
	Headless      bool // Без визуальной геометрии
	Scheduler     SchedulerOptions
	Now           func() time.Time
}

// World хранит чанки и координирует изменения блоков, освещение,
// фоновые проходы и очереди репликации.
type World struct {
	settings      Settings
	catalog       *block.Catalog
	chunks        *ChunkStore
	generator     Generator
	source        ChunkSource
	presenter     Presenter
	authoritative bool
	now           func() time.Time

	builder          *meshing.Builder // Строит геометрию в воркерах
	collisionBuilder *meshing.Builder // Строит столкновения в потоке симуляции, если не в воркерах

	api       *worldBlockAPI
	lightEnv  *worldLightEnv
	scheduler *Scheduler
	ticks     *tickQueue
	logger    *logging.Logger

	destroyed atomic.Bool
	tickCount atomic.Uint64

	updatesMu sync.Mutex
	outgoing  []BlockUpdate // Изменения блоков для репликации

	resultsMu sync.Mutex
	results   []chunkResult // Результаты воркеров для применения в потоке симуляции

	viewersMu sync.RWMutex
	viewers   map[uuid.UUID]*Viewer
}

// chunkResult результат прохода воркера
type chunkResult struct {
	chunk *Chunk
	mesh  *meshing.ChunkMesh
}

// New создаёт мир. Каталог должен быть заморожен.
func New(opts Options) (*World, error) {
	if err := opts.Settings.Validate(); err != nil {
		return nil, err
	}
	if opts.Catalog == nil {
		return nil, fmt.Errorf("не задан каталог блоков")
	}
	if !opts.Catalog.Frozen() {
		return nil, fmt.Errorf("каталог блоков должен быть заморожен до создания мира")
	}
	if opts.Presenter == nil {
		opts.Presenter = NopPresenter{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	var builderOpts []meshing.Option
	if opts.Headless {
		builderOpts = append(builderOpts, meshing.WithoutVisual())
	}
	if !opts.Settings.BuildCollisionInThread {
		builderOpts = append(builderOpts, meshing.WithoutCollision())
	}

	w := &World{
		settings:         opts.Settings,
		catalog:          opts.Catalog,
		chunks:           NewChunkStore(),
		generator:        opts.Generator,
		source:           opts.Source,
		presenter:        opts.Presenter,
		authoritative:    opts.Authoritative,
		now:              opts.Now,
		builder:          meshing.NewBuilder(opts.Catalog, builderOpts...),
		collisionBuilder: meshing.NewBuilder(opts.Catalog, meshing.WithoutVisual()),
		ticks:            newTickQueue(),
		logger:           logging.GetComponentLogger(logging.ComponentWorld),
		viewers:          make(map[uuid.UUID]*Viewer),
	}
	w.api = &worldBlockAPI{world: w}
	w.lightEnv = &worldLightEnv{world: w}
	w.scheduler = newScheduler(w, opts.Scheduler)
	return w, nil
}

// Settings возвращает параметры мира
func (w *World) Settings() Settings {
	return w.settings
}

// Catalog возвращает каталог блоков
func (w *World) Catalog() *block.Catalog {
	return w.catalog
}

// Chunks возвращает хранилище чанков
func (w *World) Chunks() *ChunkStore {
	return w.chunks
}

// Scheduler возвращает планировщик фоновых проходов
func (w *World) Scheduler() *Scheduler {
	return w.scheduler
}

// BlockAPI возвращает интерфейс мира для поведений блоков
func (w *World) BlockAPI() block.BlockAPI {
	return w.api
}

// IsAuthoritative сообщает, является ли мир серверным
func (w *World) IsAuthoritative() bool {
	return w.authoritative
}

// Biomes возвращает таблицу биомов генератора
func (w *World) Biomes() []BiomeDescriptor {
	if src, ok := w.generator.(BiomeSource); ok {
		return src.Biomes()
	}
	return nil
}

// TickCount возвращает количество выполненных тиков симуляции
func (w *World) TickCount() uint64 {
	return w.tickCount.Load()
}

// IsInBounds проверяет, лежит ли позиция внутри мира
func (w *World) IsInBounds(pos vec.Vec3) bool {
	return pos.Within(w.settings.MaxSize)
}

// ToChunkOffset возвращает начало чанка, содержащего позицию
func (w *World) ToChunkOffset(pos vec.Vec3) vec.Vec3 {
	return pos.ChunkOrigin(w.settings.ChunkSize)
}

// ToLocal возвращает позицию внутри чанка
func (w *World) ToLocal(pos vec.Vec3) vec.Vec3 {
	return pos.Local(w.settings.ChunkSize)
}

// ToVoxelPosition переводит позицию бэкенда в воксельную
func (w *World) ToVoxelPosition(p mgl32.Vec3) vec.Vec3 {
	return vec.FromVec3f(p.Mul(1 / w.settings.VoxelSize))
}

// ToSourcePosition переводит воксельную позицию в единицы бэкенда
func (w *World) ToSourcePosition(pos vec.Vec3) mgl32.Vec3 {
	return pos.Vec3f().Mul(w.settings.VoxelSize)
}

// GetChunk возвращает чанк, содержащий мировую позицию, или nil
func (w *World) GetChunk(pos vec.Vec3) *Chunk {
	if !w.IsInBounds(pos) {
		return nil
	}
	return w.chunks.Get(w.ToChunkOffset(pos))
}

// GetOrCreateChunk возвращает чанк по началу, создавая его при необходимости.
// Новый чанк, как и чанк с неудавшимся первым проходом, ставится
// в очередь начальной обработки.
func (w *World) GetOrCreateChunk(origin vec.Vec3) (*Chunk, error) {
	if !w.IsInBounds(origin) || w.ToChunkOffset(origin) != origin {
		return nil, fmt.Errorf("%w: начало чанка %v", ErrOutOfBounds, origin)
	}

	c, _ := w.chunks.GetOrCreate(origin, func() *Chunk {
		return NewChunk(origin, w.settings.ChunkSize)
	})
	w.scheduler.enqueueInitial(c)
	return c, nil
}

// AddChunk создаёт чанк с уже известными блоками (из сети или хранилища)
// и ставит его в очередь первого прохода.
func (w *World) AddChunk(origin vec.Vec3, fill func(c *Chunk) error) (*Chunk, error) {
	if !w.IsInBounds(origin) || w.ToChunkOffset(origin) != origin {
		return nil, fmt.Errorf("%w: начало чанка %v", ErrOutOfBounds, origin)
	}

	c, created := w.chunks.GetOrCreate(origin, func() *Chunk {
		return NewChunk(origin, w.settings.ChunkSize)
	})
	if err := fill(c); err != nil {
		if created {
			w.chunks.Remove(origin)
		}
		return nil, err
	}
	c.MarkGenerated()
	w.QueueFullUpdate(c)
	return c, nil
}

// UnloadChunk выгружает чанк и освобождает его представление
func (w *World) UnloadChunk(origin vec.Vec3) bool {
	c := w.chunks.Remove(origin)
	if c == nil {
		return false
	}
	w.scheduler.forget(c)
	w.ticks.dropChunk(c)
	c.Destroy()
	w.presenter.Release(origin)
	return true
}

// Neighbours возвращает существующие чанки, смежные по граням
func (w *World) Neighbours(c *Chunk) []*Chunk {
	out := make([]*Chunk, 0, block.FaceCount)
	for f := block.Face(0); f < block.FaceCount; f++ {
		origin := c.Offset.Add(f.Direction().Mul(c.Size))
		if nc := w.chunks.Get(origin); nc != nil {
			out = append(out, nc)
		}
	}
	return out
}

// GetBlock возвращает блок в мировой позиции (воздух вне загруженных чанков)
func (w *World) GetBlock(pos vec.Vec3) block.BlockID {
	c := w.GetChunk(pos)
	if c == nil {
		return block.AirID
	}
	return c.BlockAt(pos.Sub(c.Offset))
}

// BlockAt реализует meshing.BlockQuery
func (w *World) BlockAt(pos vec.Vec3) block.BlockID {
	return w.GetBlock(pos)
}

// GetBlockType возвращает тип блока в мировой позиции
func (w *World) GetBlockType(pos vec.Vec3) *block.BlockType {
	return w.catalog.Get(w.GetBlock(pos))
}

// SetBlock заменяет блок: обновляет освещение, состояние, вызывает хуки
// и уведомляет шесть соседей. Вызывается только из потока симуляции.
// Возвращает false, если блок не изменился или позиция вне загруженных чанков.
func (w *World) SetBlock(pos vec.Vec3, id block.BlockID, direction int) bool {
	c := w.GetChunk(pos)
	if c == nil {
		return false
	}
	local := pos.Sub(c.Offset)
	current := c.BlockAt(local)
	if current == id {
		return false
	}

	newType := w.catalog.Get(id)
	oldType := w.catalog.Get(current)

	for _, ch := range TorchChannels {
		c.light.Remove(ch, local)
	}
	c.light.Remove(ChannelSun, local)

	if newType.Emits() {
		for i, ch := range TorchChannels {
			c.light.Add(ch, local, newType.LightEmission[i])
		}
	}

	oldType.Behavior.OnBlockRemoved(w.api, pos)
	c.states.Remove(local)
	c.RemoveEntity(local)
	if err := c.SetBlockLocal(local, id); err != nil {
		w.logger.Error("SetBlock %v: %v", pos, err)
		return false
	}

	newType.Behavior.OnBlockAdded(w.api, pos, direction)

	if w.authoritative {
		w.updatesMu.Lock()
		w.outgoing = append(w.outgoing, BlockUpdate{Pos: pos, ID: id, Direction: direction})
		w.updatesMu.Unlock()
	}

	for f := block.Face(0); f < block.FaceCount; f++ {
		nb := f.Neighbour(pos)
		if w.GetChunk(nb) == nil {
			continue
		}
		w.GetBlockType(nb).Behavior.OnNeighbourUpdated(w.api, nb, pos)
	}
	return true
}

// SetBlockAndUpdate как SetBlock, но дополнительно ставит в очередь полное
// обновление чанка позиции и чанков, смежных с ней по граням.
func (w *World) SetBlockAndUpdate(pos vec.Vec3, id block.BlockID, direction int, force bool) bool {
	c := w.GetChunk(pos)
	if c == nil {
		return false
	}

	changed := w.SetBlock(pos, id, direction)
	if !changed && !force {
		return false
	}

	w.QueueFullUpdate(c)
	for f := block.Face(0); f < block.FaceCount; f++ {
		if nc := w.GetChunk(f.Neighbour(pos)); nc != nil && nc != c {
			w.QueueFullUpdate(nc)
		}
	}
	return changed
}

// QueueFullUpdate ставит чанк в очередь полного прохода.
// Чанк без первого прохода вместо этого возвращается в начальную очередь.
func (w *World) QueueFullUpdate(c *Chunk) {
	if c == nil || c.Destroyed() {
		return
	}
	if !c.FirstUpdateDone() {
		w.scheduler.enqueueInitial(c)
		return
	}
	w.scheduler.enqueueFull(c)
}

// GetState возвращает состояние блока или nil
func (w *World) GetState(pos vec.Vec3) block.State {
	c := w.GetChunk(pos)
	if c == nil {
		return nil
	}
	return c.states.Get(pos.Sub(c.Offset))
}

// GetOrCreateState возвращает состояние, создавая его для блока в позиции
func (w *World) GetOrCreateState(pos vec.Vec3) block.State {
	c := w.GetChunk(pos)
	if c == nil {
		return nil
	}
	local := pos.Sub(c.Offset)
	behavior := w.catalog.Get(c.BlockAt(local)).Behavior
	return c.states.GetOrCreate(local, behavior.NewState)
}

// SetState заменяет состояние блока; nil удаляет
func (w *World) SetState(pos vec.Vec3, st block.State) error {
	c := w.GetChunk(pos)
	if c == nil {
		return fmt.Errorf("%w: %v", ErrOutOfBounds, pos)
	}
	c.states.Set(pos.Sub(c.Offset), st)
	return nil
}

// RemoveState удаляет состояние блока
func (w *World) RemoveState(pos vec.Vec3) bool {
	c := w.GetChunk(pos)
	if c == nil {
		return false
	}
	return c.states.Remove(pos.Sub(c.Offset))
}

// MarkStateDirty добавляет состояние в набор для репликации
func (w *World) MarkStateDirty(pos vec.Vec3) {
	if c := w.GetChunk(pos); c != nil {
		c.states.MarkDirty(pos.Sub(c.Offset))
	}
}

// GetLight возвращает значение канала в мировой позиции
func (w *World) GetLight(ch LightChannel, pos vec.Vec3) uint8 {
	c := w.GetChunk(pos)
	if c == nil {
		return 0
	}
	return c.light.Get(ch, pos.Sub(c.Offset))
}

// SetLight записывает значение канала без распространения
func (w *World) SetLight(ch LightChannel, pos vec.Vec3, value uint8) bool {
	c := w.GetChunk(pos)
	if c == nil {
		return false
	}
	return c.light.Set(ch, pos.Sub(c.Offset), value)
}

// AddLight записывает значение и ставит его в очередь распространения
func (w *World) AddLight(ch LightChannel, pos vec.Vec3, value uint8) {
	if c := w.GetChunk(pos); c != nil {
		c.light.Add(ch, pos.Sub(c.Offset), value)
	}
}

// RemoveLight гасит канал в позиции и ставит удаление в очередь
func (w *World) RemoveLight(ch LightChannel, pos vec.Vec3) {
	if c := w.GetChunk(pos); c != nil {
		c.light.Remove(ch, pos.Sub(c.Offset))
	}
}

// QueueBlockTick планирует вызов Tick блока id через delay
func (w *World) QueueBlockTick(pos vec.Vec3, id block.BlockID, delay time.Duration) {
	if w.GetChunk(pos) == nil {
		return
	}
	w.ticks.schedule(pos, id, w.now().Add(delay))
}

// PendingTicks возвращает количество запланированных тиков
func (w *World) PendingTicks() int {
	return w.ticks.len()
}

// Tick выполняет один шаг симуляции: созревшие тики блоков
// и применение результатов воркеров.
func (w *World) Tick() {
	if w.destroyed.Load() {
		return
	}
	w.tickCount.Inc()

	for _, t := range w.ticks.due(w.now()) {
		if w.GetBlock(t.Pos) != t.ID {
			continue
		}
		w.catalog.Get(t.ID).Behavior.Tick(w.api, t.Pos)
	}

	w.applyResults()
}

func (w *World) pushResult(c *Chunk, mesh *meshing.ChunkMesh) {
	w.resultsMu.Lock()
	w.results = append(w.results, chunkResult{chunk: c, mesh: mesh})
	w.resultsMu.Unlock()
}

// applyResults передаёт готовую геометрию бэкенду
func (w *World) applyResults() {
	w.resultsMu.Lock()
	results := w.results
	w.results = nil
	w.resultsMu.Unlock()

	for _, r := range results {
		c := r.chunk
		if c.Destroyed() || w.chunks.Get(c.Offset) != c {
			continue
		}

		if !w.settings.BuildCollisionInThread && r.mesh != nil {
			src := meshing.Source{
				Origin:    c.Offset,
				Size:      c.Size,
				VoxelSize: w.settings.VoxelSize,
				Blocks:    c.Snapshot(),
			}
			if collision, err := w.collisionBuilder.Build(context.Background(), src, w); err == nil {
				r.mesh.Collision = collision.Collision
			} else {
				w.logger.Warn("Сетка столкновений чанка %v не построена: %v", c.Offset, err)
			}
		}

		c.light.UpdateTexture()
		c.setMesh(r.mesh)
		w.presenter.Apply(ChunkUpdate{Origin: c.Offset, Mesh: r.mesh, Light: c.light.PublishedData()})
	}
}

// DrainBlockUpdates извлекает не более max исходящих изменений блоков
func (w *World) DrainBlockUpdates(max int) []BlockUpdate {
	w.updatesMu.Lock()
	defer w.updatesMu.Unlock()

	n := min(max, len(w.outgoing))
	if n <= 0 {
		return nil
	}
	batch := make([]BlockUpdate, n)
	copy(batch, w.outgoing[:n])
	w.outgoing = w.outgoing[n:]
	if len(w.outgoing) == 0 {
		w.outgoing = nil
	}
	return batch
}

// PendingBlockUpdates возвращает количество неотправленных изменений блоков
func (w *World) PendingBlockUpdates() int {
	w.updatesMu.Lock()
	defer w.updatesMu.Unlock()
	return len(w.outgoing)
}

// DrainDirtyStates собирает не более max изменённых состояний по всем чанкам.
// Флаги снимаются; при неудачной отправке вызывающий возвращает их RestoreDirtyStates.
func (w *World) DrainDirtyStates(max int) []StateDiff {
	var diffs []StateDiff
	remaining := max

	for _, c := range w.chunks.All() {
		if remaining <= 0 {
			break
		}
		positions := c.states.DrainDirty(remaining)
		if len(positions) == 0 {
			continue
		}
		remaining -= len(positions)

		diff := StateDiff{Origin: c.Offset, Entries: make([]StateEntry, 0, len(positions))}
		for _, local := range positions {
			entry := StateEntry{Local: local, ID: c.BlockAt(local)}
			if st := c.states.Get(local); st != nil {
				entry.State = st.Copy()
			}
			diff.Entries = append(diff.Entries, entry)
		}
		sortStateEntries(diff.Entries)
		diffs = append(diffs, diff)
	}
	return diffs
}

// RestoreDirtyStates возвращает флаги изменений неотправленных состояний
func (w *World) RestoreDirtyStates(diffs []StateDiff) {
	for _, d := range diffs {
		c := w.chunks.Get(d.Origin)
		if c == nil {
			continue
		}
		positions := make([]vec.Vec3, len(d.Entries))
		for i, e := range d.Entries {
			positions[i] = e.Local
		}
		c.states.Restore(positions)
	}
}

// Destroy останавливает фоновую обработку и освобождает все чанки
func (w *World) Destroy() {
	if !w.destroyed.CAS(false, true) {
		return
	}
	for _, c := range w.chunks.Clear() {
		c.Destroy()
		w.presenter.Release(c.Offset)
	}
	w.logger.Info("Мир уничтожен")
}

// Destroyed сообщает, был ли мир уничтожен
func (w *World) Destroyed() bool {
	return w.destroyed.Load()
}
