package world

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/meshing"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world/block"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultWorkers количество воркеров по умолчанию
	DefaultWorkers = 2
	// DefaultTickDelay пауза воркера при пустых очередях
	DefaultTickDelay = 33 * time.Millisecond
	// InitialRetryDelay пауза перед повтором неудачного первого прохода
	InitialRetryDelay = time.Second
)

// SchedulerOptions параметры планировщика
type SchedulerOptions struct {
	Workers   int
	TickDelay time.Duration
}

type taskKind int

const (
	taskInitial taskKind = iota
	taskFull
)

func (k taskKind) String() string {
	if k == taskInitial {
		return "initial"
	}
	return "full"
}

// schedulerMetrics метрики Prometheus планировщика
type schedulerMetrics struct {
	queueDepth   *prometheus.GaugeVec
	passes       *prometheus.CounterVec
	failures     *prometheus.CounterVec
	passDuration *prometheus.HistogramVec
}

func newSchedulerMetrics() *schedulerMetrics {
	return &schedulerMetrics{
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "voxel",
			Subsystem: "scheduler",
			Name:      "queue_depth",
			Help:      "Количество чанков в очередях планировщика.",
		}, []string{"queue"}),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "scheduler",
			Name:      "passes_total",
			Help:      "Завершённые проходы освещения и геометрии.",
		}, []string{"kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "scheduler",
			Name:      "failures_total",
			Help:      "Проходы, завершившиеся ошибкой или паникой.",
		}, []string{"kind"}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "voxel",
			Subsystem: "scheduler",
			Name:      "pass_duration_seconds",
			Help:      "Длительность прохода чанка.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"kind"}),
	}
}

// Scheduler пул воркеров, выполняющих начальные и полные проходы чанков
type Scheduler struct {
	world  *World
	opts   SchedulerOptions
	logger *logging.Logger
	tracer trace.Tracer

	mu      sync.Mutex
	initial []*Chunk // Новые чанки
	full    []*Chunk // Чанки, ожидающие полного обновления

	metrics *schedulerMetrics
	wg      sync.WaitGroup
	started bool
}

func newScheduler(w *World, opts SchedulerOptions) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.TickDelay <= 0 {
		opts.TickDelay = DefaultTickDelay
	}
	return &Scheduler{
		world:   w,
		opts:    opts,
		logger:  logging.GetSchedulerLogger(),
		tracer:  otel.Tracer("voxel-engine/world"),
		metrics: newSchedulerMetrics(),
	}
}

// RegisterMetrics регистрирует метрики планировщика
func (s *Scheduler) RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		s.metrics.queueDepth, s.metrics.passes, s.metrics.failures, s.metrics.passDuration,
	} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("регистрация метрик планировщика: %w", err)
		}
	}
	return nil
}

// Start запускает воркеры. Они завершаются при отмене ctx или уничтожении мира.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	for i := 0; i < s.opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
	s.logger.Info("Планировщик запущен: %d воркеров, пауза %v", s.opts.Workers, s.opts.TickDelay)
}

// Wait ждёт завершения всех воркеров
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Drain выполняет задачи в вызывающей горутине, пока очереди не опустеют
// или не будет выполнено limit задач. Используется для предварительной
// генерации без воркеров. Возвращает количество выполненных задач.
func (s *Scheduler) Drain(ctx context.Context, limit int) int {
	done := 0
	for done < limit && ctx.Err() == nil && !s.world.Destroyed() {
		c, kind, ok := s.next()
		if !ok {
			break
		}
		s.run(ctx, c, kind)
		done++
	}
	return done
}

// QueueLengths возвращает длины начальной и полной очередей
func (s *Scheduler) QueueLengths() (initial, full int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.initial), len(s.full)
}

// enqueueInitial ставит чанк в начальную очередь не более одного раза.
// Берутся только чанки без первого прохода; после сбоя - не раньше retryAt.
// Если первый проход уже идёт, выставляется флаг повторного прохода.
func (s *Scheduler) enqueueInitial(c *Chunk) {
	c.flagsMu.Lock()
	if c.inPass {
		c.queuedForNextUpdate = true
	}
	if c.destroyed || c.queuedInitial || c.lifecycle != LifecycleUnloaded ||
		s.world.now().Before(c.retryAt) {
		c.flagsMu.Unlock()
		return
	}
	c.queuedInitial = true
	c.flagsMu.Unlock()

	s.mu.Lock()
	s.initial = append(s.initial, c)
	s.updateDepthLocked()
	s.mu.Unlock()
}

// enqueueFull ставит чанк в полную очередь не более одного раза.
// Если проход чанка уже идёт, выставляется флаг повторного прохода.
func (s *Scheduler) enqueueFull(c *Chunk) {
	c.flagsMu.Lock()
	if c.queuedForUpdate {
		c.flagsMu.Unlock()
		return
	}
	if c.inPass {
		c.queuedForNextUpdate = true
		c.flagsMu.Unlock()
		return
	}
	c.queuedForUpdate = true
	if c.lifecycle == LifecycleLive {
		c.lifecycle = LifecyclePendingFullUpdate
	}
	c.flagsMu.Unlock()

	s.mu.Lock()
	s.full = append(s.full, c)
	s.updateDepthLocked()
	s.mu.Unlock()
}

// forget удаляет выгруженный чанк из очередей
func (s *Scheduler) forget(c *Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initial = removeChunk(s.initial, c)
	s.full = removeChunk(s.full, c)
	s.updateDepthLocked()
}

func removeChunk(queue []*Chunk, c *Chunk) []*Chunk {
	out := queue[:0]
	for _, q := range queue {
		if q != c {
			out = append(out, q)
		}
	}
	return out
}

func (s *Scheduler) updateDepthLocked() {
	s.metrics.queueDepth.WithLabelValues("initial").Set(float64(len(s.initial)))
	s.metrics.queueDepth.WithLabelValues("full").Set(float64(len(s.full)))
}

// next выбирает следующую задачу: сначала новые чанки, затем полные обновления.
// В очереди берётся чанк, ближайший к наблюдателю; без наблюдателей - последний добавленный.
func (s *Scheduler) next() (*Chunk, taskKind, bool) {
	viewers := s.world.viewerVoxelPositions()

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.popLocked(&s.initial, viewers); ok {
		return c, taskInitial, true
	}
	if c, ok := s.popLocked(&s.full, viewers); ok {
		return c, taskFull, true
	}
	return nil, taskInitial, false
}

func (s *Scheduler) popLocked(queue *[]*Chunk, viewers []vec.Vec3) (*Chunk, bool) {
	q := *queue
	if len(q) == 0 {
		return nil, false
	}

	idx := len(q) - 1
	if len(viewers) > 0 {
		best := math.MaxInt
		for i, c := range q {
			center := c.Center()
			for _, v := range viewers {
				if d := center.DistanceSq(v); d < best {
					best = d
					idx = i
				}
			}
		}
	}

	c := q[idx]
	*queue = append(q[:idx], q[idx+1:]...)
	s.updateDepthLocked()
	return c, true
}

func (s *Scheduler) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	s.logger.Debug("Воркер %d запущен", id)

	for {
		if ctx.Err() != nil || s.world.Destroyed() {
			s.logger.Debug("Воркер %d остановлен", id)
			return
		}

		c, kind, ok := s.next()
		if !ok {
			select {
			case <-ctx.Done():
			case <-time.After(s.opts.TickDelay):
			}
			continue
		}

		s.run(ctx, c, kind)
	}
}

// run выполняет задачу, перехватывая панику. При сбое чанк возвращается
// в предыдущее состояние, задача отбрасывается.
func (s *Scheduler) run(ctx context.Context, c *Chunk, kind taskKind) {
	start := time.Now()
	prev := c.Lifecycle()

	ctx, span := s.tracer.Start(ctx, "chunk."+kind.String(),
		trace.WithAttributes(
			attribute.Int("chunk.x", c.Offset.X),
			attribute.Int("chunk.y", c.Offset.Y),
			attribute.Int("chunk.z", c.Offset.Z),
		))
	defer span.End()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("паника в проходе чанка %v: %v", c.Offset, r)
			}
		}()
		if kind == taskInitial {
			return s.processInitial(ctx, c)
		}
		return s.processFull(ctx, c)
	}()

	s.metrics.passDuration.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())

	if err != nil {
		s.metrics.failures.WithLabelValues(kind.String()).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() == nil {
			s.logger.Error("Проход %s чанка %v: %v", kind, c.Offset, err)
		}

		c.flagsMu.Lock()
		c.inPass = false
		c.queuedForNextUpdate = false
		if kind == taskInitial {
			c.lifecycle = LifecycleUnloaded
			c.queuedInitial = false
			c.retryAt = s.world.now().Add(InitialRetryDelay)
		} else {
			c.lifecycle = prev
			if c.lifecycle == LifecyclePendingFullUpdate {
				c.lifecycle = LifecycleLive
			}
		}
		c.flagsMu.Unlock()
		return
	}

	s.metrics.passes.WithLabelValues(kind.String()).Inc()
}

// processInitial генерирует чанк (если нужно), засевает освещение,
// выполняет первый проход и переводит чанк в Live.
func (s *Scheduler) processInitial(ctx context.Context, c *Chunk) error {
	w := s.world
	c.passMu.Lock()
	defer c.passMu.Unlock()

	if c.Destroyed() {
		return nil
	}

	c.flagsMu.Lock()
	c.lifecycle = LifecycleGenerating
	c.queuedInitial = false
	c.inPass = true
	needGenerate := !c.generated
	c.flagsMu.Unlock()

	if needGenerate && w.source != nil {
		_, span := s.tracer.Start(ctx, "chunk.restore")
		found, err := w.source.LoadChunk(ctx, c)
		span.End()
		if err != nil {
			s.logger.Warn("Чанк %v не восстановлен из хранилища, генерируем заново: %v", c.Offset, err)
		} else if found {
			c.MarkGenerated()
			needGenerate = false
		}
	}

	if needGenerate && w.generator != nil {
		_, span := s.tracer.Start(ctx, "chunk.generate")
		blocks := make([]block.BlockID, c.Size.Volume())
		err := w.generator.Generate(ctx, c.Offset, c.Size, blocks)
		span.End()
		if err != nil {
			return fmt.Errorf("генерация чанка %v: %w", c.Offset, err)
		}
		if err := c.LoadBlocks(blocks); err != nil {
			return err
		}
		c.MarkGenerated()
	}

	// Освещение из сети приходит готовым; сгенерированным и восстановленным
	// из хранилища чанкам нужны начальные источники
	if !c.light.Loaded() {
		w.seedLight(c)
	}

	c.setLifecycle(LifecycleAwaitingFirstUpdate)
	if err := s.pass(ctx, c); err != nil {
		return err
	}
	s.finishInitial(c)
	return nil
}

// finishInitial переводит чанк в Live после первого прохода. Вызывающий держит c.passMu.
func (s *Scheduler) finishInitial(c *Chunk) {
	w := s.world

	// Соседи могли дописать узлы в очередь освещения, пока шёл проход
	pending := c.light.Pending()

	c.flagsMu.Lock()
	c.firstUpdateDone = true
	c.lifecycle = LifecycleLive
	c.inPass = false
	rerun := c.queuedForNextUpdate || pending
	c.queuedForNextUpdate = false
	c.flagsMu.Unlock()

	// Соседи перестраивают граничные грани с учётом нового чанка
	for _, nc := range w.Neighbours(c) {
		w.QueueFullUpdate(nc)
	}
	if rerun {
		w.QueueFullUpdate(c)
	}
}

// processFull повторно распространяет освещение и перестраивает геометрию
func (s *Scheduler) processFull(ctx context.Context, c *Chunk) error {
	c.passMu.Lock()
	defer c.passMu.Unlock()

	c.flagsMu.Lock()
	if c.destroyed {
		c.queuedForUpdate = false
		c.flagsMu.Unlock()
		return nil
	}
	c.queuedForUpdate = false
	c.inPass = true
	c.flagsMu.Unlock()

	if err := s.pass(ctx, c); err != nil {
		return err
	}

	pending := c.light.Pending()

	c.flagsMu.Lock()
	c.inPass = false
	if c.lifecycle == LifecyclePendingFullUpdate {
		c.lifecycle = LifecycleLive
	}
	rerun := c.queuedForNextUpdate || pending
	c.queuedForNextUpdate = false
	c.flagsMu.Unlock()

	if rerun {
		s.world.QueueFullUpdate(c)
	}
	return nil
}

// pass распространение освещения и построение геометрии по снимку блоков
func (s *Scheduler) pass(ctx context.Context, c *Chunk) error {
	w := s.world
	w.propagateLight(c)

	src := meshing.Source{
		Origin:    c.Offset,
		Size:      c.Size,
		VoxelSize: w.settings.VoxelSize,
		Blocks:    c.Snapshot(),
	}
	mesh, err := w.builder.Build(ctx, src, w)
	if err != nil {
		return fmt.Errorf("построение геометрии чанка %v: %w", c.Offset, err)
	}
	w.pushResult(c, mesh)
	return nil
}
