package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/annel0/voxel-engine/internal/cache"
	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/middleware"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world"
	"github.com/annel0/voxel-engine/internal/world/block"
	"github.com/gin-gonic/gin"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// DefaultEditQueue ёмкость очереди правок блоков
const DefaultEditQueue = 1024

// BlockEdit правка блока, ожидающая применения в потоке симуляции
type BlockEdit struct {
	Position  vec.Vec3
	ID        block.BlockID
	Direction int
}

// ViewerControl подключает и отключает наблюдателей (replication.Streamer)
type ViewerControl interface {
	Join(ctx context.Context, v *world.Viewer) error
	Leave(id uuid.UUID) bool
}

// viewerOp подключение (viewer != nil) или отключение наблюдателя
type viewerOp struct {
	viewer *world.Viewer
	leave  uuid.UUID
}

// Config содержит конфигурацию админского сервера
type Config struct {
	Addr        string // ":8088" по умолчанию
	ServiceName string
	World       *world.World
	Viewers     ViewerControl        // nil - маршруты наблюдателей только на чтение
	Cache       cache.CacheRepo      // nil - без статистики кеша
	Registry    *prometheus.Registry // nil - собственный реестр
	EditQueue   int
}

// AdminServer HTTP API для наблюдения за миром и точечных правок.
// Читающие обработчики обращаются к чанкам под их блокировками, а правки
// складываются в очередь и применяются ApplyEdits из потока симуляции.
type AdminServer struct {
	router  *gin.Engine
	server  *http.Server
	world   *world.World
	cache   cache.CacheRepo
	viewers ViewerControl
	metrics *ServerMetrics
	edits   chan BlockEdit
	ops     chan viewerOp
	logger  *logging.Logger
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewAdminServer создаёт сервер и настраивает маршруты
func NewAdminServer(config Config) (*AdminServer, error) {
	if config.World == nil {
		return nil, errors.New("админскому серверу нужен мир")
	}
	if config.Addr == "" {
		config.Addr = ":8088"
	}
	if config.ServiceName == "" {
		config.ServiceName = "voxel_admin"
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}
	if config.EditQueue <= 0 {
		config.EditQueue = DefaultEditQueue
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(middleware.NewRequestLogger().Handler())
	router.Use(otelgin.Middleware(config.ServiceName))

	promMw, err := middleware.NewPrometheusMiddleware(config.ServiceName, config.Registry)
	if err != nil {
		return nil, err
	}
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	s := &AdminServer{
		router:  router,
		world:   config.World,
		cache:   config.Cache,
		viewers: config.Viewers,
		metrics: NewServerMetrics(),
		edits:   make(chan BlockEdit, config.EditQueue),
		ops:     make(chan viewerOp, config.EditQueue),
		logger:  logging.GetComponentLogger(logging.ComponentAPI),
	}
	s.server = &http.Server{
		Addr:              config.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.setupRoutes()
	return s, nil
}

func (s *AdminServer) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/world", s.handleWorld)
		api.GET("/chunks/:x/:y/:z", s.handleChunk)
		api.PUT("/blocks", s.handlePutBlock)
		api.GET("/stats", s.handleStats)
		api.GET("/viewers", s.handleListViewers)
		api.POST("/viewers", s.handleJoinViewer)
		api.PUT("/viewers/:id/position", s.handleMoveViewer)
		api.DELETE("/viewers/:id", s.handleLeaveViewer)
	}
	s.router.GET("/health", s.handleHealth)
}

// Handler возвращает http.Handler сервера
func (s *AdminServer) Handler() http.Handler {
	return s.router
}

// Start запускает HTTP сервер и блокируется до Stop
func (s *AdminServer) Start() error {
	s.logger.Info("Админский API слушает %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop завершает сервер, дожидаясь текущих запросов
func (s *AdminServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// PendingEdits число правок и операций с наблюдателями в очереди
func (s *AdminServer) PendingEdits() int {
	return len(s.edits) + len(s.ops)
}

// ApplyPending выполняет подключения и отключения наблюдателей, затем
// применяет до max правок блоков. Вызывается из потока симуляции.
func (s *AdminServer) ApplyPending(ctx context.Context, max int) int {
	s.applyViewerOps(ctx)
	return s.ApplyEdits(max)
}

func (s *AdminServer) applyViewerOps(ctx context.Context) {
	for {
		select {
		case op := <-s.ops:
			if op.viewer == nil {
				s.viewers.Leave(op.leave)
				continue
			}
			if err := s.viewers.Join(ctx, op.viewer); err != nil {
				s.logger.Warn("Наблюдатель %s не подключён: %v", op.viewer.ID, err)
			}
		default:
			return
		}
	}
}

// ApplyEdits применяет до max правок блоков из очереди
func (s *AdminServer) ApplyEdits(max int) int {
	applied := 0
	for i := 0; i < max; i++ {
		select {
		case e := <-s.edits:
			if s.world.SetBlockAndUpdate(e.Position, e.ID, e.Direction, false) {
				applied++
			} else {
				s.logger.Debug("Правка %v не применена: чанк не загружен или блок не изменился", e.Position)
			}
		default:
			return applied
		}
	}
	return applied
}

// handleWorld возвращает параметры и счётчики мира
func (s *AdminServer) handleWorld(c *gin.Context) {
	w := s.world
	settings := w.Settings()
	initial, full := w.Scheduler().QueueLengths()

	types := w.Catalog().Types()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.Name
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Параметры мира",
		Data: gin.H{
			"seed":            settings.Seed,
			"sea_level":       settings.SeaLevel,
			"max_size":        settings.MaxSize,
			"chunk_size":      settings.ChunkSize,
			"voxel_size":      settings.VoxelSize,
			"render_distance": settings.ChunkRenderDistance,
			"unload_distance": settings.ChunkUnloadDistance,
			"atlas":           settings.Atlas,
			"blocks":          names,
			"biomes":          w.Biomes(),
			"chunks":          w.Chunks().Len(),
			"viewers":         len(w.Viewers()),
			"tick":            w.TickCount(),
			"pending_ticks":   w.PendingTicks(),
			"queue_initial":   initial,
			"queue_full":      full,
		},
	})
}

// chunkView описание загруженного чанка
type chunkView struct {
	Origin          vec.Vec3       `json:"origin"`
	Size            vec.Vec3       `json:"size"`
	Lifecycle       string         `json:"lifecycle"`
	Generated       bool           `json:"generated"`
	FirstUpdateDone bool           `json:"first_update_done"`
	OnlyAir         bool           `json:"only_air"`
	Blocks          map[string]int `json:"blocks"`
	States          int            `json:"states"`
	Entities        int            `json:"entities"`
}

// handleChunk описывает чанк, содержащий мировую позицию :x/:y/:z
func (s *AdminServer) handleChunk(c *gin.Context) {
	pos, err := parsePosition(c.Param("x"), c.Param("y"), c.Param("z"))
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: err.Error()})
		return
	}
	if !s.world.IsInBounds(pos) {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "позиция вне мира"})
		return
	}

	ch := s.world.GetChunk(pos)
	if ch == nil {
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: "чанк не загружен"})
		return
	}

	catalog := s.world.Catalog()
	histogram := make(map[string]int)
	for _, id := range ch.Snapshot() {
		histogram[catalog.Get(id).Name]++
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Чанк найден",
		Data: chunkView{
			Origin:          ch.Offset,
			Size:            ch.Size,
			Lifecycle:       ch.Lifecycle().String(),
			Generated:       ch.Generated(),
			FirstUpdateDone: ch.FirstUpdateDone(),
			OnlyAir:         ch.HasOnlyAir(),
			Blocks:          histogram,
			States:          len(ch.StateEntries()),
			Entities:        len(ch.Entities()),
		},
	})
}

// PutBlockRequest запрос на установку блока. Block - имя или алиас из каталога.
type PutBlockRequest struct {
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Z         int    `json:"z"`
	Block     string `json:"block" binding:"required"`
	Direction int    `json:"direction"`
}

// handlePutBlock ставит правку блока в очередь симуляции
func (s *AdminServer) handlePutBlock(c *gin.Context) {
	var req PutBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неверный формат запроса"})
		return
	}

	pos := vec.New(req.X, req.Y, req.Z)
	if !s.world.IsInBounds(pos) {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "позиция вне мира"})
		return
	}
	id, ok := s.world.Catalog().Lookup(req.Block)
	if !ok {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "неизвестный блок " + req.Block})
		return
	}
	if req.Direction < 0 || req.Direction >= int(block.FaceCount) {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "недопустимое направление"})
		return
	}

	edit := BlockEdit{Position: pos, ID: id, Direction: req.Direction}
	select {
	case s.edits <- edit:
	default:
		c.JSON(http.StatusServiceUnavailable, GenericResponse{Success: false, Message: "очередь правок переполнена"})
		return
	}

	c.JSON(http.StatusAccepted, GenericResponse{
		Success: true,
		Message: "Правка поставлена в очередь",
		Data:    gin.H{"position": pos, "id": id},
	})
}

// handleStats возвращает метрики процесса, кеша и мира
func (s *AdminServer) handleStats(c *gin.Context) {
	stats := make(map[string]interface{})

	memoryMB, _ := s.metrics.GetMemoryUsage()
	cpuPercent, _ := s.metrics.GetCPUUsage()

	stats["server"] = map[string]interface{}{
		"uptime":      s.metrics.GetUptime(),
		"memory_mb":   memoryMB,
		"cpu_percent": cpuPercent,
		"server_time": time.Now().Unix(),
	}
	stats["memory_details"] = s.metrics.GetDetailedMemoryStats()

	if s.cache != nil {
		stats["cache"] = s.cache.GetMetrics()
	}

	stats["world"] = map[string]interface{}{
		"chunks":        s.world.Chunks().Len(),
		"tick":          s.world.TickCount(),
		"pending_edits": s.PendingEdits(),
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data:    stats,
	})
}

func (s *AdminServer) handleHealth(c *gin.Context) {
	status := http.StatusOK
	state := "ok"
	if s.world.Destroyed() {
		status, state = http.StatusServiceUnavailable, "destroyed"
	}
	c.JSON(status, gin.H{
		"status": state,
		"time":   time.Now().Unix(),
	})
}

// ViewerRequest позиция наблюдателя в единицах бэкенда; ID пуст - новый UUID
type ViewerRequest struct {
	ID string  `json:"id"`
	X  float32 `json:"x"`
	Y  float32 `json:"y"`
	Z  float32 `json:"z"`
}

type viewerView struct {
	ID       string     `json:"id"`
	Position mgl32.Vec3 `json:"position"`
	Loaded   int        `json:"loaded_chunks"`
	Ready    bool       `json:"ready"`
}

func (s *AdminServer) handleListViewers(c *gin.Context) {
	settings := s.world.Settings()
	viewers := s.world.Viewers()
	out := make([]viewerView, len(viewers))
	for i, v := range viewers {
		out[i] = viewerView{
			ID:       v.ID.String(),
			Position: v.Position(),
			Loaded:   v.LoadedCount(),
			Ready:    v.HasLoadedMinimumChunks(settings),
		}
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Наблюдатели", Data: out})
}

func (s *AdminServer) handleJoinViewer(c *gin.Context) {
	if s.viewers == nil {
		c.JSON(http.StatusNotImplemented, GenericResponse{Success: false, Message: "стриминг чанков выключен"})
		return
	}
	var req ViewerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неверный формат запроса"})
		return
	}
	id := uuid.New()
	if req.ID != "" {
		parsed, err := uuid.Parse(req.ID)
		if err != nil {
			c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "неверный ID наблюдателя"})
			return
		}
		id = parsed
	}
	if s.world.GetViewer(id) != nil {
		c.JSON(http.StatusConflict, GenericResponse{Success: false, Message: "наблюдатель уже подключён"})
		return
	}

	v := world.NewViewer(id, mgl32.Vec3{req.X, req.Y, req.Z})
	if !s.enqueueOp(c, viewerOp{viewer: v}) {
		return
	}
	c.JSON(http.StatusAccepted, GenericResponse{
		Success: true,
		Message: "Подключение поставлено в очередь",
		Data:    gin.H{"id": id.String()},
	})
}

func (s *AdminServer) handleMoveViewer(c *gin.Context) {
	v := s.viewerFromParam(c)
	if v == nil {
		return
	}
	var req ViewerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неверный формат запроса"})
		return
	}
	v.SetPosition(mgl32.Vec3{req.X, req.Y, req.Z})
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Позиция обновлена"})
}

func (s *AdminServer) handleLeaveViewer(c *gin.Context) {
	if s.viewers == nil {
		c.JSON(http.StatusNotImplemented, GenericResponse{Success: false, Message: "стриминг чанков выключен"})
		return
	}
	v := s.viewerFromParam(c)
	if v == nil {
		return
	}
	if !s.enqueueOp(c, viewerOp{leave: v.ID}) {
		return
	}
	c.JSON(http.StatusAccepted, GenericResponse{Success: true, Message: "Отключение поставлено в очередь"})
}

// viewerFromParam находит наблюдателя по :id или пишет ответ с ошибкой
func (s *AdminServer) viewerFromParam(c *gin.Context) *world.Viewer {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "неверный ID наблюдателя"})
		return nil
	}
	v := s.world.GetViewer(id)
	if v == nil {
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: "наблюдатель не найден"})
	}
	return v
}

func (s *AdminServer) enqueueOp(c *gin.Context, op viewerOp) bool {
	select {
	case s.ops <- op:
		return true
	default:
		c.JSON(http.StatusServiceUnavailable, GenericResponse{Success: false, Message: "очередь операций переполнена"})
		return false
	}
}

func parsePosition(xs, ys, zs string) (vec.Vec3, error) {
	var out [3]int
	for i, s := range [...]string{xs, ys, zs} {
		v, err := strconv.Atoi(s)
		if err != nil {
			return vec.Vec3{}, errors.New("координаты должны быть целыми")
		}
		out[i] = v
	}
	return vec.New(out[0], out[1], out[2]), nil
}
