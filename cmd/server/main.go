package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/voxel-engine/internal/api"
	"github.com/annel0/voxel-engine/internal/cache"
	"github.com/annel0/voxel-engine/internal/config"
	"github.com/annel0/voxel-engine/internal/eventbus"
	"github.com/annel0/voxel-engine/internal/logging"
	"github.com/annel0/voxel-engine/internal/observability"
	"github.com/annel0/voxel-engine/internal/protocol"
	"github.com/annel0/voxel-engine/internal/replication"
	"github.com/annel0/voxel-engine/internal/storage"
	"github.com/annel0/voxel-engine/internal/vec"
	"github.com/annel0/voxel-engine/internal/world"
	"github.com/annel0/voxel-engine/internal/world/block/implementations"
	"github.com/annel0/voxel-engine/internal/worldgen"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	editsPerTick       = 256
	retransmitInterval = time.Second
	purgeInterval      = time.Minute
	busMetricsInterval = 5 * time.Second
)

func main() {
	var (
		configPath = flag.String("config", "", "Путь к YAML конфигурации (по умолчанию VOXEL_CONFIG)")
		importPath = flag.String("import", "", "Файл мира для загрузки при старте")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("❌ Неверный уровень логирования: %v", err)
	}
	if err := logging.InitDefaultLogger("server", cfg.Logging.Dir, level); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	if err := logging.GetLoggerManager().SetComponentLevels(cfg.Logging.Components); err != nil {
		log.Fatalf("❌ Неверный уровень подсистемы: %v", err)
	}

	if err := run(cfg, *importPath); err != nil {
		logging.Error("❌ Сервер завершился с ошибкой: %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
	logging.Info("👋 Сервер успешно остановлен")
}

// server компоненты процесса, собранные run
type server struct {
	cfg       *config.Config
	world     *world.World
	store     *storage.BadgerStore
	chunks    *storage.ChunkStorage
	cache     cache.CacheRepo
	bus       eventbus.EventBus
	publisher *replication.Publisher
	streamer  *replication.Streamer
	admin     *api.AdminServer
}

func run(cfg *config.Config, importPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Server.NodeID == "" {
		cfg.Server.NodeID = uuid.NewString()
	}
	nodeID := cfg.Server.NodeID
	logging.Info("🧊 Запуск сервера вокселей, узел %s", nodeID)

	shutdownTelemetry, err := observability.InitTelemetry(ctx, cfg.Telemetry, nodeID)
	if err != nil {
		return fmt.Errorf("телеметрия: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logging.Warn("Ошибка остановки телеметрии: %v", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s := &server{cfg: cfg}
	defer s.close()

	if err := s.openStorage(ctx); err != nil {
		return err
	}
	if err := s.openWorld(ctx, registry); err != nil {
		return err
	}
	if importPath != "" {
		n, err := storage.ImportFile(s.world, importPath, protocol.MustZstdCompressor())
		if err != nil {
			return fmt.Errorf("импорт мира: %w", err)
		}
		logging.Info("📦 Импортировано %d чанков из %s", n, importPath)
	}
	if err := s.openReplication(ctx, nodeID, registry); err != nil {
		return err
	}

	s.admin, err = api.NewAdminServer(api.Config{
		Addr:        fmt.Sprintf(":%d", cfg.Server.GetRESTPort()),
		ServiceName: "voxel_admin",
		World:       s.world,
		Cache:       s.cache,
		Viewers:     s.streamer,
		Registry:    registry,
	})
	if err != nil {
		return fmt.Errorf("админский API: %w", err)
	}
	adminErr := make(chan error, 1)
	go func() { adminErr <- s.admin.Start() }()

	s.world.Scheduler().Start(ctx)
	s.spawnArea()

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🌐 Админский API: http://localhost:%d/api/world", cfg.Server.GetRESTPort())
	logging.Info("   📊 Метрики: http://localhost:%d/metrics", cfg.Server.GetRESTPort())

	loopErr := s.loop(ctx, adminErr)

	logging.Info("📡 Завершение работы...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.admin.Stop(shutdownCtx); err != nil {
		logging.Warn("Ошибка остановки API: %v", err)
	}
	stop()
	s.world.Scheduler().Wait()

	if n, err := s.chunks.SaveWorld(shutdownCtx, s.world); err != nil {
		logging.Error("❌ Финальное сохранение: %v", err)
	} else {
		logging.Info("💾 Сохранено %d чанков", n)
	}
	if path := cfg.Storage.ExportPath; path != "" {
		if n, err := storage.ExportFile(s.world, path, protocol.MustZstdCompressor()); err != nil {
			logging.Error("❌ Экспорт мира в %s: %v", path, err)
		} else {
			logging.Info("📦 Экспортировано %d чанков в %s", n, path)
		}
	}
	return loopErr
}

// openStorage открывает badger и кеш перед ним: Redis, если задан адрес,
// иначе кеш в памяти с инвалидацией через NATS или локальный хаб.
func (s *server) openStorage(ctx context.Context) error {
	store, err := storage.OpenBadgerStore(s.cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("хранилище чанков: %w", err)
	}
	s.store = store

	var invalidator cache.CacheInvalidator
	if url := s.cfg.Cache.GetNATSURL(); url != "" {
		inv, err := cache.NewNATSInvalidator(cache.InvalidatorOptions{URL: url, NodeID: s.cfg.Server.NodeID})
		if err != nil {
			return fmt.Errorf("инвалидация кеша: %w", err)
		}
		invalidator = inv
	} else {
		invalidator = cache.NewInvalidationHub().Join(s.cfg.Server.NodeID)
	}

	if url := s.cfg.Cache.GetRedisURL(); url != "" {
		opts, err := cache.RedisOptionsFromURL(url, s.cfg.Cache.RedisDB, s.cfg.Cache.TTL())
		if err != nil {
			return err
		}
		rc, err := cache.NewRedisCache(opts, store, invalidator)
		if err != nil {
			return err
		}
		s.cache = rc
		return nil
	}

	mc := cache.NewMemoryCache(cache.MemoryOptions{TTL: s.cfg.Cache.TTL()}, store, invalidator)
	if err := mc.ListenInvalidations(ctx); err != nil {
		return fmt.Errorf("подписка на инвалидацию: %w", err)
	}
	s.cache = mc
	return nil
}

func (s *server) openWorld(ctx context.Context, registry prometheus.Registerer) error {
	wc := s.cfg.World
	catalog, err := implementations.Standard(wc.BlockResources...)
	if err != nil {
		return fmt.Errorf("каталог блоков: %w", err)
	}
	biomes, err := worldgen.StandardBiomes(catalog)
	if err != nil {
		return err
	}
	generator, err := worldgen.NewPerlinGenerator(worldgen.Options{
		Seed:          wc.Seed,
		SeaLevel:      wc.SeaLevel,
		Amplitude:     wc.Amplitude,
		CaveThreshold: wc.CaveThreshold,
		TreeScale:     wc.TreeScale,
		Biomes:        biomes,
	})
	if err != nil {
		return err
	}

	settings := world.SettingsFromConfig(wc)
	chunks, err := storage.NewChunkStorage(ctx, s.store, s.cache, settings, catalog, storage.ChunkStorageOptions{})
	if err != nil {
		return err
	}
	s.chunks = chunks

	s.world, err = world.New(world.Options{
		Settings:      settings,
		Catalog:       catalog,
		Generator:     generator,
		Source:        chunks,
		Authoritative: true,
		Headless:      true,
		Scheduler: world.SchedulerOptions{
			Workers:   s.cfg.Scheduler.Workers,
			TickDelay: s.cfg.Scheduler.TickDelay(),
		},
	})
	if err != nil {
		return fmt.Errorf("мир: %w", err)
	}
	return s.world.Scheduler().RegisterMetrics(registry)
}

func (s *server) openReplication(ctx context.Context, nodeID string, registry prometheus.Registerer) error {
	bc := s.cfg.EventBus
	if url := bc.GetURL(); url != "" {
		bus, err := eventbus.NewJetStreamBus(url, bc.Stream, time.Duration(bc.Retention)*time.Hour)
		if err != nil {
			return fmt.Errorf("шина событий: %w", err)
		}
		s.bus = bus
	} else {
		s.bus = eventbus.NewMemoryBus(bc.Capacity)
	}

	exporter, err := eventbus.NewMetricsExporter(s.bus, registry)
	if err != nil {
		return err
	}
	exporter.Start(busMetricsInterval)
	go func() {
		<-ctx.Done()
		exporter.Stop()
	}()
	if _, err := eventbus.StartLoggingListener(s.bus); err != nil {
		return err
	}

	metrics := replication.NewMetrics()
	if err := metrics.Register(registry); err != nil {
		return err
	}
	s.publisher, err = replication.NewPublisher(s.bus, s.world, replication.PublisherOptions{
		Source:     nodeID,
		Metrics:    metrics,
		BlockBatch: s.cfg.Scheduler.BlockUpdateBatch,
		StateBatch: s.cfg.Scheduler.StateBatchSize,
	})
	if err != nil {
		return err
	}
	if err := s.publisher.Listen(ctx); err != nil {
		return err
	}
	s.streamer = replication.NewStreamer(s.world, s.publisher, 0)
	return nil
}

// spawnArea ставит в очередь генерацию чанков вокруг центра мира
func (s *server) spawnArea() {
	settings := s.world.Settings()
	center := s.world.ToChunkOffset(vec.New(settings.MaxSize.X/2, settings.MaxSize.Y/2, 0))
	r := s.cfg.World.SpawnRadius
	cs := settings.ChunkSize

	queued := 0
	for dx := -r; dx <= r; dx++ {
		for dy := -r; dy <= r; dy++ {
			for z := 0; z < settings.MaxSize.Z; z += cs.Z {
				origin := vec.New(center.X+dx*cs.X, center.Y+dy*cs.Y, z)
				if !s.world.IsInBounds(origin) {
					continue
				}
				if _, err := s.world.GetOrCreateChunk(origin); err != nil {
					logging.Warn("Чанк %v не создан: %v", origin, err)
					continue
				}
				queued++
			}
		}
	}
	logging.Info("🌍 В очереди генерации %d чанков вокруг %v", queued, center)
}

// loop тик симуляции: правки из API, тики блоков, стриминг и публикация
// изменений, периодические повторы, автосохранение и очистка кеша.
func (s *server) loop(ctx context.Context, adminErr <-chan error) error {
	ticker := time.NewTicker(s.cfg.World.TickInterval())
	defer ticker.Stop()

	saveEvery := time.Duration(s.cfg.Storage.SaveEverySecond) * time.Second
	lastSave, lastRetransmit, lastPurge := time.Now(), time.Now(), time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-adminErr:
			if err != nil {
				return fmt.Errorf("админский API: %w", err)
			}
			return nil
		case now := <-ticker.C:
			s.admin.ApplyPending(ctx, editsPerTick)
			s.world.Tick()

			if err := s.streamer.Tick(ctx); err != nil {
				logging.Warn("Стриминг чанков: %v", err)
			}
			if err := s.publisher.Flush(ctx); err != nil {
				logging.Warn("Публикация изменений: %v", err)
			}

			if now.Sub(lastRetransmit) >= retransmitInterval {
				lastRetransmit = now
				if n, err := s.publisher.Retransmit(ctx); err != nil {
					logging.Warn("Повторная отправка: %v", err)
				} else if n > 0 {
					logging.Debug("Повторно отправлено %d пакетов", n)
				}
			}

			if saveEvery > 0 && now.Sub(lastSave) >= saveEvery {
				lastSave = now
				s.autosave(ctx)
			}

			if mc, ok := s.cache.(*cache.MemoryCache); ok && now.Sub(lastPurge) >= purgeInterval {
				lastPurge = now
				if n := mc.Purge(); n > 0 {
					logging.Debug("Удалено %d просроченных записей кеша", n)
				}
			}
		}
	}
}

func (s *server) autosave(ctx context.Context) {
	start := time.Now()
	n, err := s.chunks.SaveWorld(ctx, s.world)
	if err != nil {
		logging.Error("❌ Автосохранение: %v", err)
		return
	}
	if err := s.store.CollectGarbage(s.cfg.Storage.GCDiscardRatio); err != nil {
		logging.Warn("Сборка мусора badger: %v", err)
	}
	logging.Info("💾 Автосохранение: %d чанков за %v", n, time.Since(start))
}

// close освобождает ресурсы в обратном порядке
func (s *server) close() {
	if s.publisher != nil {
		s.publisher.Close()
	}
	if s.world != nil {
		s.world.Destroy()
	}
	var errs []error
	if s.bus != nil {
		errs = append(errs, s.bus.Close())
	}
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		logging.Warn("Ошибки при закрытии: %v", err)
	}
}
