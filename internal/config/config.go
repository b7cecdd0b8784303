package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервера мира.
type Config struct {
	World     WorldConfig     `yaml:"world"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// WorldConfig описывает размеры и параметры мира
type WorldConfig struct {
	Seed                   int64   `yaml:"seed"`
	SeaLevel               int     `yaml:"sea_level"`
	MaxSize                [3]int  `yaml:"max_size"`
	ChunkSize              [3]int  `yaml:"chunk_size"`
	VoxelSize              float32 `yaml:"voxel_size"`
	ChunkRenderDistance    int     `yaml:"render_distance"`
	ChunkUnloadDistance    int     `yaml:"unload_distance"`
	MinimumLoadedChunks    int     `yaml:"minimum_loaded_chunks"`
	BuildCollisionInThread bool    `yaml:"build_collision_in_thread"`
	AtlasOpaque            string  `yaml:"atlas_opaque"`
	AtlasTranslucent       string  `yaml:"atlas_translucent"`
	TextureSize            int     `yaml:"texture_size"`
	TickRate               int     `yaml:"tick_rate"`
	// YAML-файлы с дополнительными блоками, регистрируются после стандартных
	BlockResources []string `yaml:"block_resources"`
	// Параметры генератора рельефа
	Amplitude     float64 `yaml:"amplitude"`
	CaveThreshold float64 `yaml:"cave_threshold"`
	TreeScale     float64 `yaml:"tree_scale"`
	// Радиус в чанках вокруг центра мира, генерируемый при старте
	SpawnRadius int `yaml:"spawn_radius"`
}

type SchedulerConfig struct {
	Workers          int `yaml:"workers"`
	TickDelayMillis  int `yaml:"tick_delay_ms"`
	StateBatchSize   int `yaml:"state_batch_size"`
	BlockUpdateBatch int `yaml:"block_update_batch"`
}

type StorageConfig struct {
	Path            string  `yaml:"path"` // Пусто - badger в памяти
	SaveEverySecond int     `yaml:"save_every_seconds"`
	GCDiscardRatio  float64 `yaml:"gc_discard_ratio"`
	ExportPath      string  `yaml:"export_path"` // Файл мира, записываемый при остановке
}

type CacheConfig struct {
	RedisURL   string `yaml:"redis_url"`
	RedisDB    int    `yaml:"redis_db"`
	TTLSeconds int    `yaml:"ttl_seconds"`
	NATSURL    string `yaml:"invalidation_nats_url"`
}

type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Capacity  int    `yaml:"capacity"`
}

type ServerConfig struct {
	NodeID   string `yaml:"node_id"`
	RESTPort int    `yaml:"rest_port"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

type LoggingConfig struct {
	Level      string            `yaml:"level"`
	Dir        string            `yaml:"dir"`
	Components map[string]string `yaml:"components"` // Уровни отдельных подсистем: scheduler: debug
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		World: WorldConfig{
			Seed:                1337,
			SeaLevel:            40,
			MaxSize:             [3]int{256, 256, 128},
			ChunkSize:           [3]int{32, 32, 32},
			VoxelSize:           48,
			ChunkRenderDistance: 4,
			ChunkUnloadDistance: 8,
			MinimumLoadedChunks: 8,
			AtlasOpaque:         "textures/blocks_color.atlas.json",
			AtlasTranslucent:    "textures/blocks_translucent.atlas.json",
			TextureSize:         32,
			TickRate:            20,
			SpawnRadius:         1,
		},
		Scheduler: SchedulerConfig{
			Workers:          2,
			TickDelayMillis:  33,
			StateBatchSize:   4096,
			BlockUpdateBatch: 8192,
		},
		Storage: StorageConfig{
			Path:            "data",
			SaveEverySecond: 300,
			GCDiscardRatio:  0.5,
		},
		Cache: CacheConfig{
			TTLSeconds: 600,
		},
		EventBus: EventBusConfig{
			Stream:    "VOXEL",
			Retention: 24,
			Capacity:  1024,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "voxel-server",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// TickDelay возвращает паузу воркеров планировщика
func (s SchedulerConfig) TickDelay() time.Duration {
	if s.TickDelayMillis <= 0 {
		return 33 * time.Millisecond
	}
	return time.Duration(s.TickDelayMillis) * time.Millisecond
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "VOXEL_REST_PORT", 8088)
}

// GetRedisURL возвращает адрес Redis: config -> env -> пусто (кеш в памяти)
func (c *CacheConfig) GetRedisURL() string {
	return getStringWithEnvFallback(c.RedisURL, "VOXEL_REDIS_URL", "")
}

// GetNATSURL возвращает адрес NATS для инвалидации: config -> env -> пусто (хаб в памяти)
func (c *CacheConfig) GetNATSURL() string {
	return getStringWithEnvFallback(c.NATSURL, "VOXEL_CACHE_NATS_URL", "")
}

// TTL время жизни записей кеша
func (c CacheConfig) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

// TickInterval период тика симуляции
func (w WorldConfig) TickInterval() time.Duration {
	if w.TickRate <= 0 {
		return 50 * time.Millisecond
	}
	return time.Second / time.Duration(w.TickRate)
}

// GetURL возвращает адрес NATS: config -> env -> пусто (шина в памяти)
func (e *EventBusConfig) GetURL() string {
	return getStringWithEnvFallback(e.URL, "VOXEL_NATS_URL", "")
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

func getStringWithEnvFallback(value, envVar, def string) string {
	if value != "" {
		return value
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		return envVal
	}
	return def
}

// Validate проверяет согласованность размеров мира
func (c *Config) Validate() error {
	for i := 0; i < 3; i++ {
		cs := c.World.ChunkSize[i]
		if cs <= 0 || cs > 63 {
			return fmt.Errorf("world.chunk_size[%d]=%d: ожидается 1..63", i, cs)
		}
		if c.World.MaxSize[i] <= 0 || c.World.MaxSize[i]%cs != 0 {
			return fmt.Errorf("world.max_size[%d]=%d должен быть кратен размеру чанка %d", i, c.World.MaxSize[i], cs)
		}
	}
	if c.World.VoxelSize <= 0 {
		return fmt.Errorf("world.voxel_size должен быть положительным")
	}
	if c.Storage.GCDiscardRatio < 0 || c.Storage.GCDiscardRatio >= 1 {
		return fmt.Errorf("storage.gc_discard_ratio должен быть в [0, 1)")
	}
	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("scheduler.workers должен быть положительным")
	}
	return nil
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать из ENV VOXEL_CONFIG или возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("VOXEL_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("разбор конфигурации %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
