package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.yaml")
	yml := `
world:
  seed: 42
  chunk_size: [16, 16, 16]
  max_size: [64, 64, 32]
scheduler:
  workers: 4
logging:
  components:
    scheduler: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(42), cfg.World.Seed)
	assert.Equal(t, [3]int{16, 16, 16}, cfg.World.ChunkSize)
	assert.Equal(t, 4, cfg.Scheduler.Workers)
	assert.Equal(t, "debug", cfg.Logging.Components["scheduler"])
	// Не заданные поля остаются по умолчанию
	assert.Equal(t, 4096, cfg.Scheduler.StateBatchSize)
	assert.Equal(t, 33*time.Millisecond, cfg.Scheduler.TickDelay())
}

func TestLoadRejectsMisalignedWorld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("world:\n  max_size: [100, 64, 64]\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err, "размер мира не кратен размеру чанка")
}

func TestPortEnvFallback(t *testing.T) {
	t.Setenv("VOXEL_REST_PORT", "9090")

	s := ServerConfig{}
	assert.Equal(t, 9090, s.GetRESTPort())

	s.RESTPort = 7000
	assert.Equal(t, 7000, s.GetRESTPort(), "значение из конфига приоритетнее env")
}

func TestDerivedDurations(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 50*time.Millisecond, cfg.World.TickInterval())
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL())

	cfg.World.TickRate = 0
	cfg.Cache.TTLSeconds = 30
	assert.Equal(t, 50*time.Millisecond, cfg.World.TickInterval())
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL())
}

func TestCacheNATSURLEnvFallback(t *testing.T) {
	t.Setenv("VOXEL_CACHE_NATS_URL", "nats://bus:4222")
	c := CacheConfig{}
	assert.Equal(t, "nats://bus:4222", c.GetNATSURL())
	c.NATSURL = "nats://local:4222"
	assert.Equal(t, "nats://local:4222", c.GetNATSURL())
}

func TestValidateDiscardRatio(t *testing.T) {
	cfg := Default()
	cfg.Storage.GCDiscardRatio = 1.5
	assert.Error(t, cfg.Validate())
}
