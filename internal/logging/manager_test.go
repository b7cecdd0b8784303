package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerReusesComponentLogger(t *testing.T) {
	lm := newLoggerManager()

	a := lm.Logger(ComponentScheduler)
	b := lm.Logger(ComponentScheduler)
	assert.Same(t, a, b, "логгер подсистемы создаётся один раз")

	lm.Logger(ComponentCache)
	assert.Equal(t, []string{ComponentCache, ComponentScheduler}, lm.Components())

	require.NoError(t, lm.CloseAll())
	assert.Empty(t, lm.Components())
}

func TestManagerBaseLevelReachesComponents(t *testing.T) {
	lm := newLoggerManager()
	storage := lm.Logger(ComponentStorage)

	lm.SetBaseLevel(WARN)
	assert.Equal(t, WARN, lm.Level(ComponentStorage))
	assert.Equal(t, WARN, storage.minConsoleLevel, "уже созданный логгер получает новый уровень")
	assert.Equal(t, DEBUG, storage.minFileLevel, "в файл пишется всё от DEBUG")

	fresh := lm.Logger(ComponentWorld)
	assert.Equal(t, WARN, fresh.minConsoleLevel, "новый логгер наследует базовый уровень")
}

func TestManagerComponentOverrides(t *testing.T) {
	lm := newLoggerManager()
	scheduler := lm.Logger(ComponentScheduler)

	require.NoError(t, lm.SetComponentLevels(map[string]string{
		ComponentScheduler: "trace",
		ComponentHTTP:      "error",
	}))
	assert.Equal(t, TRACE, scheduler.minConsoleLevel)
	assert.Equal(t, TRACE, scheduler.minFileLevel)
	assert.Equal(t, ERROR, lm.Logger(ComponentHTTP).minConsoleLevel)

	lm.SetBaseLevel(WARN)
	assert.Equal(t, TRACE, lm.Level(ComponentScheduler), "переопределение важнее базового уровня")
	assert.Equal(t, WARN, lm.Level(ComponentAPI))
}

func TestManagerRejectsBadComponentLevel(t *testing.T) {
	lm := newLoggerManager()

	err := lm.SetComponentLevels(map[string]string{
		ComponentScheduler: "debug",
		ComponentCache:     "громко",
	})
	assert.Error(t, err)
	assert.Equal(t, INFO, lm.Level(ComponentScheduler), "при ошибке уровни не меняются")
}
