package logging

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Подсистемы сервера, у которых есть собственный логгер
const (
	ComponentWorld       = "world"
	ComponentScheduler   = "scheduler"
	ComponentReplication = "replication"
	ComponentStorage     = "storage"
	ComponentCache       = "cache"
	ComponentEventBus    = "eventbus"
	ComponentHTTP        = "http"
	ComponentAPI         = "api"
)

// LoggerManager выдаёт логгеры подсистем. Консольный уровень логгера
// берётся из переопределения подсистемы, иначе из базового уровня процесса.
type LoggerManager struct {
	mu        sync.RWMutex
	loggers   map[string]*Logger
	base      LogLevel
	overrides map[string]LogLevel
}

var (
	globalManager *LoggerManager
	managerOnce   sync.Once
)

func newLoggerManager() *LoggerManager {
	return &LoggerManager{
		loggers:   make(map[string]*Logger),
		base:      INFO,
		overrides: make(map[string]LogLevel),
	}
}

// GetLoggerManager возвращает менеджер логгеров процесса
func GetLoggerManager() *LoggerManager {
	managerOnce.Do(func() {
		globalManager = newLoggerManager()
	})
	return globalManager
}

// Logger возвращает логгер подсистемы, создавая его при первом обращении.
// Если файл логов открыть не удалось, подсистема пишет только в консоль.
func (lm *LoggerManager) Logger(component string) *Logger {
	lm.mu.RLock()
	l, ok := lm.loggers[component]
	lm.mu.RUnlock()
	if ok {
		return l
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()
	if l, ok := lm.loggers[component]; ok {
		return l
	}

	l, err := NewLogger(component)
	if err != nil {
		Warn("Логгер %s пишет только в консоль: %v", component, err)
		l = newConsoleLogger(component)
	}
	applyLevel(l, lm.levelLocked(component))
	lm.loggers[component] = l
	return l
}

// Level возвращает действующий консольный уровень подсистемы
func (lm *LoggerManager) Level(component string) LogLevel {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return lm.levelLocked(component)
}

func (lm *LoggerManager) levelLocked(component string) LogLevel {
	if level, ok := lm.overrides[component]; ok {
		return level
	}
	return lm.base
}

// SetBaseLevel меняет уровень всех подсистем без переопределения
func (lm *LoggerManager) SetBaseLevel(level LogLevel) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.base = level
	for component, l := range lm.loggers {
		if _, ok := lm.overrides[component]; !ok {
			applyLevel(l, level)
		}
	}
}

// SetComponentLevel переопределяет уровень одной подсистемы
func (lm *LoggerManager) SetComponentLevel(component string, level LogLevel) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.overrides[component] = level
	if l, ok := lm.loggers[component]; ok {
		applyLevel(l, level)
	}
}

// SetComponentLevels разбирает уровни подсистем из конфигурации
// (например {"scheduler": "debug"}). При ошибке ничего не меняется.
func (lm *LoggerManager) SetComponentLevels(levels map[string]string) error {
	parsed := make(map[string]LogLevel, len(levels))
	for component, s := range levels {
		level, err := ParseLevel(s)
		if err != nil {
			return fmt.Errorf("уровень подсистемы %s: %w", component, err)
		}
		parsed[component] = level
	}
	for component, level := range parsed {
		lm.SetComponentLevel(component, level)
	}
	return nil
}

// Components возвращает подсистемы с созданными логгерами
func (lm *LoggerManager) Components() []string {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	out := make([]string, 0, len(lm.loggers))
	for component := range lm.loggers {
		out = append(out, component)
	}
	sort.Strings(out)
	return out
}

// CloseAll закрывает файлы всех подсистем. Переопределения уровней сохраняются.
func (lm *LoggerManager) CloseAll() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	var errs []error
	for component, l := range lm.loggers {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("логгер %s: %w", component, err))
		}
	}
	lm.loggers = make(map[string]*Logger)
	return errors.Join(errs...)
}

// В файл пишется всё от DEBUG, даже если консоль тише
func applyLevel(l *Logger, level LogLevel) {
	l.SetLevels(level, minLevel(level, DEBUG))
}

// GetComponentLogger возвращает логгер подсистемы из менеджера процесса
func GetComponentLogger(component string) *Logger {
	return GetLoggerManager().Logger(component)
}

func GetSchedulerLogger() *Logger {
	return GetComponentLogger(ComponentScheduler)
}

func GetReplicationLogger() *Logger {
	return GetComponentLogger(ComponentReplication)
}

func GetStorageLogger() *Logger {
	return GetComponentLogger(ComponentStorage)
}
