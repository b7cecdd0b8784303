package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, DEBUG, level)

	level, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, INFO, level, "пустая строка означает INFO")

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}

func TestFileLoggerWritesComponentPrefix(t *testing.T) {
	dir := t.TempDir()
	logDir = dir
	defer func() { logDir = "" }()

	l, err := NewLogger("scheduler")
	require.NoError(t, err)
	l.SetLevels(ERROR, DEBUG)

	l.Debug("чанк %d перестроен", 7)
	require.NoError(t, l.Close())

	files, err := filepath.Glob(filepath.Join(dir, "scheduler_*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "[DEBUG] [scheduler] чанк 7 перестроен"))
}

func TestHexDumpLimits(t *testing.T) {
	assert.Equal(t, "No data", HexDump(nil))
	dump := HexDump(make([]byte, 1024))
	assert.Equal(t, 16, strings.Count(dump, "\n"), "дамп ограничен 256 байтами")
}
