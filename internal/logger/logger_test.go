package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "equibasket.log")
	l, err := New("info", path)
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("Build started")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "Build started", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Contains(t, entry, "time")
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New("loud", "")
	assert.ErrorContains(t, err, `invalid log level "loud"`)
}

func TestNewConsole(t *testing.T) {
	l, err := New("debug", "")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(-1))
}
