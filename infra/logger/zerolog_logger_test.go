package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerMethods(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	l := NewZerologLogger("test")
	if l == nil {
		t.Fatalf("nil logger")
	}
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Warnf("warn")
	l.Errorf("error")
}

func TestComponentField(t *testing.T) {
	t.Setenv("APP_ENV", "")
	var buf bytes.Buffer
	l := newZerolog(&buf, "fleet")
	l.Warnf("robot %d stuck", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "fleet", line["component"])
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "robot 3 stuck", line["message"])
}

func TestConfigure(t *testing.T) {
	t.Cleanup(func() {
		_, _ = Configure(Options{})
	})
	_, err := Configure(Options{Level: "loud"})
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "robofleet.log")
	closeFn, err := Configure(Options{Level: "warn", File: path, MaxSizeMB: 1})
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	l := New("test")
	l.Infof("filtered")
	l.Errorf("kept")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "filtered")
	assert.Contains(t, string(data), "kept")
	assert.Equal(t, zerolog.InfoLevel, func() zerolog.Level {
		_, _ = Configure(Options{})
		return zerolog.GlobalLevel()
	}())
}
