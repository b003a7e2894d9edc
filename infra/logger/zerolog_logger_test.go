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
	require.NotNil(t, l)
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Warnf("warn")
	l.Errorf("error")
}

func TestZerologLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologLoggerTo(&buf, "supervisor").With("charger_id", 4)
	l.Infof("started %s", "ok")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "supervisor", line["component"])
	assert.Equal(t, "started ok", line["message"])
	assert.Equal(t, float64(4), line["charger_id"])
	assert.Equal(t, "info", line["level"])
}

func TestSetupWritesRotatingFile(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)
	path := filepath.Join(t.TempDir(), "logs", "chargewatch.log")
	closer, err := Setup(Options{Level: "warn", Path: path, MaxSizeMB: 5, MaxBackups: 3})
	require.NoError(t, err)

	l := New("reconciler")
	l.Infof("filtered")
	l.Warnf("kept")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "kept")
	assert.NotContains(t, string(data), "filtered")
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	_, err := Setup(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestNopLoggerWith(t *testing.T) {
	var l Logger = NopLogger{}
	assert.Equal(t, NopLogger{}, l.With("charger_id", 1))
}
