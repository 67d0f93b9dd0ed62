package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougsko/pagerd/pkg/config"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLogLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, LevelError, ParseLogLevel("error"))
	assert.Equal(t, LevelInfo, ParseLogLevel("chatty"))
	assert.Equal(t, "WARN", LevelWarn.String())
}

func TestWriterLogger(t *testing.T) {
	t.Run("Structured Records", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewWriterLogger(&buf, LevelInfo, true)

		l.Info("session", "Sending...", map[string]interface{}{"capcode": 1234})

		var rec map[string]interface{}
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
		assert.Equal(t, "Sending...", rec["msg"])
		assert.Equal(t, "session", rec["component"])
		assert.EqualValues(t, 1234, rec["capcode"])
	})

	t.Run("Level Filter", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewWriterLogger(&buf, LevelWarn, false)

		l.Debug("engine", "hidden")
		l.Infof("engine", "hidden %d", 1)
		assert.Empty(t, buf.String())

		l.Warnf("engine", "shown %d", 2)
		assert.Contains(t, buf.String(), "shown 2")

		l.SetLevel(LevelDebug)
		l.Debug("engine", "now visible")
		assert.Contains(t, buf.String(), "now visible")
	})

	t.Run("Field Logger", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewWriterLogger(&buf, LevelDebug, false)

		l.WithFields(map[string]interface{}{"driver": "hackrf"}).Error("hardware", "open failed")
		out := buf.String()
		assert.Contains(t, out, "open failed")
		assert.Contains(t, out, "driver=hackrf")
		assert.Contains(t, out, "component=hardware")
	})
}

func TestFileLogger(t *testing.T) {
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Logging.File = filepath.Join(dir, "logs", "pagerd.log")
	cfg.Logging.Console = false
	cfg.Logging.Level = "debug"

	l, err := NewLogger(cfg)
	require.NoError(t, err)

	l.Debug("storage", "recorded transmission")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(cfg.Logging.File)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "recorded transmission"))
}
