package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/ranking-engine/internal/config"
)

func TestNew_JSONConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := NewWithConsole("ranking-engine", config.LogConfig{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)
	defer closeFn()

	logger.Debug("hidden")
	logger.Info("wallet evaluated", "wallet", "0x5668...5839")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec), "exactly one JSON line: %s", buf.String())
	assert.Equal(t, "wallet evaluated", rec["msg"])
	assert.Equal(t, "ranking-engine", rec["service"])
	assert.Equal(t, "0x5668...5839", rec["wallet"])
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "svc.log")
	logger, closeFn, err := New("svc", config.LogConfig{Level: "debug", Format: "text", Output: "file", FilePath: path})
	require.NoError(t, err)

	logger.Debug("written")
	require.NoError(t, closeFn())

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "msg=written")
	assert.Contains(t, string(body), "service=svc")
}

func TestNew_InvalidConfig(t *testing.T) {
	_, _, err := New("svc", config.LogConfig{Level: "loud"})
	assert.Error(t, err)

	_, _, err = New("svc", config.LogConfig{Format: "xml"})
	assert.Error(t, err)

	_, _, err = New("svc", config.LogConfig{Output: "syslog"})
	assert.Error(t, err)
}
