package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesRotatingFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "bot.log")
	cfg := DefaultConfig()
	cfg.LogFile = logFile
	cfg.Debug = true

	log, err := New(cfg)
	require.NoError(t, err)

	log.Debug("hello")
	_ = log.Sync()

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "abcd...wxyz", ShortenAddress("abcdefghijklmnopqrstuvwxyz"))
	assert.Equal(t, "short", ShortenAddress("short"))
	assert.Equal(t, "12345678...stuvwxyz", ShortenSignature("12345678abcdefghijklmnopqrstuvwxyz"))
}
