package pmulog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLogger(t *testing.T) {
	dir := t.TempDir()
	opts := NewOptions()
	opts.Level = zap.DebugLevel
	opts.LineNum = true
	opts.NoStdout = true
	opts.TraceOn = true
	opts.LogDir = dir
	Configure(opts)

	Info("this is info")
	Debug("this is debug")
	Error("this is error", zap.String("key", "value"))

	l := NewPmuLog("Reader")
	l.Warn("checksum mismatch", zap.Uint16("idcode", 1000))
	l.Trace("frame complete", "decode", zap.Int("size", 64))
	require.NoError(t, Sync())

	for _, name := range []string{"info.log", "error.log", "warn.log", "trace.log"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.NotEmpty(t, data, name)
	}
	warn, err := os.ReadFile(filepath.Join(dir, "warn.log"))
	require.NoError(t, err)
	assert.Contains(t, string(warn), "[Reader]checksum mismatch")
}

func TestSetLevel(t *testing.T) {
	SetLevel(zap.WarnLevel)
	assert.Equal(t, zap.WarnLevel, Level())
	SetLevel(zap.InfoLevel)
}
