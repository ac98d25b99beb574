package options

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gridwatch/pmugate/pkg/pmuproto"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

const sampleConfig = `
mode: release
addr: tcp://127.0.0.1:9000
protocol: sel
rootDir: /var/lib/pmugate
reader:
  maxBuffer: 262140
  stallTimeout: 2s
configCache:
  size: 16
iniDir: devices
monitor:
  on: false
logger:
  level: 3
  traceOn: true
`

func TestConfigureWithViper(t *testing.T) {
	vp := viper.New()
	vp.SetConfigType("yaml")
	require.NoError(t, vp.ReadConfig(strings.NewReader(sampleConfig)))

	opts := New()
	opts.ConfigureWithViper(vp)

	assert.Equal(t, ReleaseMode, opts.Mode)
	assert.Equal(t, "release", opts.GinMode)
	assert.Equal(t, "tcp://127.0.0.1:9000", opts.Addr)
	assert.Equal(t, "0.0.0.0:4713", opts.HTTPAddr)
	assert.Equal(t, pmuproto.ProtocolSELFastMessage, opts.Protocol)
	assert.Equal(t, 262140, opts.Reader.MaxBuffer)
	assert.Equal(t, 2*time.Second, opts.Reader.StallTimeout)
	assert.Equal(t, 16, opts.ConfigCache.Size)
	assert.Equal(t, 1024, opts.HandlePoolSize)
	assert.Equal(t, filepath.Join("/var/lib/pmugate", "devices"), opts.IniDir)
	assert.False(t, opts.Monitor.On)
	assert.Equal(t, zapcore.WarnLevel, opts.Logger.Level)
	assert.True(t, opts.Logger.TraceOn)
	assert.Equal(t, filepath.Join("/var/lib/pmugate", "logs"), opts.Logger.Dir)
	assert.NoError(t, opts.Check())
}

func TestDefaults(t *testing.T) {
	opts := New(WithAddr("tcp://127.0.0.1:0"), WithStallTimeout(time.Second))
	opts.ConfigureWithViper(viper.New())

	assert.Equal(t, DebugMode, opts.Mode)
	assert.Equal(t, zapcore.DebugLevel, opts.Logger.Level)
	assert.Equal(t, pmuproto.ProtocolUnknown, opts.Protocol)
	assert.Equal(t, time.Second, opts.Reader.StallTimeout)
	assert.True(t, opts.Monitor.On)
	assert.Empty(t, opts.IniDir)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("PMU_HTTPADDR", "127.0.0.1:8080")
	t.Setenv("PMU_READER_STALLTIMEOUT", "750ms")

	vp := viper.New()
	vp.SetEnvPrefix("pmu")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	opts := New()
	opts.ConfigureWithViper(vp)
	assert.Equal(t, "127.0.0.1:8080", opts.HTTPAddr)
	assert.Equal(t, 750*time.Millisecond, opts.Reader.StallTimeout)
}

func TestCheck(t *testing.T) {
	opts := New()
	opts.Reader.MaxBuffer = 10
	assert.Error(t, opts.Check())

	opts = New()
	opts.HandlePoolSize = 0
	assert.Error(t, opts.Check())
}
