package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gridwatch/pmugate/internal/options"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const feederDevice = `
protocol = "macrodyne"
idcode = 0
frame_rate = 60

[[device]]
idcode = 0
station = "FEEDER 7"

  [[device.phasor]]
  label = "VA"

  [device.frequency]
  label = "FREQ"
`

func TestIniWatcherImport(t *testing.T) {
	dir := t.TempDir()
	s := newTestServer(t, options.WithIniDir(dir))
	require.NotNil(t, s.iniWatcher)

	path := filepath.Join(dir, "feeder.toml")
	require.NoError(t, os.WriteFile(path, []byte(feederDevice), 0644))
	require.NoError(t, s.iniWatcher.Import(path))

	cfg, ok := s.store.Configuration(0)
	require.True(t, ok)
	assert.Equal(t, "FEEDER 7", cfg.Cells[0].StationLabel)

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("idcode = 3\n"), 0644))
	assert.Error(t, s.iniWatcher.Import(bad))
}

func TestIniWatcherPicksUpFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "devices")
	s := newTestServer(t, options.WithIniDir(dir))

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	require.NoError(t, s.iniWatcher.Start(ctx, g))
	defer func() {
		cancel()
		assert.NoError(t, g.Wait())
	}()

	// ignored extension
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "feeder.toml"), []byte(feederDevice), 0644))

	require.Eventually(t, func() bool {
		n, err := s.store.Count()
		return err == nil && n == 1
	}, time.Second*3, time.Millisecond*20)
}

func TestIsDeviceFile(t *testing.T) {
	assert.True(t, isDeviceFile("/etc/pmugate/a.toml"))
	assert.True(t, isDeviceFile("B.TOML"))
	assert.False(t, isDeviceFile("a.ini"))
	assert.False(t, isDeviceFile("toml"))
}
