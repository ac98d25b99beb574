package server

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/gridwatch/pmugate/pkg/pmuini"
	"github.com/gridwatch/pmugate/pkg/pmulog"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const deviceFileExt = ".toml"

// IniWatcher imports device files dropped into a directory as configuration frames.
type IniWatcher struct {
	pmulog.Log
	s   *Server
	dir string
}

func NewIniWatcher(s *Server, dir string) *IniWatcher {
	return &IniWatcher{
		Log: pmulog.NewPmuLog("IniWatcher"),
		s:   s,
		dir: dir,
	}
}

// Start imports the files already present and watches for new or rewritten ones until ctx ends.
func (w *IniWatcher) Start(ctx context.Context, g *errgroup.Group) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return errors.Wrap(err, "create ini dir")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		_ = watcher.Close()
		return errors.Wrapf(err, "watch %s", w.dir)
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		_ = watcher.Close()
		return err
	}
	for _, e := range entries {
		if !e.IsDir() && isDeviceFile(e.Name()) {
			_ = w.Import(filepath.Join(w.dir, e.Name()))
		}
	}

	g.Go(func() error {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return nil
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if !isDeviceFile(event.Name) {
					continue
				}
				if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
					_ = w.Import(event.Name)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				w.Warn("watcher error", zap.Error(err))
			}
		}
	})
	return nil
}

// Import loads one device file and stores its configuration frame.
func (w *IniWatcher) Import(path string) error {
	cfg, err := pmuini.Load(path)
	if err != nil {
		w.Warn("device file rejected", zap.String("file", path), zap.Error(err))
		return err
	}
	if err := w.s.store.Save(cfg); err != nil {
		w.Error("store imported configuration failed", zap.String("file", path), zap.Error(err))
		return err
	}
	w.s.refreshConfigurationCount()
	w.Info("device file imported", zap.String("file", path), zap.Uint16("idcode", cfg.IDCode),
		zap.String("protocol", cfg.Protocol.String()), zap.Int("cells", len(cfg.Cells)))
	return nil
}

func isDeviceFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), deviceFileExt)
}
