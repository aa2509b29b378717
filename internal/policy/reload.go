package policy

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultReloadDebounce is how long a file must be quiet before it is re-read.
const DefaultReloadDebounce = 500 * time.Millisecond

// Reloader re-reads a policy file when it changes and hands every valid
// version to apply. An invalid file is logged and the current policy stays.
type Reloader struct {
	path     string
	debounce time.Duration
	apply    func(*Config)
	watcher  *fsnotify.Watcher
}

// NewReloader watches the directory holding path, so editors that replace the
// file instead of writing it in place are still seen.
func NewReloader(path string, debounce time.Duration, apply func(*Config)) (*Reloader, error) {
	if debounce <= 0 {
		debounce = DefaultReloadDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, eris.Wrapf(err, "policy: resolve %s", path)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, eris.Wrap(err, "policy: create file watcher")
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "policy: watch %s", filepath.Dir(abs))
	}

	return &Reloader{path: abs, debounce: debounce, apply: apply, watcher: w}, nil
}

// Run blocks until ctx is done. apply is never called after Run returns.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close() //nolint:errcheck

	var (
		mu       sync.Mutex
		stopped  bool
		debounce *time.Timer
	)
	reload := func() {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		cfg, err := LoadConfig(r.path)
		if err != nil {
			zap.L().Warn("policy: reload failed, keeping current policy", zap.String("path", r.path), zap.Error(err))
			return
		}
		r.apply(cfg)
		zap.L().Info("policy: reloaded", zap.String("path", r.path))
	}

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			stopped = true
			if debounce != nil {
				debounce.Stop()
			}
			mu.Unlock()
			return nil

		case ev, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != r.path || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			mu.Lock()
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(r.debounce, reload)
			mu.Unlock()

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			zap.L().Warn("policy: file watcher error", zap.Error(err))
		}
	}
}
