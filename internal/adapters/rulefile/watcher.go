package rulefile

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/atvirokodosprendimai/precheck/internal/core/usecase"
)

// Syncer receives the full catalog after each load.
type Syncer interface {
	SyncGlobal(ctx context.Context, inputs []usecase.RuleVersionInput) (int, error)
}

// Sync loads path and pushes the catalog to s.
func Sync(ctx context.Context, path string, s Syncer) (loaded, created int, err error) {
	inputs, err := Load(path)
	if err != nil {
		return 0, 0, err
	}
	created, err = s.SyncGlobal(ctx, inputs)
	if err != nil {
		return len(inputs), 0, fmt.Errorf("sync rule catalog: %w", err)
	}
	return len(inputs), created, nil
}

// Watcher reloads the catalog when files under its path change. Bursts of
// events collapse into one reload after the debounce interval.
type Watcher struct {
	path     string
	syncer   Syncer
	debounce time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

func NewWatcher(path string, syncer Syncer, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     path,
		syncer:   syncer,
		debounce: debounce,
		logger:   logger.With("component", "rulefile", "path", path),
	}
}

// Run blocks until ctx is done. Reload failures are logged and the previous
// catalog stays in place.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	// Watch the directory so editors that replace files are still seen.
	dir := w.path
	if hasCatalogExt(w.path) {
		dir = filepath.Dir(w.path)
	}
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.Info("watching rule catalog")

	defer w.stopTimer()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.relevant(ev) {
				continue
			}
			w.schedule(ctx)
		case err, ok := <-fw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("rule catalog watcher", "error", err)
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") || !hasCatalogExt(base) {
		return false
	}
	if hasCatalogExt(w.path) {
		return filepath.Clean(ev.Name) == filepath.Clean(w.path)
	}
	return true
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.reload(ctx) })
}

func (w *Watcher) reload(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	loaded, created, err := Sync(ctx, w.path, w.syncer)
	if err != nil {
		w.logger.Error("rule catalog reload failed", "error", err)
		return
	}
	w.logger.Info("rule catalog reloaded", "rules", loaded, "created", created)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
