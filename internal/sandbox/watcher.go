package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"mindvault/internal/logging"
)

// Watcher re-imports the sync directory when markdown files change in
// it. Events are debounced so a burst of editor writes triggers a
// single import.
type Watcher struct {
	syncer   *Syncer
	events   *logging.EventLogger
	subdir   string
	debounce time.Duration
}

// NewWatcher builds a sync-directory watcher.
func NewWatcher(syncer *Syncer, events *logging.EventLogger, subdir string) *Watcher {
	return &Watcher{
		syncer:   syncer,
		events:   events,
		subdir:   subdir,
		debounce: 2 * time.Second,
	}
}

// Run watches until the context is canceled. The watched directory must
// resolve inside the sandbox; a denial stops the watcher before any
// notification is registered.
func (w *Watcher) Run(ctx context.Context) error {
	abs, err := w.syncer.fs.resolve("fs.watch", w.subdir)
	if err != nil {
		return err
	}
	if err := w.syncer.fs.EnsureDir(w.subdir); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(abs); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.subdir, err)
	}
	w.events.Zap().Info("sync watcher started", zap.String("dir", w.subdir))

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, ".md") {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.events.Zap().Warn("watcher error", zap.Error(err))
		case <-timerC:
			timer = nil
			timerC = nil
			result, err := w.syncer.Import(w.subdir)
			if err != nil {
				w.events.Error(logging.EventSyncImport, "", err, map[string]any{"dir": w.subdir, "auto": true})
				continue
			}
			w.events.Zap().Info("auto-import complete",
				zap.Int("imported", result.Imported), zap.Int("updated", result.Updated))
		}
	}
}
