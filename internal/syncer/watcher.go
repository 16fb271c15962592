package syncer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/walker"
)

// DefaultDebounce is how long the folder must stay quiet before a sync runs.
const DefaultDebounce = 2 * time.Second

// Syncer is the part of Engine the watcher drives.
type Syncer interface {
	Sync(ctx context.Context) (*Report, error)
}

// Watcher triggers a sync whenever the documents folder changes. Bursts of
// events (a copy of many files, an editor's save dance) collapse into one
// sync after the folder has been quiet for the debounce interval.
type Watcher struct {
	syncer    Syncer
	root      string
	recursive bool
	debounce  time.Duration
	logger    *zap.Logger

	// OnSync, if set, receives the outcome of every triggered sync.
	OnSync func(*Report, error)
}

// NewWatcher creates a watcher for e's documents folder.
func NewWatcher(e *Engine, debounce time.Duration, logger *zap.Logger) *Watcher {
	return newWatcher(e, e.Root(), e.scan.Recursive, debounce, logger)
}

func newWatcher(s Syncer, root string, recursive bool, debounce time.Duration, logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		syncer:    s,
		root:      root,
		recursive: recursive,
		debounce:  debounce,
		logger:    logger,
	}
}

// Run watches until ctx is cancelled. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer fw.Close()

	if err := w.add(fw, w.root); err != nil {
		return err
	}
	w.logger.Info("watching documents folder", zap.String("dir", w.root))

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("file watcher stopped")
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 && w.recursive {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !walker.IsExcludedDir(info.Name()) {
					if err := w.add(fw, event.Name); err != nil {
						w.logger.Debug("could not watch new directory", zap.String("path", event.Name), zap.Error(err))
					}
				}
			}
			w.logger.Debug("file system event", zap.String("op", event.Op.String()), zap.String("path", event.Name))
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("file watcher error", zap.Error(err))

		case <-timer.C:
			report, err := w.syncer.Sync(ctx)
			if err != nil {
				w.logger.Error("sync failed", zap.Error(err))
			}
			if w.OnSync != nil {
				w.OnSync(report, err)
			}
		}
	}
}

// add watches dir and, in recursive mode, every directory below it.
func (w *Watcher) add(fw *fsnotify.Watcher, dir string) error {
	if !w.recursive {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		return nil
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && walker.IsExcludedDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}
