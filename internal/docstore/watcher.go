package docstore

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/daewon/plantops/internal/parser"
	"github.com/daewon/plantops/internal/storage"
)

const reconcileDelay = 200 * time.Millisecond

// EventCallback is called after a watcher-driven store change.
// kind is one of "imported", "deleted"; key is "collection/id".
type EventCallback func(kind string, key string)

// Watch starts an fsnotify watcher on the seed root and imports seed file
// changes until ctx is cancelled. Collection directories created at runtime
// are added to the watch list. Rename events trigger a debounced Sync.
func Watch(ctx context.Context, s *Store, seeds storage.Provider, seedRoot string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, seedRoot); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", seedRoot))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			if err := Sync(ctx, s, seeds, logger); err != nil {
				logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					// Files may land before the directory watch is in place.
					scheduleReconcile()
					continue
				}
			}

			if !parser.IsSeedFile(ev.Name) {
				continue
			}
			rel, relErr := filepath.Rel(seedRoot, ev.Name)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			coll, id, keyErr := parser.SplitPath(rel)
			if keyErr != nil {
				continue
			}
			key := coll + "/" + id

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				changed, impErr := importFile(ctx, s, seeds, rel)
				if impErr != nil {
					// Editors often write in several steps; keep the last good document.
					logger.Warn("watcher: import failed", slog.String("path", rel), slog.String("error", impErr.Error()))
					continue
				}
				if !changed {
					continue
				}
				logger.Debug("watcher: imported", slog.String("key", key))
				if cb != nil {
					cb("imported", key)
				}

			case ev.Op&fsnotify.Remove != 0:
				if delErr := s.Delete(ctx, coll, id); delErr != nil {
					logger.Debug("watcher: delete skipped", slog.String("key", key), slog.String("error", delErr.Error()))
					continue
				}
				logger.Debug("watcher: deleted", slog.String("key", key))
				if cb != nil {
					cb("deleted", key)
				}

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify reports the old name only; the new name arrives as
				// a Create if it stays inside a watched directory.
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
