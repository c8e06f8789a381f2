package satchel

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/satchelkv/satchel/internal/coordinator"
	"github.com/satchelkv/satchel/internal/logging"
	"github.com/satchelkv/satchel/internal/store"
)

// watchLoop turns file system events on the data file into
// reconciliations. Temp files and the sidecar lock file are ignored.
func (e *Engine) watchLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.done:
			return

		case ev, ok := <-e.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != dataFileName {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := e.reconcile(); err != nil {
				logging.Logf(e.logger, logging.LevelWarn, "reconcile after %s: %v", ev.Op, err)
			}

		case err, ok := <-e.watcher.Errors:
			if !ok {
				return
			}
			logging.Logf(e.logger, logging.LevelWarn, "watcher error: %v", err)
		}
	}
}

// reconcile folds a foreign on-disk change into the cache and notifies
// the diffed keys. Events whose generation matches the last-known
// marker are this instance's own writes echoing back and are ignored
// without re-reading the file. Reconciliation shares the engine's write
// section with local mutations, so it can never race a merge-and-persist
// step.
func (e *Engine) reconcile() error {
	g := gid()
	if e.writerGID.Load() == g {
		return ErrReentrant
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.writerGID.Store(g)
	defer e.writerGID.Store(0)

	var changed []string
	err := coordinator.WithReadLock(e.path, func() error {
		gen, err := store.CurrentGeneration(e.path)
		if err != nil {
			return err
		}
		if gen.Equal(e.gen) {
			return nil
		}
		fresh, err := e.readDisk()
		if err != nil {
			return err
		}
		changed = Diff(e.cache, fresh)
		e.cache = fresh
		e.gen = gen
		return nil
	})
	if err != nil {
		return err
	}
	if len(changed) > 0 {
		e.publish(Change{Keys: changed})
	}
	return nil
}
