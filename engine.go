package satchel

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/satchelkv/satchel/internal/codec"
	"github.com/satchelkv/satchel/internal/coordinator"
	"github.com/satchelkv/satchel/internal/logging"
	"github.com/satchelkv/satchel/internal/store"
)

// dataFileName is the single backing file inside a namespace directory.
const dataFileName = "store.skv"

// Engine is one opened instance of the store, bound to a single backing
// file. All methods are safe for concurrent use from multiple
// goroutines; multiple engines in separate processes may point at the
// same file.
type Engine struct {
	path    string
	origin  string
	logger  logging.Logger
	noWatch bool

	// mu guards cache, gen and closed. Reads take the shared side;
	// every mutation and every watch reconciliation takes the
	// exclusive side.
	mu     sync.RWMutex
	cache  map[string][]byte
	gen    store.Generation
	closed bool

	// writerGID holds the id of the goroutine currently inside the
	// write section, for fail-fast re-entrancy detection.
	writerGID atomic.Int64

	// dispatchGID holds the dispatch goroutine's id, so Close called
	// from inside a subscriber callback does not wait on itself.
	dispatchGID atomic.Int64

	watcher *fsnotify.Watcher

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int

	pendMu  sync.Mutex
	pending []Change
	kick    chan struct{}

	done chan struct{}
	wg   sync.WaitGroup
}

// Option configures an Engine at Open time.
type Option func(*Engine)

// WithOriginTag sets the opaque tag carried by notifications for writes
// committed through this instance.
func WithOriginTag(tag string) Option {
	return func(e *Engine) { e.origin = tag }
}

// WithoutWatcher disables the background file watcher. Foreign writes
// then become visible only through this instance's own merges.
func WithoutWatcher() Option {
	return func(e *Engine) { e.noWatch = true }
}

// Open creates or loads the store for namespace under dir. The
// namespace directory and an empty data file are created if absent. A
// nil logger discards diagnostics.
func Open(dir, namespace string, logger logging.Logger, opts ...Option) (*Engine, error) {
	if namespace == "" || strings.ContainsAny(namespace, `/\`) {
		return nil, fmt.Errorf("satchel: invalid namespace %q", namespace)
	}
	if logger == nil {
		logger = logging.Nop()
	}

	nsDir := filepath.Join(dir, namespace)
	e := &Engine{
		path:   filepath.Join(nsDir, dataFileName),
		logger: logger,
		cache:  map[string][]byte{},
		gen:    store.UnknownGeneration(),
		subs:   map[int]func(Change){},
		kick:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	// The lock file lives next to the data file, so the directory must
	// exist before the first lock acquisition.
	if err := os.MkdirAll(nsDir, 0755); err != nil {
		return nil, fmt.Errorf("satchel: create namespace directory: %w", err)
	}

	err := coordinator.WithWriteLock(e.path, func() error {
		if created, err := store.CreateEmptyIfAbsent(nsDir, e.path); err != nil {
			return err
		} else if created {
			logging.Logf(logger, logging.LevelInfo, "created store file %s", e.path)
		}
		m, err := e.readDisk()
		if err != nil {
			return err
		}
		gen, err := store.CurrentGeneration(e.path)
		if err != nil {
			return err
		}
		e.cache = m
		e.gen = gen
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.wg.Add(1)
	go e.dispatchLoop()

	if !e.noWatch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			e.teardown()
			return nil, fmt.Errorf("satchel: create watcher: %w", err)
		}
		if err := w.Add(nsDir); err != nil {
			_ = w.Close()
			e.teardown()
			return nil, fmt.Errorf("satchel: watch %s: %w", nsDir, err)
		}
		e.watcher = w
		e.wg.Add(1)
		go e.watchLoop()
	}
	return e, nil
}

// Close cancels the file watch, stops notification dispatch after
// delivering already-committed changes, and marks the engine closed.
// No operations are valid afterwards. Close is safe to call from
// inside a subscriber callback; it then returns without waiting for
// the dispatch goroutine to finish.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	var werr error
	if e.watcher != nil {
		werr = e.watcher.Close()
	}
	e.teardown()
	if werr != nil {
		return fmt.Errorf("satchel: close watcher: %w", werr)
	}
	return nil
}

func (e *Engine) teardown() {
	close(e.done)
	if gid() == e.dispatchGID.Load() {
		// Called from a subscriber callback on the dispatch goroutine,
		// which cannot wait for its own exit.
		return
	}
	e.wg.Wait()
}

// Get returns the cached value for key, or nil if absent. It never
// touches the disk or the coordinator.
func (e *Engine) Get(key string) []byte {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil
	}
	v, ok := e.cache[key]
	if !ok {
		return nil
	}
	return append([]byte(nil), v...)
}

// GetInt returns the integer stored at key. It reports false when the
// key is absent or its bytes do not hold an integer variant.
func (e *Engine) GetInt(key string) (int64, bool) {
	raw := e.Get(key)
	if raw == nil {
		return 0, false
	}
	v, err := codec.DecodeValue(raw)
	if err != nil || v.Kind != codec.KindInt {
		logging.Logf(e.logger, logging.LevelDebug, "key %q does not hold an integer", key)
		return 0, false
	}
	return v.Int, true
}

// AllKeys returns the sorted keys currently in the cache.
func (e *Engine) AllKeys() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil
	}
	keys := make([]string, 0, len(e.cache))
	for k := range e.cache {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of cached entries.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return 0
	}
	return len(e.cache)
}

// Put stores value under key. A nil value removes the key. Writing
// bytes identical to what is already on disk is a no-op: no disk write
// and no notification.
func (e *Engine) Put(key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	_, err := e.mutate(func(disk map[string][]byte) (map[string][]byte, error) {
		cur, exists := disk[key]
		if value == nil {
			if !exists {
				return nil, nil
			}
			delete(disk, key)
			return disk, nil
		}
		if exists && bytes.Equal(cur, value) {
			return nil, nil
		}
		disk[key] = append([]byte(nil), value...)
		return disk, nil
	})
	return err
}

// Remove deletes key. Removing an absent key is a no-op.
func (e *Engine) Remove(key string) error {
	return e.Put(key, nil)
}

// BulkPut applies every item in one critical section with at most one
// disk write. A nil item value removes its key. When skipIfPresent is
// true, items whose keys already exist in the freshest on-disk map are
// dropped, removals included: an existing key is never deleted by a
// skipIfPresent batch. It returns the keys whose final bytes differ
// from what existed before the batch.
func (e *Engine) BulkPut(items map[string][]byte, skipIfPresent bool) ([]string, error) {
	for k := range items {
		if k == "" {
			return nil, ErrEmptyKey
		}
	}
	return e.mutate(func(disk map[string][]byte) (map[string][]byte, error) {
		dirty := false
		for k, v := range items {
			cur, exists := disk[k]
			if exists && skipIfPresent {
				continue
			}
			if v == nil {
				if exists {
					delete(disk, k)
					dirty = true
				}
				continue
			}
			if exists && bytes.Equal(cur, v) {
				continue
			}
			disk[k] = append([]byte(nil), v...)
			dirty = true
		}
		if !dirty {
			return nil, nil
		}
		return disk, nil
	})
}

// IncrementInteger atomically adds delta to the integer at key and
// returns the new value. An absent or non-integer value is initialized
// to delta. Concurrent increments from any thread or process never lose
// updates: the read-modify-write runs inside the same merge-against-disk
// critical section as Put.
func (e *Engine) IncrementInteger(key string, delta int64) (int64, error) {
	if key == "" {
		return 0, ErrEmptyKey
	}
	var next int64
	_, err := e.mutate(func(disk map[string][]byte) (map[string][]byte, error) {
		next = delta
		cur, exists := disk[key]
		if exists {
			if v, err := codec.DecodeValue(cur); err == nil && v.Kind == codec.KindInt {
				next = v.Int + delta
			}
		}
		enc, err := codec.EncodeValue(codec.IntValue(next))
		if err != nil {
			return nil, err
		}
		if exists && bytes.Equal(cur, enc) {
			return nil, nil
		}
		disk[key] = enc
		return disk, nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// Reset deletes the backing file, clears the cache, and marks the
// generation deleted. The notification carries every key that existed
// before clearing; an already-empty store notifies nothing.
func (e *Engine) Reset() error {
	g := gid()
	if e.writerGID.Load() == g {
		return ErrReentrant
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.writerGID.Store(g)
	defer e.writerGID.Store(0)

	var changed []string
	err := coordinator.WithWriteLock(e.path, func() error {
		disk, err := e.readDisk()
		if err != nil {
			return err
		}
		if err := store.Remove(e.path); err != nil {
			return err
		}
		// Keys this instance had cached plus any on disk it had not
		// observed yet all disappear with the file.
		merged := make(map[string][]byte, len(disk)+len(e.cache))
		for k, v := range e.cache {
			merged[k] = v
		}
		for k, v := range disk {
			merged[k] = v
		}
		changed = Diff(merged, nil)
		e.cache = map[string][]byte{}
		e.gen = store.DeletedGeneration()
		return nil
	})
	if err != nil {
		return err
	}
	if len(changed) > 0 {
		e.publish(Change{Keys: changed, Origin: e.origin})
	}
	return nil
}

// mutate runs apply against the freshest on-disk map inside the
// cross-process write lock. apply returns the map to persist, or nil to
// abort as a no-op (nothing written, nothing notified). On commit the
// cache and generation marker are updated before the lock is released
// and the changed keys are queued for dispatch.
func (e *Engine) mutate(apply func(disk map[string][]byte) (map[string][]byte, error)) ([]string, error) {
	g := gid()
	if e.writerGID.Load() == g {
		return nil, ErrReentrant
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	e.writerGID.Store(g)
	defer e.writerGID.Store(0)

	var changed []string
	err := coordinator.WithWriteLock(e.path, func() error {
		disk, err := e.readDisk()
		if err != nil {
			return err
		}
		next, err := apply(disk)
		if err != nil {
			return err
		}
		if next == nil {
			// No-op write. Foreign drift observed during the merge is
			// deliberately not folded into the cache here: the
			// generation marker stays put, so the watcher still
			// reconciles and notifies that drift exactly once.
			return nil
		}
		if err := store.WriteMapAtomic(e.path, next); err != nil {
			return err
		}
		gen, err := store.CurrentGeneration(e.path)
		if err != nil {
			return err
		}
		// Diff against the cache rather than the pre-write disk map:
		// keys merged in from other processes ride along in this
		// notification because the new generation marker suppresses
		// their watcher event.
		changed = Diff(e.cache, next)
		e.cache = next
		e.gen = gen
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(changed) > 0 {
		e.publish(Change{Keys: changed, Origin: e.origin})
	}
	return changed, nil
}

// readDisk loads the freshest on-disk map. A missing file reads as
// empty; a corrupt file logs a warning and reads as empty, healing on
// the next successful write.
func (e *Engine) readDisk() (map[string][]byte, error) {
	m, err := store.ReadMap(e.path)
	switch {
	case err == nil:
		return m, nil
	case errors.Is(err, store.ErrNotFound):
		return map[string][]byte{}, nil
	case errors.Is(err, codec.ErrMalformed), errors.Is(err, codec.ErrTypeMismatch):
		logging.Logf(e.logger, logging.LevelWarn, "treating corrupt store file as empty: %v", err)
		return map[string][]byte{}, nil
	default:
		return nil, err
	}
}

// gid returns the current goroutine's id, parsed from the stack header.
// Used only for re-entrancy detection; goroutine ids start at 1, so the
// zero value of writerGID means "not held".
func gid() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := strings.Fields(string(buf[:n]))
	if len(fields) < 2 {
		return -1
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return -1
	}
	return id
}
