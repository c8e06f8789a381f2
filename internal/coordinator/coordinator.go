// Package coordinator provides scoped cross-process mutual exclusion
// over a named file path. Locks are advisory OS file locks taken on a
// sidecar lock file next to the data file, so atomic renames and
// deletions of the data file itself never disturb lock state.
package coordinator

import "fmt"

// Error reports a failure acquiring or releasing a cross-process lock.
// An operation that returns an Error must not be considered applied.
type Error struct {
	Op   string // "acquire" or "release"
	Path string // the coordinated data file path
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("coordinator: %s lock on %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// WithReadLock runs body while holding a shared lock on path. Readers
// may overlap with each other but are excluded by any writer.
func WithReadLock(path string, body func() error) error {
	return withLock(path, false, body)
}

// WithWriteLock runs body while holding an exclusive lock on path,
// excluding all other readers and writers across processes.
func WithWriteLock(path string, body func() error) error {
	return withLock(path, true, body)
}

// withLock acquires the lock, runs body, and releases on every exit
// path including panics. A body error takes precedence over a release
// error.
func withLock(path string, exclusive bool, body func() error) (err error) {
	h, aerr := acquire(lockPath(path), exclusive)
	if aerr != nil {
		return &Error{Op: "acquire", Path: path, Err: aerr}
	}
	defer func() {
		if rerr := release(h); rerr != nil && err == nil {
			err = &Error{Op: "release", Path: path, Err: rerr}
		}
	}()
	return body()
}

// lockPath names the sidecar lock file for a data file.
func lockPath(path string) string { return path + ".lock" }
