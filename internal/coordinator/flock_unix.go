//go:build unix

package coordinator

import "golang.org/x/sys/unix"

// lockHandle is an open file descriptor holding a flock lock. flock
// locks belong to the open file description, so two handles opened on
// the same lock file conflict even within one process.
type lockHandle int

func acquire(lockFile string, exclusive bool) (lockHandle, error) {
	fd, err := unix.Open(lockFile, unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, 0600)
	if err != nil {
		return -1, err
	}
	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	if err := unix.Flock(fd, how); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	return lockHandle(fd), nil
}

func release(h lockHandle) error {
	// Closing the descriptor drops the lock, but unlock explicitly so a
	// close failure cannot leave the lock held.
	ferr := unix.Flock(int(h), unix.LOCK_UN)
	cerr := unix.Close(int(h))
	if ferr != nil {
		return ferr
	}
	return cerr
}
