//go:build windows

package coordinator

import "golang.org/x/sys/windows"

// lockHandle is an open file handle holding a LockFileEx region lock.
type lockHandle = windows.Handle

func acquire(lockFile string, exclusive bool) (lockHandle, error) {
	p, err := windows.UTF16PtrFromString(lockFile)
	if err != nil {
		return windows.InvalidHandle, err
	}
	h, err := windows.CreateFile(p,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil, windows.OPEN_ALWAYS, windows.FILE_ATTRIBUTE_NORMAL, 0)
	if err != nil {
		return windows.InvalidHandle, err
	}
	var flags uint32
	if exclusive {
		flags = windows.LOCKFILE_EXCLUSIVE_LOCK
	}
	if err := windows.LockFileEx(h, flags, 0, 1, 0, new(windows.Overlapped)); err != nil {
		_ = windows.CloseHandle(h)
		return windows.InvalidHandle, err
	}
	return h, nil
}

func release(h lockHandle) error {
	uerr := windows.UnlockFileEx(h, 0, 1, 0, new(windows.Overlapped))
	cerr := windows.CloseHandle(h)
	if uerr != nil {
		return uerr
	}
	return cerr
}
