//go:build windows

package store

import (
	"errors"

	"golang.org/x/sys/windows"
)

// statGeneration derives the generation token from the volume serial
// number, NTFS file index, size and last write time.
func statGeneration(path string) (Generation, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return Generation{}, err
	}
	h, err := windows.CreateFile(p, 0,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil, windows.OPEN_EXISTING, windows.FILE_FLAG_BACKUP_SEMANTICS, 0)
	if err != nil {
		if errors.Is(err, windows.ERROR_FILE_NOT_FOUND) || errors.Is(err, windows.ERROR_PATH_NOT_FOUND) {
			return DeletedGeneration(), nil
		}
		return Generation{}, err
	}
	defer windows.CloseHandle(h)

	var info windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(h, &info); err != nil {
		return Generation{}, err
	}
	return Generation{
		state: genKnown,
		dev:   uint64(info.VolumeSerialNumber),
		ino:   uint64(info.FileIndexHigh)<<32 | uint64(info.FileIndexLow),
		size:  int64(info.FileSizeHigh)<<32 | int64(info.FileSizeLow),
		mtime: info.LastWriteTime.Nanoseconds(),
	}, nil
}
