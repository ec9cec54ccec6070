//go:build linux

package chunk

import (
	"time"

	"golang.org/x/sys/unix"
)

func osTimes(path string, attrs *FileAttributes) error {
	var stat unix.Statx_t
	mask := unix.STATX_ATIME | unix.STATX_MTIME | unix.STATX_BTIME
	if err := unix.Statx(unix.AT_FDCWD, path, unix.AT_SYMLINK_NOFOLLOW, mask, &stat); err != nil {
		return err
	}

	if stat.Mask&unix.STATX_MTIME != 0 {
		attrs.LastModifiedTime = statxTime(stat.Mtime)
	}
	if stat.Mask&unix.STATX_ATIME != 0 {
		attrs.LastAccessTime = statxTime(stat.Atime)
	}
	if stat.Mask&unix.STATX_BTIME != 0 {
		attrs.CreationTime = statxTime(stat.Btime)
	} else {
		// Birth time is not supported by the filesystem
		attrs.CreationTime = attrs.LastModifiedTime
	}
	return nil
}

func statxTime(ts unix.StatxTimestamp) time.Time {
	return time.Unix(ts.Sec, int64(ts.Nsec)).UTC()
}
