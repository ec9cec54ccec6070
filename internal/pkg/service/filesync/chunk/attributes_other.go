//go:build !linux

package chunk

import (
	"os"
)

func osTimes(path string, attrs *FileAttributes) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	attrs.CreationTime = info.ModTime().UTC()
	attrs.LastAccessTime = info.ModTime().UTC()
	attrs.LastModifiedTime = info.ModTime().UTC()
	return nil
}
