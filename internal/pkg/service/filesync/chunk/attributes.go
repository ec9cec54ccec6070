package chunk

import (
	"path/filepath"

	"github.com/spf13/afero"
)

// ReadAttributes returns attributes of the file.
// Access and creation times are read from the OS if the filesystem is backed by the OS,
// otherwise the modification time is used for all timestamps.
func ReadAttributes(fs afero.Fs, path string) (FileAttributes, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return FileAttributes{}, newIOFailure("stat", path, err)
	}
	if info.IsDir() {
		return FileAttributes{}, newIOFailure("read", path, errIsDir)
	}

	modTime := info.ModTime().UTC()
	attrs := FileAttributes{
		Name:             filepath.Base(path),
		Size:             info.Size(),
		CreationTime:     modTime,
		LastAccessTime:   modTime,
		LastModifiedTime: modTime,
	}

	if isOsFs(fs) {
		if err := osTimes(path, &attrs); err != nil {
			return FileAttributes{}, newIOFailure("stat", path, err)
		}
	}

	return attrs, nil
}

// restoreTimes sets access and modification time, creation time cannot be set.
func restoreTimes(fs afero.Fs, path string, attrs FileAttributes) error {
	if err := fs.Chtimes(path, attrs.LastAccessTime, attrs.LastModifiedTime); err != nil {
		return newIOFailure("restore timestamps of", path, err)
	}
	return nil
}

func isOsFs(fs afero.Fs) bool {
	_, ok := fs.(*afero.OsFs)
	return ok
}
