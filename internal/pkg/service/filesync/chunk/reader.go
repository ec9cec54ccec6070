package chunk

import (
	"bufio"
	"io"
	"iter"
	"os"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/exp/mmap"

	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

type ReadMode string

const (
	ReadModeBuffered ReadMode = "buffered"
	ReadModeMmap     ReadMode = "mmap"
)

// Reader splits the source file to chunks.
type Reader struct {
	fs        afero.Fs
	path      string
	chunkSize int
	mode      ReadMode
}

type source interface {
	io.Reader
	io.Closer
}

type mmapSource struct {
	*io.SectionReader
	file *mmap.ReaderAt
}

type bufferedSource struct {
	*bufio.Reader
	file afero.File
}

func NewReader(fs afero.Fs, path string, chunkSize int, mode ReadMode) (*Reader, error) {
	if chunkSize <= 0 {
		return nil, errors.Errorf(`chunk size must be greater than zero, found %d`, chunkSize)
	}
	switch mode {
	case ReadModeBuffered:
	case ReadModeMmap:
		if !isOsFs(fs) {
			return nil, errors.Errorf(`read mode "%s" requires the OS filesystem`, mode)
		}
	default:
		return nil, errors.Errorf(`unexpected read mode "%s"`, mode)
	}
	return &Reader{fs: fs, path: path, chunkSize: chunkSize, mode: mode}, nil
}

func (r *Reader) Path() string {
	return r.path
}

// All returns chunks of the file, ordinals are 0, 1, 2, ...
// Each chunk carries the attrs, read once by the caller before the file is announced.
// The sequence fails before the first chunk if the size or the modification time differs from the attrs.
// Each call of the sequence reads the file again from the start.
// The sequence ends after the first error.
func (r *Reader) All(attrs FileAttributes) iter.Seq2[FileChunk, error] {
	return func(yield func(FileChunk, error) bool) {
		src, err := r.open(attrs)
		if err != nil {
			yield(FileChunk{}, err)
			return
		}
		defer src.Close()

		total := TotalChunks(attrs.Size, r.chunkSize)
		remaining := attrs.Size
		for ordinal := range total {
			n := min(int64(r.chunkSize), remaining)
			payload := make([]byte, n)
			if _, err := io.ReadFull(src, payload); err != nil {
				yield(FileChunk{}, newIOFailure("read", r.path, err))
				return
			}
			remaining -= n

			chunk := FileChunk{FileAttributes: attrs, Ordinal: ordinal, TotalChunks: total, Payload: payload}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

func (r *Reader) open(attrs FileAttributes) (source, error) {
	if r.mode == ReadModeMmap {
		info, err := r.fs.Stat(r.path)
		if err != nil {
			return nil, newIOFailure("stat", r.path, err)
		}
		if err := checkUnchanged(info, attrs); err != nil {
			return nil, newIOFailure("read", r.path, err)
		}
		file, err := mmap.Open(r.path)
		if err != nil {
			return nil, newIOFailure("map", r.path, err)
		}
		if int64(file.Len()) != attrs.Size {
			_ = file.Close()
			return nil, newIOFailure("map", r.path, errors.Errorf(`file size changed from %d B to %d B`, attrs.Size, file.Len()))
		}
		return &mmapSource{SectionReader: io.NewSectionReader(file, 0, int64(file.Len())), file: file}, nil
	}

	file, err := r.fs.Open(r.path)
	if err != nil {
		return nil, newIOFailure("open", r.path, err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, newIOFailure("stat", r.path, err)
	}
	if err := checkUnchanged(info, attrs); err != nil {
		_ = file.Close()
		return nil, newIOFailure("read", r.path, err)
	}
	return &bufferedSource{Reader: bufio.NewReaderSize(file, r.chunkSize), file: file}, nil
}

// checkUnchanged compares the size and the modification time, the access time changes by reading.
func checkUnchanged(info os.FileInfo, attrs FileAttributes) error {
	if info.IsDir() {
		return errIsDir
	}
	if info.Size() != attrs.Size {
		return errors.Errorf(`file size changed from %d B to %d B`, attrs.Size, info.Size())
	}
	if modTime := info.ModTime().UTC(); !modTime.Equal(attrs.LastModifiedTime) {
		return errors.Errorf(`file modification time changed from "%s" to "%s"`, attrs.LastModifiedTime.Format(time.RFC3339Nano), modTime.Format(time.RFC3339Nano))
	}
	return nil
}

func (s *mmapSource) Close() error {
	return s.file.Close()
}

func (s *bufferedSource) Close() error {
	return s.file.Close()
}
