package chunk

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/benbjohnson/clock"
	"github.com/lestrrat-go/strftime"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/go-cluster-filesync/internal/pkg/log"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

const (
	dirPerm  = 0o750
	filePerm = 0o640

	// DefaultRenameSuffix is appended to the name of an existing file by the ExistingFileRename policy.
	DefaultRenameSuffix = ".%Y%m%d-%H%M%S"
)

// ExistingFilePolicy defines what happens with an existing file with the same name.
type ExistingFilePolicy string

const (
	ExistingFileReplace ExistingFilePolicy = "replace"
	ExistingFileRename  ExistingFilePolicy = "rename"
)

type WriterConfig struct {
	TargetDir    string
	Policy       ExistingFilePolicy
	RenameSuffix string
}

// Writer reassembles one file from chunks, a new Writer is needed for each transfer.
type Writer struct {
	fs     afero.Fs
	clock  clock.Clock
	logger log.Logger
	config WriterConfig
	suffix *strftime.Strftime

	first   *FileAttributes
	total   int
	next    int
	written int64
	path    string
	file    afero.File
	done    bool
	closed  bool
	aborted bool
}

func NewWriter(fs afero.Fs, clk clock.Clock, logger log.Logger, cfg WriterConfig) (*Writer, error) {
	if cfg.TargetDir == "" {
		return nil, errors.New("target directory is not set")
	}
	if cfg.RenameSuffix == "" {
		cfg.RenameSuffix = DefaultRenameSuffix
	}

	w := &Writer{fs: fs, clock: clk, logger: logger.WithComponent("chunk.writer"), config: cfg}
	switch cfg.Policy {
	case ExistingFileReplace:
	case ExistingFileRename:
		suffix, err := strftime.New(cfg.RenameSuffix)
		if err != nil {
			return nil, errors.PrefixErrorf(err, `invalid rename suffix "%s"`, cfg.RenameSuffix)
		}
		w.suffix = suffix
	default:
		return nil, errors.Errorf(`unexpected existing file policy "%s"`, cfg.Policy)
	}

	return w, nil
}

// Path of the destination file, it is empty before the first chunk.
func (w *Writer) Path() string {
	return w.path
}

func (w *Writer) BytesWritten() int64 {
	return w.written
}

// Done returns true if all bytes of the file have been written and the file is closed.
func (w *Writer) Done() bool {
	return w.done
}

// Write the chunk, the chunk is validated before the file is modified.
func (w *Writer) Write(ctx context.Context, chunk FileChunk) error {
	if w.aborted {
		return errors.New("writer is aborted")
	}
	if w.done {
		return NewProtocolViolationError(`unexpected chunk %d, the file "%s" is already complete`, chunk.Ordinal, w.first.Name)
	}

	if w.first == nil {
		if err := ValidateFirst(chunk); err != nil {
			return err
		}
		attrs := chunk.FileAttributes
		w.first = &attrs
		w.total = chunk.TotalChunks
		if err := w.create(ctx, attrs); err != nil {
			return err
		}
	} else {
		first := FileChunk{FileAttributes: *w.first, TotalChunks: w.total}
		if err := Validate(first, chunk); err != nil {
			return err
		}
		if chunk.Ordinal != w.next {
			return NewProtocolViolationError(`unexpected chunk %d, expected %d`, chunk.Ordinal, w.next)
		}
		if w.written+int64(len(chunk.Payload)) > w.first.Size {
			return NewProtocolViolationError(`written size %d B exceeds the declared file size %d B`, w.written+int64(len(chunk.Payload)), w.first.Size)
		}
	}

	if w.file == nil || w.closed {
		return errors.New("the file is not open")
	}
	if len(chunk.Payload) > 0 {
		n, err := w.file.Write(chunk.Payload)
		w.written += int64(n)
		if err != nil {
			return newIOFailure("write", w.path, err)
		}
	}
	w.next++

	switch {
	case w.written == w.first.Size:
		return w.complete(ctx)
	case chunk.IsLast():
		return NewProtocolViolationError(`the last chunk received, but only %d B of %d B written`, w.written, w.first.Size)
	default:
		return nil
	}
}

// Abort closes the incomplete file and removes it, it is no-op if the file is complete.
func (w *Writer) Abort(ctx context.Context) error {
	if w.done || w.aborted {
		return nil
	}
	w.aborted = true
	if w.path == "" {
		return nil
	}

	errs := errors.NewMultiError()
	if !w.closed {
		w.closed = true
		if err := w.file.Close(); err != nil {
			errs.Append(newIOFailure("close", w.path, err))
		}
	}
	if err := w.fs.Remove(w.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs.Append(newIOFailure("remove", w.path, err))
	}
	w.logger.Infof(ctx, `removed incomplete file "%s", written %d B of %d B`, w.path, w.written, w.first.Size)
	return errs.ErrorOrNil()
}

func (w *Writer) create(ctx context.Context, attrs FileAttributes) error {
	if err := w.fs.MkdirAll(w.config.TargetDir, dirPerm); err != nil {
		return newIOFailure("create directory", w.config.TargetDir, err)
	}

	path := filepath.Join(w.config.TargetDir, attrs.Name)
	logger := w.logger.With(attribute.String("file.path", path))
	if err := w.handleExisting(ctx, logger, path); err != nil {
		return err
	}

	file, err := w.fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerm)
	if err != nil {
		return newIOFailure("create", path, err)
	}
	w.path = path
	w.file = file

	if err := restoreTimes(w.fs, path, attrs); err != nil {
		return err
	}

	logger.Debugf(ctx, `created file, expected size %d B`, attrs.Size)
	return nil
}

func (w *Writer) handleExisting(ctx context.Context, logger log.Logger, path string) error {
	exists, err := afero.Exists(w.fs, path)
	if err != nil {
		return newIOFailure("stat", path, err)
	} else if !exists {
		return nil
	}

	switch w.config.Policy {
	case ExistingFileRename:
		backup := path + w.suffix.FormatString(w.clock.Now())
		for i := 1; ; i++ {
			if exists, err := afero.Exists(w.fs, backup); err != nil {
				return newIOFailure("stat", backup, err)
			} else if !exists {
				break
			}
			backup = path + w.suffix.FormatString(w.clock.Now()) + "-" + strconv.Itoa(i)
		}
		if err := w.fs.Rename(path, backup); err != nil {
			return newIOFailure("rename", path, err)
		}
		logger.Infof(ctx, `renamed existing file to "%s"`, backup)
	default:
		if err := w.fs.Remove(path); err != nil {
			return newIOFailure("remove", path, err)
		}
		logger.Info(ctx, `removed existing file`)
	}
	return nil
}

func (w *Writer) complete(ctx context.Context) error {
	errs := errors.NewMultiError()
	if err := w.file.Sync(); err != nil {
		errs.Append(newIOFailure("sync", w.path, err))
	}
	if err := w.file.Close(); err != nil {
		errs.Append(newIOFailure("close", w.path, err))
	}
	w.closed = true
	if errs.Len() > 0 {
		return errs.ErrorOrNil()
	}

	if err := restoreTimes(w.fs, w.path, *w.first); err != nil {
		return err
	}

	w.done = true
	w.logger.Infof(ctx, `file "%s" written, %d B in %d chunks`, w.path, w.written, w.total)
	return nil
}
