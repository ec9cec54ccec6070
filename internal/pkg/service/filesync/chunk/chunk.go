// Package chunk splits a file to ordered chunks and reassembles the file from them.
//
// Each FileChunk carries the attributes of the whole file, so a receiver can validate
// that all chunks of one transfer belong to the same file.
package chunk

import (
	"path/filepath"
	"strings"
	"time"
)

// FileAttributes identify the transferred file.
// Creation time is transferred for information only, it cannot be restored on most filesystems.
type FileAttributes struct {
	Name             string    `json:"fileName" validate:"required"`
	Size             int64     `json:"fileSize" validate:"min=0"`
	CreationTime     time.Time `json:"creationTime"`
	LastAccessTime   time.Time `json:"lastAccessTime"`
	LastModifiedTime time.Time `json:"lastModifiedTime"`
}

// FileChunk is one ordered part of the file.
type FileChunk struct {
	FileAttributes
	Ordinal     int    `json:"ordinal" validate:"min=0"`
	TotalChunks int    `json:"totalChunks" validate:"min=1"`
	Payload     []byte `json:"payload"`
}

// TotalChunks returns count of chunks of a file with the size, an empty file has one empty chunk.
func TotalChunks(size int64, chunkSize int) int {
	if size <= 0 {
		return 1
	}
	return int((size + int64(chunkSize) - 1) / int64(chunkSize))
}

func (c FileChunk) IsLast() bool {
	return c.Ordinal == c.TotalChunks-1
}

// SameFile returns true if the attributes describe the same file version.
func (a FileAttributes) SameFile(b FileAttributes) bool {
	return a.Name == b.Name &&
		a.Size == b.Size &&
		a.CreationTime.Equal(b.CreationTime) &&
		a.LastAccessTime.Equal(b.LastAccessTime) &&
		a.LastModifiedTime.Equal(b.LastModifiedTime)
}

// ValidateFirst checks the first chunk of a transfer.
func ValidateFirst(first FileChunk) error {
	if err := validateName(first.Name); err != nil {
		return err
	}
	switch {
	case first.Size < 0:
		return NewProtocolViolationError(`invalid file size %d`, first.Size)
	case first.TotalChunks < 1:
		return NewProtocolViolationError(`invalid total chunks count %d`, first.TotalChunks)
	case first.Ordinal != 0:
		return NewProtocolViolationError(`the first chunk has ordinal %d, expected 0`, first.Ordinal)
	case int64(len(first.Payload)) > first.Size:
		return NewProtocolViolationError(`chunk payload %d B exceeds the declared file size %d B`, len(first.Payload), first.Size)
	}
	return nil
}

// Validate checks the next chunk against the first chunk of the same transfer.
func Validate(first, next FileChunk) error {
	switch {
	case next.Name != first.Name:
		return NewProtocolViolationError(`file name "%s" doesn't match "%s"`, next.Name, first.Name)
	case next.Size != first.Size:
		return NewProtocolViolationError(`file size %d doesn't match %d`, next.Size, first.Size)
	case !next.CreationTime.Equal(first.CreationTime):
		return NewProtocolViolationError(`creation time of the file "%s" doesn't match`, first.Name)
	case !next.LastAccessTime.Equal(first.LastAccessTime):
		return NewProtocolViolationError(`last access time of the file "%s" doesn't match`, first.Name)
	case !next.LastModifiedTime.Equal(first.LastModifiedTime):
		return NewProtocolViolationError(`last modification time of the file "%s" doesn't match`, first.Name)
	case next.TotalChunks != first.TotalChunks:
		return NewProtocolViolationError(`total chunks %d doesn't match %d`, next.TotalChunks, first.TotalChunks)
	case next.Ordinal < 0 || next.Ordinal >= next.TotalChunks:
		return NewProtocolViolationError(`ordinal %d is out of the range, total chunks %d`, next.Ordinal, next.TotalChunks)
	}
	return nil
}

// validateName allows only a plain file name, the file is always written to the target directory.
func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return NewProtocolViolationError(`invalid file name "%s"`, name)
	}
	return nil
}
