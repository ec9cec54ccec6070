// Package ioutil contains writers used by loggers and tests.
package ioutil

import (
	"bytes"
	"io"
	"sync"
)

// AtomicWriter buffers all writes, it is safe for concurrent use.
// Each write is also copied to the connected writers, see ConnectTo.
type AtomicWriter struct {
	lock   *sync.Mutex
	buf    bytes.Buffer
	copies []io.Writer
}

func NewAtomicWriter() *AtomicWriter {
	return &AtomicWriter{lock: &sync.Mutex{}}
}

func (w *AtomicWriter) ConnectTo(writer io.Writer) {
	w.lock.Lock()
	w.copies = append(w.copies, writer)
	w.lock.Unlock()
}

func (w *AtomicWriter) Write(p []byte) (int, error) {
	w.lock.Lock()
	defer w.lock.Unlock()
	n, _ := w.buf.Write(p)
	for _, writer := range w.copies {
		if _, err := writer.Write(p); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Sync makes the writer usable as a zapcore.WriteSyncer.
func (w *AtomicWriter) Sync() error {
	return nil
}

func (w *AtomicWriter) Truncate() {
	w.lock.Lock()
	w.buf.Reset()
	w.lock.Unlock()
}

func (w *AtomicWriter) String() string {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.buf.String()
}
