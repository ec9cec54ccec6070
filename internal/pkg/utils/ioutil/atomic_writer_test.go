package ioutil

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtomicWriter_Concurrent(t *testing.T) {
	t.Parallel()

	w := NewAtomicWriter()
	var copied strings.Builder
	w.ConnectTo(&copied)

	wg := &sync.WaitGroup{}
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = fmt.Fprintf(w, "line %d\n", i)
		}()
	}
	wg.Wait()

	assert.Len(t, strings.Split(strings.TrimSpace(w.String()), "\n"), 10)
	assert.Equal(t, w.String(), copied.String())

	w.Truncate()
	assert.Empty(t, w.String())
	assert.NotEmpty(t, copied.String())
}
