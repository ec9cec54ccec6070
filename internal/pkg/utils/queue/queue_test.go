package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnbounded(t *testing.T) {
	t.Parallel()
	q := New[int](context.Background())

	// Push never blocks
	for i := range 1000 {
		assert.True(t, q.Push(i))
	}
	q.Close()
	assert.False(t, q.Push(1000))

	// All items are forwarded in order
	var out []int
	for v := range q.C() {
		out = append(out, v)
	}
	assert.Len(t, out, 1000)
	for i, v := range out {
		assert.Equal(t, i, v)
	}
}

func TestUnbounded_ContextCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	q := New[string](ctx)
	assert.True(t, q.Push("foo"))
	assert.Equal(t, "foo", <-q.C())

	cancel()
	for range q.C() {
		// drain
	}
	assert.False(t, q.Push("bar"))
}
