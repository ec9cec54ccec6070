package ctxattr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestContextWith(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.Equal(t, 0, Attributes(ctx).Len())

	transferCtx := ContextWith(ctx, attribute.String("transfer.id", "t1"), attribute.String("node", "node1"))
	retryCtx := ContextWith(transferCtx, attribute.String("transfer.id", "t2"), attribute.Int("chunk.ordinal", 3))

	// The parent context is not modified
	assert.Equal(t, []attribute.KeyValue{
		attribute.String("node", "node1"),
		attribute.String("transfer.id", "t1"),
	}, Attributes(transferCtx).ToSlice())

	// A later value replaces the former one
	assert.Equal(t, []attribute.KeyValue{
		attribute.Int("chunk.ordinal", 3),
		attribute.String("node", "node1"),
		attribute.String("transfer.id", "t2"),
	}, Attributes(retryCtx).ToSlice())
}
