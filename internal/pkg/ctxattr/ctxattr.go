// Package ctxattr stores telemetry/log attributes in the context.
// Attributes are added to each log record written with the context.
package ctxattr

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

type ctxKey string

const attributesCtxKey = ctxKey("attributes")

// ContextWith returns a new context with the attributes merged to the existing ones.
// A later value of the same key replaces the former value.
func ContextWith(ctx context.Context, attrs ...attribute.KeyValue) context.Context {
	set := Attributes(ctx)
	merged := append(set.ToSlice(), attrs...)
	newSet := attribute.NewSet(merged...)
	return context.WithValue(ctx, attributesCtxKey, &newSet)
}

// Attributes returns all attributes from the context.
func Attributes(ctx context.Context) *attribute.Set {
	if set, ok := ctx.Value(attributesCtxKey).(*attribute.Set); ok {
		return set
	}
	empty := attribute.NewSet()
	return &empty
}
