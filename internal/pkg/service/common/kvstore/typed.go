package kvstore

import (
	"context"

	"github.com/keboola/go-cluster-filesync/internal/pkg/encoding/json"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

// TypedMap encodes values of the Map to the type T.
type TypedMap[T any] struct {
	Map
}

func NewTypedMap[T any](m Map) TypedMap[T] {
	return TypedMap[T]{Map: m}
}

func (v TypedMap[T]) GetValue(ctx context.Context, key string) (out T, found bool, err error) {
	raw, found, err := v.Get(ctx, key)
	if err != nil || !found {
		return out, found, err
	}
	if err := json.Decode(raw, &out); err != nil {
		return out, true, errors.PrefixErrorf(err, `invalid value of the key "%s" in the keyspace "%s"`, key, v.Keyspace())
	}
	return out, true, nil
}

func (v TypedMap[T]) PutValue(ctx context.Context, key string, value T) error {
	raw, err := json.Encode(value, false)
	if err != nil {
		return err
	}
	return v.Put(ctx, key, raw)
}

// UpdateValue decodes the raw value, applies the update and encodes the result.
func UpdateValue[T any](raw Value, update func(T) T) (Value, error) {
	var value T
	if err := json.Decode(raw, &value); err != nil {
		return nil, err
	}
	return json.Encode(update(value), false)
}
