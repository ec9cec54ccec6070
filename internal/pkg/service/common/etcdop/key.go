package etcdop

import (
	"context"

	"go.etcd.io/etcd/api/v3/mvccpb"
	etcd "go.etcd.io/etcd/client/v3"

	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/etcdop/serde"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

// Key represents an etcd key - one key, not a prefix.
type Key string

type key = Key

// KeyT extends Key with generic functionality, contains type of the serialized value.
type KeyT[T any] struct {
	key
	serde *serde.Serde
}

// KeyValueT is a decoded etcd value with the raw KV.
type KeyValueT[T any] struct {
	Value T
	Kv    *mvccpb.KeyValue
}

func NewKey(v string) Key {
	return Key(v)
}

func NewTypedKey[T any](v string, s *serde.Serde) KeyT[T] {
	return KeyT[T]{key: NewKey(v), serde: s}
}

func (v Key) Key() string {
	return string(v)
}

func (v Key) Exists(ctx context.Context, client etcd.KV) (bool, error) {
	resp, err := client.Get(ctx, v.Key(), etcd.WithCountOnly())
	if err != nil {
		return false, errors.Errorf(`etcd exists "%s" failed: %w`, v.Key(), err)
	}
	return resp.Count > 0, nil
}

func (v Key) Get(ctx context.Context, client etcd.KV) (*mvccpb.KeyValue, error) {
	resp, err := client.Get(ctx, v.Key())
	if err != nil {
		return nil, errors.Errorf(`etcd get "%s" failed: %w`, v.Key(), err)
	}
	switch len(resp.Kvs) {
	case 0:
		return nil, nil
	case 1:
		return resp.Kvs[0], nil
	default:
		return nil, errors.Errorf(`etcd get: at most one result expected, found %d results`, len(resp.Kvs))
	}
}

func (v Key) Put(ctx context.Context, client etcd.KV, val string, opts ...etcd.OpOption) error {
	if _, err := client.Put(ctx, v.Key(), val, opts...); err != nil {
		return errors.Errorf(`etcd put "%s" failed: %w`, v.Key(), err)
	}
	return nil
}

// Delete returns true if the key existed.
func (v Key) Delete(ctx context.Context, client etcd.KV) (bool, error) {
	resp, err := client.Delete(ctx, v.Key())
	if err != nil {
		return false, errors.Errorf(`etcd delete "%s" failed: %w`, v.Key(), err)
	}
	return resp.Deleted > 0, nil
}

// PutIfNotExists returns false if the key already exists.
func (v Key) PutIfNotExists(ctx context.Context, client etcd.KV, val string, opts ...etcd.OpOption) (bool, error) {
	resp, err := client.Txn(ctx).
		If(etcd.Compare(etcd.Version(v.Key()), "=", 0)).
		Then(etcd.OpPut(v.Key(), val, opts...)).
		Commit()
	if err != nil {
		return false, errors.Errorf(`etcd put if not exists "%s" failed: %w`, v.Key(), err)
	}
	return resp.Succeeded, nil
}

// GetKV returns nil if the key doesn't exist.
func (v KeyT[T]) GetKV(ctx context.Context, client etcd.KV) (*KeyValueT[T], error) {
	kv, err := v.key.Get(ctx, client)
	if err != nil || kv == nil {
		return nil, err
	}
	target := new(T)
	if err := v.serde.Decode(ctx, kv.Value, target); err != nil {
		return nil, invalidValueError(v.Key(), err)
	}
	return &KeyValueT[T]{Value: *target, Kv: kv}, nil
}

// Get returns EmptyResultError if the key doesn't exist.
func (v KeyT[T]) Get(ctx context.Context, client etcd.KV) (T, error) {
	var empty T
	kv, err := v.GetKV(ctx, client)
	if err != nil {
		return empty, err
	}
	if kv == nil {
		return empty, NewEmptyResultError(v.Key())
	}
	return kv.Value, nil
}

func (v KeyT[T]) Put(ctx context.Context, client etcd.KV, val T, opts ...etcd.OpOption) error {
	encoded, err := v.serde.Encode(ctx, &val)
	if err != nil {
		return invalidValueError(v.Key(), err)
	}
	return v.key.Put(ctx, client, encoded, opts...)
}

func (v KeyT[T]) PutIfNotExists(ctx context.Context, client etcd.KV, val T, opts ...etcd.OpOption) (bool, error) {
	encoded, err := v.serde.Encode(ctx, &val)
	if err != nil {
		return false, invalidValueError(v.Key(), err)
	}
	return v.key.PutIfNotExists(ctx, client, encoded, opts...)
}

// EmptyResultError is returned by KeyT.Get if the key is missing.
type EmptyResultError struct {
	key string
}

func NewEmptyResultError(key string) EmptyResultError {
	return EmptyResultError{key: key}
}

func (e EmptyResultError) Error() string {
	return `key "` + e.key + `" not found`
}

func invalidValueError(key string, err error) error {
	return errors.PrefixErrorf(err, `invalid value for "%s"`, key)
}
