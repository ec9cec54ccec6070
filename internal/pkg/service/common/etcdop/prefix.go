package etcdop

import (
	"context"
	"strings"

	etcd "go.etcd.io/etcd/client/v3"

	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/etcdop/serde"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

// Prefix represents an etcd prefix, it always ends with a slash.
type Prefix string

type prefix = Prefix

// PrefixT extends Prefix with generic functionality, contains type of the serialized value.
type PrefixT[T any] struct {
	prefix
	serde *serde.Serde
}

func NewPrefix(v string) Prefix {
	return Prefix(strings.Trim(v, "/") + "/")
}

func NewTypedPrefix[T any](v string, s *serde.Serde) PrefixT[T] {
	return PrefixT[T]{prefix: NewPrefix(v), serde: s}
}

func (v Prefix) Prefix() string {
	return string(v)
}

func (v Prefix) Add(str string) Prefix {
	return Prefix(v.Prefix() + strings.Trim(str, "/") + "/")
}

func (v Prefix) Key(key string) Key {
	if key == "" {
		panic(errors.New("the key cannot be empty"))
	}
	if strings.HasSuffix(key, "/") {
		panic(errors.Errorf(`the key cannot end with "/", found "%s"`, key))
	}
	return Key(v.Prefix() + key)
}

// RelativeKey strips the prefix from a full key.
func (v Prefix) RelativeKey(key string) string {
	return strings.TrimPrefix(key, v.Prefix())
}

func (v Prefix) Count(ctx context.Context, client etcd.KV) (int64, error) {
	resp, err := client.Get(ctx, v.Prefix(), etcd.WithPrefix(), etcd.WithCountOnly())
	if err != nil {
		return 0, errors.Errorf(`etcd count "%s" failed: %w`, v.Prefix(), err)
	}
	return resp.Count, nil
}

// DeleteAll returns the number of deleted keys.
func (v Prefix) DeleteAll(ctx context.Context, client etcd.KV) (int64, error) {
	resp, err := client.Delete(ctx, v.Prefix(), etcd.WithPrefix())
	if err != nil {
		return 0, errors.Errorf(`etcd delete prefix "%s" failed: %w`, v.Prefix(), err)
	}
	return resp.Deleted, nil
}

func (v PrefixT[T]) Add(str string) PrefixT[T] {
	return PrefixT[T]{prefix: v.prefix.Add(str), serde: v.serde}
}

func (v PrefixT[T]) Key(key string) KeyT[T] {
	return KeyT[T]{key: v.prefix.Key(key), serde: v.serde}
}

// GetAll loads and decodes all values under the prefix, ordered by key.
// The response revision is returned, so a watch can continue where the read ended.
func (v PrefixT[T]) GetAll(ctx context.Context, client etcd.KV) (out []KeyValueT[T], rev int64, err error) {
	resp, err := client.Get(ctx, v.Prefix(), etcd.WithPrefix(), etcd.WithSort(etcd.SortByKey, etcd.SortAscend))
	if err != nil {
		return nil, 0, errors.Errorf(`etcd get prefix "%s" failed: %w`, v.Prefix(), err)
	}

	errs := errors.NewMultiError()
	for _, kv := range resp.Kvs {
		target := new(T)
		if err := v.serde.Decode(ctx, kv.Value, target); err != nil {
			errs.Append(invalidValueError(string(kv.Key), err))
			continue
		}
		out = append(out, KeyValueT[T]{Value: *target, Kv: kv})
	}
	return out, resp.Header.Revision, errs.ErrorOrNil()
}

// GetAllValues is a shortcut for GetAll without the raw KVs.
func (v PrefixT[T]) GetAllValues(ctx context.Context, client etcd.KV) ([]T, error) {
	kvs, _, err := v.GetAll(ctx, client)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(kvs))
	for _, kv := range kvs {
		out = append(out, kv.Value)
	}
	return out, nil
}
