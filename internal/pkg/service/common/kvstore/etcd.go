package kvstore

import (
	"context"
	"sort"

	etcd "go.etcd.io/etcd/client/v3"

	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/etcdop"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/etcdop/serde"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

const keyPrefix = "map"

// EtcdMap stores each value in the key "map/<keyspace>/<key>".
type EtcdMap struct {
	keyspace string
	client   *etcd.Client
	owner    Ownership
	prefix   etcdop.PrefixT[Value]
}

func NewEtcdMap(client *etcd.Client, keyspace string, owner Ownership) (*EtcdMap, error) {
	if err := validateKeyspace(keyspace); err != nil {
		return nil, err
	}
	return &EtcdMap{
		keyspace: keyspace,
		client:   client,
		owner:    owner,
		prefix:   etcdop.NewTypedPrefix[Value](keyPrefix+"/"+keyspace, serde.NewJSON(serde.NoValidation)),
	}, nil
}

func (m *EtcdMap) Keyspace() string {
	return m.keyspace
}

func (m *EtcdMap) Get(ctx context.Context, key string) (Value, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}
	kv, err := m.prefix.Key(key).GetKV(ctx, m.client)
	if err != nil {
		return nil, false, err
	}
	if kv == nil {
		return nil, false, nil
	}
	return kv.Value, true, nil
}

func (m *EtcdMap) Put(ctx context.Context, key string, value Value) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return m.prefix.Key(key).Put(ctx, m.client, value)
}

func (m *EtcdMap) Contains(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	return m.prefix.Key(key).Exists(ctx, m.client)
}

func (m *EtcdMap) Remove(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	return m.prefix.Key(key).Delete(ctx, m.client)
}

func (m *EtcdMap) Keys(ctx context.Context) ([]string, error) {
	resp, err := m.client.Get(ctx, m.prefix.Prefix(), etcd.WithPrefix(), etcd.WithKeysOnly())
	if err != nil {
		return nil, errors.Errorf(`cannot list keys of the keyspace "%s": %w`, m.keyspace, err)
	}
	out := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		out = append(out, m.prefix.RelativeKey(string(kv.Key)))
	}
	sort.Strings(out)
	return out, nil
}

func (m *EtcdMap) LocalKeySet(ctx context.Context) ([]string, error) {
	keys, err := m.Keys(ctx)
	if err != nil {
		return nil, err
	}
	return localKeys(keys, m.owner), nil
}

func (m *EtcdMap) Size(ctx context.Context) (int, error) {
	count, err := m.prefix.Count(ctx, m.client)
	return int(count), err
}
