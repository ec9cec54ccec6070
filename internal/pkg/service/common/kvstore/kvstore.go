// Package kvstore provides the distributed map, values are grouped to keyspaces.
//
// Each key belongs to a partition, LocalKeySet returns keys of the partitions owned by the local node.
package kvstore

import (
	"context"
	"strings"

	"github.com/keboola/go-cluster-filesync/internal/pkg/encoding/json"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

// Value is a JSON encoded value.
type Value = json.RawMessage

// Map is one keyspace of the distributed map.
type Map interface {
	Keyspace() string
	Get(ctx context.Context, key string) (Value, bool, error)
	Put(ctx context.Context, key string, value Value) error
	Contains(ctx context.Context, key string) (bool, error)
	// Remove returns false if the key did not exist.
	Remove(ctx context.Context, key string) (bool, error)
	// Keys returns all keys sorted.
	Keys(ctx context.Context) ([]string, error)
	// LocalKeySet returns sorted keys owned by the local node.
	LocalKeySet(ctx context.Context) ([]string, error)
	Size(ctx context.Context) (int, error)
}

// Ownership decides if a key is owned by the local node.
type Ownership interface {
	IsLocalKey(key string) bool
}

type OwnershipFunc func(key string) bool

func (f OwnershipFunc) IsLocalKey(key string) bool {
	return f(key)
}

// AllLocal is Ownership of a single node cluster.
func AllLocal() Ownership {
	return OwnershipFunc(func(string) bool { return true })
}

func validateKeyspace(keyspace string) error {
	if keyspace == "" || strings.Contains(keyspace, "/") {
		return errors.Errorf(`invalid keyspace "%s"`, keyspace)
	}
	return nil
}

func validateKey(key string) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	if strings.HasSuffix(key, "/") {
		return errors.Errorf(`key cannot end with "/", found "%s"`, key)
	}
	return nil
}

func localKeys(keys []string, owner Ownership) []string {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if owner.IsLocalKey(key) {
			out = append(out, key)
		}
	}
	return out
}
