package kvstore_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/kvstore"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/etcdhelper"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ownedByA marks keys starting with "a" as local.
func ownedByA() kvstore.Ownership {
	return kvstore.OwnershipFunc(func(key string) bool {
		return strings.HasPrefix(key, "a")
	})
}

func TestMemoryMap(t *testing.T) {
	t.Parallel()
	store := kvstore.NewMemoryStore()

	m, err := store.Map("my-keyspace", ownedByA())
	require.NoError(t, err)
	other, err := store.Map("other", kvstore.AllLocal())
	require.NoError(t, err)
	testMap(t, m, other)

	_, err = store.Map("", kvstore.AllLocal())
	require.Error(t, err)
}

func TestEtcdMap(t *testing.T) {
	t.Parallel()
	client := etcdhelper.ClusterForTest(t)

	m, err := kvstore.NewEtcdMap(client, "my-keyspace", ownedByA())
	require.NoError(t, err)
	other, err := kvstore.NewEtcdMap(client, "other", kvstore.AllLocal())
	require.NoError(t, err)
	testMap(t, m, other)

	etcdhelper.AssertKVsString(t, client, `
<<<<<
map/my-keyspace/a1
-----
{
  "count": 2,
  "name": "foo"
}
>>>>>

<<<<<
map/my-keyspace/b1
-----
{
  "count": 3,
  "name": "bar"
}
>>>>>

<<<<<
map/other/a1
-----
"other value"
>>>>>
`)

	_, err = kvstore.NewEtcdMap(client, "invalid/keyspace", kvstore.AllLocal())
	require.Error(t, err)
}

func testMap(t *testing.T, m, other kvstore.Map) {
	t.Helper()
	ctx := context.Background()
	typed := kvstore.NewTypedMap[record](m)

	assert.Equal(t, "my-keyspace", m.Keyspace())

	// Empty map
	_, found, err := m.Get(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, found)
	size, err := m.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size)

	// Put
	require.NoError(t, typed.PutValue(ctx, "a1", record{Name: "foo", Count: 1}))
	require.NoError(t, typed.PutValue(ctx, "a2", record{Name: "foo", Count: 2}))
	require.NoError(t, typed.PutValue(ctx, "b1", record{Name: "bar", Count: 3}))
	require.NoError(t, other.Put(ctx, "a1", kvstore.Value(`"other value"`)))

	// Get
	value, found, err := typed.GetValue(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, record{Name: "foo", Count: 1}, value)

	raw, found, err := other.Get(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `"other value"`, string(raw))

	// Overwrite
	require.NoError(t, typed.PutValue(ctx, "a1", record{Name: "foo", Count: 2}))
	value, _, err = typed.GetValue(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, value.Count)

	// Contains
	ok, err := m.Contains(ctx, "a2")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.Contains(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	// Keys
	keys, err := m.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2", "b1"}, keys)
	keys, err = m.LocalKeySet(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, keys)
	size, err = m.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, size)

	// Remove
	ok, err = m.Remove(ctx, "a2")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.Remove(ctx, "a2")
	require.NoError(t, err)
	assert.False(t, ok)
	size, err = m.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, size)

	// Invalid keys
	_, _, err = m.Get(ctx, "")
	require.Error(t, err)
	require.Error(t, m.Put(ctx, "foo/", kvstore.Value(`{}`)))

	// Invalid value
	require.NoError(t, m.Put(ctx, "a3", kvstore.Value(`"string"`)))
	_, _, err = typed.GetValue(ctx, "a3")
	require.Error(t, err)
	_, err = m.Remove(ctx, "a3")
	require.NoError(t, err)
}
