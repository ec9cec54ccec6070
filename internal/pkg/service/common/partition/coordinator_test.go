package partition

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/go-cluster-filesync/internal/pkg/encoding/json"
	commonDeps "github.com/keboola/go-cluster-filesync/internal/pkg/service/common/dependencies"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/distribution"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/kvstore"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

const testKeyspace = "cache"

type counterValue struct {
	Count int `json:"count"`
}

type testNode struct {
	d       commonDeps.Mocked
	node    *distribution.Node
	coord   *Coordinator
	m       kvstore.Map
	lock    *sync.Mutex
	reports []MigrationReport
	events  []MigrationEvent
}

func newTestNode(t *testing.T, cluster *distribution.MemoryCluster, store *kvstore.MemoryStore, id string, cfg Config, callback MigrationCallback) *testNode {
	t.Helper()

	n := &testNode{d: commonDeps.NewMocked(t), lock: &sync.Mutex{}}

	var err error
	n.node, err = distribution.NewNode(id, "my-group", cluster, n.d)
	require.NoError(t, err)
	n.coord, err = NewCoordinator(n.node, cfg, n.d)
	require.NoError(t, err)
	n.m, err = store.Map(testKeyspace, n.coord)
	require.NoError(t, err)

	require.NoError(t, n.coord.RegisterMigrationCallback(n.m, callback))
	require.NoError(t, n.coord.OnReport(func(report MigrationReport) {
		n.lock.Lock()
		defer n.lock.Unlock()
		n.reports = append(n.reports, report)
	}))
	require.NoError(t, n.coord.OnMigration(func(event MigrationEvent) {
		n.lock.Lock()
		defer n.lock.Unlock()
		n.events = append(n.events, event)
	}))
	return n
}

func (n *testNode) start(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, n.coord.Start(ctx))
	require.NoError(t, n.node.Start(ctx))
}

func (n *testNode) processedKeys() int {
	n.lock.Lock()
	defer n.lock.Unlock()
	out := 0
	for _, r := range n.reports {
		out += r.Processed
	}
	return out
}

func (n *testNode) failedAttempts(key string) (out []int) {
	n.lock.Lock()
	defer n.lock.Unlock()
	for _, r := range n.reports {
		for _, f := range r.Failed {
			if f.Key == key {
				out = append(out, f.Attempt)
			}
		}
	}
	return out
}

func (n *testNode) migrationEvents() []MigrationEvent {
	n.lock.Lock()
	defer n.lock.Unlock()
	return append([]MigrationEvent(nil), n.events...)
}

func incrementCallback() MigrationCallback {
	return MigrationCallbackFunc(func(ctx context.Context, key string, value kvstore.Value) (kvstore.Value, error) {
		var v counterValue
		if err := json.Decode(value, &v); err != nil {
			return nil, err
		}
		v.Count++
		return json.Encode(v, false)
	})
}

func putCounters(t *testing.T, store *kvstore.MemoryStore, keys []string) {
	t.Helper()
	m, err := store.Map(testKeyspace, kvstore.AllLocal())
	require.NoError(t, err)
	for _, key := range keys {
		require.NoError(t, kvstore.NewTypedMap[counterValue](m).PutValue(context.Background(), key, counterValue{}))
	}
}

func counter(t *testing.T, store *kvstore.MemoryStore, key string) int {
	t.Helper()
	m, err := store.Map(testKeyspace, kvstore.AllLocal())
	require.NoError(t, err)
	v, found, err := kvstore.NewTypedMap[counterValue](m).GetValue(context.Background(), key)
	require.NoError(t, err)
	require.True(t, found)
	return v.Count
}

// localKeyIn returns the first key owned by the node in all topologies.
func localKeyIn(t *testing.T, cfg Config, node string, topologies ...[]string) string {
	t.Helper()
	c := &Coordinator{config: cfg}
	for i := range 1000 {
		key := fmt.Sprintf("key%03d", i)
		ok := true
		for _, nodes := range topologies {
			if distribution.PartitionOwners(nodes, cfg.Count)[c.PartitionFor(key)] != node {
				ok = false
			}
		}
		if ok {
			return key
		}
	}
	t.Fatal("no key found")
	return ""
}

func TestCoordinator_Migration(t *testing.T) {
	t.Parallel()
	cfg := NewConfig()
	cluster := distribution.NewMemoryCluster()
	store := kvstore.NewMemoryStore()

	var keys []string
	for i := range 50 {
		keys = append(keys, fmt.Sprintf("key%02d", i))
	}
	putCounters(t, store, keys)

	// Single node owns all partitions, all keys are processed
	node1 := newTestNode(t, cluster, store, "node1", cfg, incrementCallback())
	node1.start(t)
	assert.Eventually(t, func() bool {
		return node1.processedKeys() == 50
	}, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, node1.coord.LocalPartitions(), cfg.Count)
	for _, key := range keys {
		assert.Equal(t, 1, counter(t, store, key))
	}

	// The second node gains some partitions and processes keys of them
	node2 := newTestNode(t, cluster, store, "node2", cfg, incrementCallback())
	node2.start(t)
	assert.Eventually(t, func() bool {
		return len(node1.coord.LocalPartitions())+len(node2.coord.LocalPartitions()) == cfg.Count
	}, 5*time.Second, 10*time.Millisecond)

	var node2Keys []string
	for _, key := range keys {
		if node2.coord.IsLocalKey(key) {
			node2Keys = append(node2Keys, key)
		} else {
			assert.True(t, node1.coord.IsLocalKey(key))
		}
	}
	require.NotEmpty(t, node2Keys)
	assert.Eventually(t, func() bool {
		return node2.processedKeys() == len(node2Keys)
	}, 5*time.Second, 10*time.Millisecond)
	for _, key := range keys {
		if node2.coord.IsLocalKey(key) {
			assert.Equal(t, 2, counter(t, store, key), key)
		} else {
			assert.Equal(t, 1, counter(t, store, key), key)
		}
	}

	// Node1 has been notified about partitions moved to node2
	assert.Eventually(t, func() bool {
		for _, e := range node1.migrationEvents() {
			if e.OldOwner == "node1" && e.NewOwner == "node2" && e.Phase == MigrationCompleted {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
	events := node1.migrationEvents()
	started := 0
	completed := 0
	for _, e := range events {
		switch e.Phase {
		case MigrationStarted:
			started++
		case MigrationCompleted:
			completed++
		case MigrationFailed:
			assert.Fail(t, "unexpected failed migration", e.String())
		}
	}
	assert.Equal(t, started, completed)

	// Owner is the same on both nodes
	for p := range cfg.Count {
		assert.Equal(t, node1.coord.OwnerOf(p), node2.coord.OwnerOf(p))
	}
}

func TestCoordinator_RetryFailedKeys(t *testing.T) {
	t.Parallel()
	cfg := NewConfig()
	cluster := distribution.NewMemoryCluster()
	store := kvstore.NewMemoryStore()

	badKey := localKeyIn(t, cfg, "node1", []string{"node1"}, []string{"node1", "node2"}, []string{"node1", "node2", "node3"})
	putCounters(t, store, []string{badKey})

	// The callback fails twice, the third attempt succeeds
	lock := &sync.Mutex{}
	attempts := 0
	callback := MigrationCallbackFunc(func(ctx context.Context, key string, value kvstore.Value) (kvstore.Value, error) {
		if key == badKey {
			lock.Lock()
			defer lock.Unlock()
			attempts++
			if attempts <= 2 {
				return nil, errors.Errorf("failure %d", attempts)
			}
		}
		return incrementCallback().Process(ctx, key, value)
	})

	node1 := newTestNode(t, cluster, store, "node1", cfg, callback)
	node1.start(t)
	assert.Eventually(t, func() bool {
		return len(node1.failedAttempts(badKey)) == 1
	}, 5*time.Second, 10*time.Millisecond)

	// The key is retried on the next migration
	newTestNode(t, cluster, store, "node2", cfg, incrementCallback()).start(t)
	assert.Eventually(t, func() bool {
		return len(node1.failedAttempts(badKey)) == 2
	}, 5*time.Second, 10*time.Millisecond)

	newTestNode(t, cluster, store, "node3", cfg, incrementCallback()).start(t)
	assert.Eventually(t, func() bool {
		return node1.processedKeys() == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, []int{1, 2}, node1.failedAttempts(badKey))
	assert.Equal(t, 1, counter(t, store, badKey))
}

func TestCoordinator_GiveUpFailedKey(t *testing.T) {
	t.Parallel()
	cfg := NewConfig()
	cfg.MaxRetries = 1
	cluster := distribution.NewMemoryCluster()
	store := kvstore.NewMemoryStore()

	badKey := localKeyIn(t, cfg, "node1", []string{"node1"}, []string{"node1", "node2"}, []string{"node1", "node2", "node3"})
	goodKey := badKey + "-good"
	putCounters(t, store, []string{badKey, goodKey})

	callback := MigrationCallbackFunc(func(ctx context.Context, key string, value kvstore.Value) (kvstore.Value, error) {
		if key == badKey {
			panic(errors.New("unexpected value"))
		}
		return incrementCallback().Process(ctx, key, value)
	})

	// The failed key doesn't abort processing of other keys
	node1 := newTestNode(t, cluster, store, "node1", cfg, callback)
	node1.start(t)
	assert.Eventually(t, func() bool {
		return len(node1.failedAttempts(badKey)) == 1 && node1.processedKeys() == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, counter(t, store, goodKey))

	newTestNode(t, cluster, store, "node2", cfg, incrementCallback()).start(t)
	assert.Eventually(t, func() bool {
		return len(node1.failedAttempts(badKey)) == 2
	}, 5*time.Second, 10*time.Millisecond)

	// No more attempts
	newTestNode(t, cluster, store, "node3", cfg, incrementCallback()).start(t)
	assert.Eventually(t, func() bool {
		for _, e := range node1.migrationEvents() {
			if e.NewOwner == "node3" && e.Phase == MigrationCompleted {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []int{1, 2}, node1.failedAttempts(badKey))

	node1.d.DebugLogger().AssertJSONMessages(t, `
{"level":"warn","message":"key \"`+badKey+`\" of the keyspace \"cache\" failed, attempt 1: migration callback panic: unexpected value","component":"partition"}
{"level":"error","message":"key \"`+badKey+`\" of the keyspace \"cache\" failed 2 times, giving up: migration callback panic: unexpected value","component":"partition"}
`)
}

func TestCoordinator_Configuration(t *testing.T) {
	t.Parallel()
	cluster := distribution.NewMemoryCluster()
	store := kvstore.NewMemoryStore()

	n := newTestNode(t, cluster, store, "node1", NewConfig(), incrementCallback())

	// Duplicate keyspace
	err := n.coord.RegisterMigrationCallback(n.m, incrementCallback())
	require.Error(t, err)
	assert.Equal(t, `a migration callback for the keyspace "cache" is already registered`, err.Error())

	n.start(t)

	// Registration after start
	other, err := store.Map("other", n.coord)
	require.NoError(t, err)
	err = n.coord.RegisterMigrationCallback(other, incrementCallback())
	var cfgErr distribution.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.Error(t, n.coord.OnMigration(func(MigrationEvent) {}))
	require.Error(t, n.coord.Start(context.Background()))

	// Invalid config
	cfg := NewConfig()
	cfg.Count = 0
	_, err = NewCoordinator(n.node, cfg, n.d)
	require.Error(t, err)
	assert.Equal(t, `"count" must be between 1 and 65536, found 0`, err.Error())
}

func TestPartitionFor(t *testing.T) {
	t.Parallel()
	c := &Coordinator{config: NewConfig()}
	for i := range 100 {
		key := fmt.Sprintf("key%d", i)
		p := c.PartitionFor(key)
		assert.GreaterOrEqual(t, p, 0)
		assert.Less(t, p, 271)
		assert.Equal(t, p, c.PartitionFor(key))
	}
	assert.Equal(t, 271, c.PartitionCount())
}
