package pubsub_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/go-cluster-filesync/internal/pkg/log"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/dependencies"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/pubsub"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/etcdhelper"
)

type testValue struct {
	Seq  int    `json:"seq"`
	Data []byte `json:"data"`
}

type received struct {
	lock *sync.Mutex
	msgs []string
}

func newReceived() *received {
	return &received{lock: &sync.Mutex{}}
}

func (r *received) add(s string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.msgs = append(r.msgs, s)
}

func (r *received) all() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.msgs...)
}

func TestMemoryBus(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := pubsub.NewMemoryBroker()
	testBus(t, broker.NewBus(ctx, "node1"), broker.NewBus(ctx, "node2"))
}

func TestEtcdBus(t *testing.T) {
	t.Parallel()

	etcdClient := etcdhelper.ClusterForTest(t)
	d1 := dependencies.NewMocked(t, dependencies.WithEtcdClient(etcdClient), dependencies.WithNodeID("node1"), dependencies.WithEnabledPubSub())
	d2 := dependencies.NewMocked(t, dependencies.WithEtcdClient(etcdClient), dependencies.WithNodeID("node2"), dependencies.WithEnabledPubSub())
	testBus(t, d1.PubSub(), d2.PubSub())

	// Published messages are deleted
	etcdhelper.AssertKeys(t, etcdClient, nil)
}

func testBus(t *testing.T, bus1, bus2 pubsub.Bus) {
	t.Helper()
	ctx := context.Background()

	assert.Equal(t, "node1", bus1.NodeID())
	assert.Equal(t, "node2", bus2.NodeID())

	t.Run("fan-out", func(t *testing.T) {
		// Both nodes subscribe, the publisher receives its own messages too
		r1 := newReceived()
		r2 := newReceived()
		handler := func(r *received) pubsub.Handler {
			return func(ctx context.Context, msg pubsub.Message) {
				var v testValue
				assert.NoError(t, msg.Decode(&v))
				assert.Equal(t, "fan-out", msg.Topic)
				assert.NotEmpty(t, msg.ID)
				r.add(fmt.Sprintf("%s:%d:%s", msg.Publisher, v.Seq, string(v.Data)))
			}
		}
		sub1, err := bus1.Subscribe("fan-out", handler(r1))
		require.NoError(t, err)
		defer sub1.Unsubscribe()
		sub2, err := bus2.Subscribe("fan-out", handler(r2))
		require.NoError(t, err)
		defer sub2.Unsubscribe()

		// Per-publisher order is preserved
		var expected []string
		for i := range 5 {
			require.NoError(t, bus1.Publish(ctx, "fan-out", testValue{Seq: i, Data: []byte("foo")}))
			expected = append(expected, fmt.Sprintf("node1:%d:foo", i))
		}

		assert.Eventually(t, func() bool {
			return len(r1.all()) == 5 && len(r2.all()) == 5
		}, 10*time.Second, 10*time.Millisecond)
		assert.Equal(t, expected, r1.all())
		assert.Equal(t, expected, r2.all())
	})

	t.Run("self filter", func(t *testing.T) {
		r1 := newReceived()
		sub, err := bus1.Subscribe("self", func(ctx context.Context, msg pubsub.Message) {
			if msg.IsFrom(bus1.NodeID()) {
				return
			}
			r1.add(msg.Publisher)
		})
		require.NoError(t, err)
		defer sub.Unsubscribe()

		require.NoError(t, bus1.Publish(ctx, "self", testValue{Seq: 1}))
		require.NoError(t, bus2.Publish(ctx, "self", testValue{Seq: 2}))
		assert.Eventually(t, func() bool {
			return len(r1.all()) == 1
		}, 10*time.Second, 10*time.Millisecond)
		assert.Equal(t, []string{"node2"}, r1.all())
	})

	t.Run("topics are isolated", func(t *testing.T) {
		r := newReceived()
		sub, err := bus2.Subscribe("topic-a", func(ctx context.Context, msg pubsub.Message) {
			r.add(msg.Topic)
		})
		require.NoError(t, err)
		defer sub.Unsubscribe()

		require.NoError(t, bus1.Publish(ctx, "topic-b", testValue{}))
		require.NoError(t, bus1.Publish(ctx, "topic-a", testValue{}))
		assert.Eventually(t, func() bool {
			return len(r.all()) == 1
		}, 10*time.Second, 10*time.Millisecond)
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, []string{"topic-a"}, r.all())
	})

	t.Run("unsubscribe", func(t *testing.T) {
		r := newReceived()
		sub, err := bus2.Subscribe("unsubscribe", func(ctx context.Context, msg pubsub.Message) {
			r.add(msg.ID)
		})
		require.NoError(t, err)

		require.NoError(t, bus1.Publish(ctx, "unsubscribe", testValue{}))
		assert.Eventually(t, func() bool {
			return len(r.all()) == 1
		}, 10*time.Second, 10*time.Millisecond)

		sub.Unsubscribe()
		time.Sleep(50 * time.Millisecond)
		require.NoError(t, bus1.Publish(ctx, "unsubscribe", testValue{}))
		time.Sleep(100 * time.Millisecond)
		assert.Len(t, r.all(), 1)
	})

	t.Run("typed topic", func(t *testing.T) {
		topic1 := pubsub.NewTopic[testValue](bus1, "typed", log.NewNopLogger())
		topic2 := pubsub.NewTopic[testValue](bus2, "typed", log.NewNopLogger())
		assert.Equal(t, "typed", topic1.Name())
		assert.Equal(t, "node1", topic1.NodeID())

		r := newReceived()
		sub, err := topic2.Subscribe(func(ctx context.Context, msg pubsub.TypedMessage[testValue]) {
			r.add(fmt.Sprintf("%s:%d:%v", msg.Publisher, msg.Value.Seq, msg.IsFrom("node2")))
		})
		require.NoError(t, err)
		defer sub.Unsubscribe()

		// Invalid payload is skipped
		require.NoError(t, bus1.Publish(ctx, "typed", "not an object"))
		require.NoError(t, topic1.Publish(ctx, testValue{Seq: 123}))
		require.NoError(t, topic2.Publish(ctx, testValue{Seq: 456}))
		assert.Eventually(t, func() bool {
			return len(r.all()) == 2
		}, 10*time.Second, 10*time.Millisecond)
		assert.Equal(t, []string{"node1:123:false", "node2:456:true"}, r.all())
	})

	t.Run("empty topic", func(t *testing.T) {
		require.Error(t, bus1.Publish(ctx, "", testValue{}))
		_, err := bus1.Subscribe("", func(ctx context.Context, msg pubsub.Message) {})
		require.Error(t, err)
	})
}
