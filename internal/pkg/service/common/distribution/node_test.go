package distribution_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/dependencies"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/distribution"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/etcdhelper"
)

type eventsCollector struct {
	lock   *sync.Mutex
	events []string
}

func newEventsCollector() *eventsCollector {
	return &eventsCollector{lock: &sync.Mutex{}}
}

func (c *eventsCollector) observe(e distribution.MembershipEvent) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.events = append(c.events, e.String())
}

func (c *eventsCollector) all() []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]string(nil), c.events...)
}

func TestNode_MemoryCluster(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cluster := distribution.NewMemoryCluster()

	d1 := dependencies.NewMocked(t)
	d2 := dependencies.NewMocked(t)
	node1, err := distribution.NewNode("node1", "my-group", cluster, d1, distribution.WithAddress("10.0.0.1:8000"))
	require.NoError(t, err)
	node2, err := distribution.NewNode("node2", "my-group", cluster, d2)
	require.NoError(t, err)

	// Register observers
	collector1 := newEventsCollector()
	require.NoError(t, node1.Observe(collector1.observe))

	// Start node1
	require.NoError(t, node1.Start(ctx))
	assert.Equal(t, 1, node1.Size())
	assert.Equal(t, []string{`found a new node "node1"`}, collector1.all())

	// An observer cannot be registered after the start
	err = node1.Observe(collector1.observe)
	var cfgErr distribution.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, `cannot register an observer, the node "node1" has already been started`, err.Error())

	// The node cannot be started twice
	require.Error(t, node1.Start(ctx))

	// Start node2
	require.NoError(t, node2.Start(ctx))
	assert.Equal(t, 2, node2.Size())
	assert.Eventually(t, func() bool {
		return node1.Size() == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"node1", "node2"}, node1.Nodes())

	member, found := node2.Member("node1")
	require.True(t, found)
	assert.Equal(t, "10.0.0.1:8000", member.Address)

	// Change an attribute
	require.NoError(t, node2.SetAttribute(ctx, "state", "ready"))
	assert.Eventually(t, func() bool {
		m, found := node1.Member("node2")
		return found && m.Attributes["state"] == "ready"
	}, 5*time.Second, 10*time.Millisecond)

	// Shutdown node2
	d2.Process().Shutdown(ctx, errors.New("bye bye"))
	d2.Process().WaitForShutdown()
	assert.Eventually(t, func() bool {
		return node1.Size() == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"node1"}, cluster.Members())

	assert.Equal(t, []string{
		`found a new node "node1"`,
		`found a new node "node2"`,
		`the node "node2" attribute "state" changed`,
		`the node "node2" gone`,
	}, collector1.all())

	// Each key has an owner
	for i := range 10 {
		owner, err := node1.NodeFor(fmt.Sprintf("key%d", i))
		require.NoError(t, err)
		assert.Equal(t, "node1", owner)
	}

	d2.DebugLogger().AssertJSONMessages(t, `
{"level":"info","message":"exiting (bye bye)"}
{"level":"info","message":"received shutdown request","component":"distribution.my-group","node":"node2"}
{"level":"info","message":"unregistering the node \"node2\"","component":"distribution.my-group","node":"node2"}
{"level":"info","message":"the node \"node2\" unregistered","component":"distribution.my-group","node":"node2"}
{"level":"info","message":"shutdown done","component":"distribution.my-group","node":"node2"}
{"level":"info","message":"received shutdown request","component":"distribution.my-group.listeners","node":"node2"}
{"level":"info","message":"shutdown done","component":"distribution.my-group.listeners","node":"node2"}
{"level":"info","message":"exited"}
`)
}

func TestNode_AttributeChanges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cluster := distribution.NewMemoryCluster()

	d1 := dependencies.NewMocked(t)
	d2 := dependencies.NewMocked(t)
	node1, err := distribution.NewNode("node1", "my-group", cluster, d1)
	require.NoError(t, err)
	node2, err := distribution.NewNode("node2", "my-group", cluster, d2, distribution.WithAttributes(map[string]string{"a": "1", "b": "2"}))
	require.NoError(t, err)

	collector := newEventsCollector()
	require.NoError(t, node1.Observe(func(e distribution.MembershipEvent) {
		if e.Type == distribution.MemberAttributeChanged {
			collector.observe(e)
		}
	}))
	require.NoError(t, node1.Start(ctx))
	require.NoError(t, node2.Start(ctx))

	// One event per changed attribute, the unchanged attribute "a" is skipped
	require.NoError(t, node2.SetAttribute(ctx, "b", "3"))
	require.NoError(t, node2.SetAttribute(ctx, "c", "4"))
	assert.Eventually(t, func() bool {
		return len(collector.all()) == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{
		`the node "node2" attribute "b" changed`,
		`the node "node2" attribute "c" changed`,
	}, collector.all())
}

func TestNode_InvalidConfig(t *testing.T) {
	t.Parallel()
	d := dependencies.NewMocked(t)
	cluster := distribution.NewMemoryCluster()

	_, err := distribution.NewNode("", "my-group", cluster, d)
	require.Error(t, err)
	assert.Equal(t, "node ID cannot be empty", err.Error())

	_, err = distribution.NewNode("node1", "", cluster, d)
	require.Error(t, err)
	assert.Equal(t, "group cannot be empty", err.Error())
}

func TestNode_Etcd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	etcdClient := etcdhelper.ClusterForTest(t)
	opts := []distribution.NodeOption{distribution.WithEventsGroupInterval(0)}
	d1 := dependencies.NewMocked(t, dependencies.WithEtcdClient(etcdClient), dependencies.WithNodeID("node1"), dependencies.WithEnabledDistribution(opts...))
	d2 := dependencies.NewMocked(t, dependencies.WithEtcdClient(etcdClient), dependencies.WithNodeID("node2"), dependencies.WithEnabledDistribution(opts...))
	node1 := d1.DistributionNode()
	node2 := d2.DistributionNode()

	collector := newEventsCollector()
	require.NoError(t, node1.Observe(collector.observe))
	listener := node1.OnChangeListener()

	require.NoError(t, node1.Start(ctx))
	require.NoError(t, node2.Start(ctx))
	assert.Eventually(t, func() bool {
		return node1.Size() == 2 && node2.Size() == 2
	}, 10*time.Second, 10*time.Millisecond)

	// Listener receives the changes
	var messages []string
	assert.Eventually(t, func() bool {
		select {
		case events := <-listener.C:
			messages = append(messages, events.Messages())
		default:
		}
		return strings.HasSuffix(strings.Join(messages, "; "), `found a new node "node2"`)
	}, 10*time.Second, 10*time.Millisecond)
	assert.Equal(t, `found a new node "node1"; found a new node "node2"`, strings.Join(messages, "; "))

	etcdhelper.AssertKVsString(t, etcdClient, `
<<<<<
runtime/distribution/group/my-group/nodes/node1 (lease)
-----
{
  "id": "node1",
  "startedAt": "%s"
}
>>>>>

<<<<<
runtime/distribution/group/my-group/nodes/node2 (lease)
-----
{
  "id": "node2",
  "startedAt": "%s"
}
>>>>>
`)

	// Shutdown node1, node2 observes the change
	d1.Process().Shutdown(ctx, errors.New("bye bye"))
	d1.Process().WaitForShutdown()
	assert.Eventually(t, func() bool {
		return node2.Size() == 1
	}, 10*time.Second, 10*time.Millisecond)
	etcdhelper.AssertKeys(t, etcdClient, []string{"runtime/distribution/group/my-group/nodes/node2"})

	assert.Equal(t, []string{
		`found a new node "node1"`,
		`found a new node "node2"`,
	}, collector.all())
}
