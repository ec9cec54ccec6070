package distribution_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/dependencies"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/distribution"
)

func TestListener_GroupEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cluster := distribution.NewMemoryCluster()
	interval := 5 * time.Second

	clk := clock.NewMock()
	d1 := dependencies.NewMocked(t, dependencies.WithClock(clk))
	node1, err := distribution.NewNode("node1", "my-group", cluster, d1, distribution.WithEventsGroupInterval(interval))
	require.NoError(t, err)
	listener := node1.OnChangeListener()
	require.NoError(t, node1.Start(ctx))

	// Two nodes join within the interval
	for _, id := range []string{"node2", "node3"} {
		d := dependencies.NewMocked(t, dependencies.WithClock(clk))
		node, err := distribution.NewNode(id, "my-group", cluster, d)
		require.NoError(t, err)
		require.NoError(t, node.Start(ctx))
	}
	assert.Eventually(t, func() bool {
		return node1.Size() == 3
	}, 5*time.Second, 10*time.Millisecond)

	// Nothing is sent before the interval elapses
	select {
	case events := <-listener.C:
		assert.Fail(t, "unexpected events", events.Messages())
	case <-time.After(50 * time.Millisecond):
	}

	// All changes are grouped
	var events distribution.Events
	assert.Eventually(t, func() bool {
		clk.Add(interval)
		select {
		case events = <-listener.C:
			return true
		case <-time.After(10 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, `found a new node "node1"; found a new node "node2"; found a new node "node3"`, events.Messages())
	assert.Equal(t, distribution.EventNodeAdded, events[2].Type)
	assert.Equal(t, "node3", events[2].NodeID)

	// No events after Stop, the channel is closed
	listener.Stop()
	assert.Eventually(t, func() bool {
		_, ok := <-listener.C
		return !ok
	}, 5*time.Second, 10*time.Millisecond)
}
