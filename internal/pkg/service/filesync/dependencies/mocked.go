package dependencies

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/c2h5oh/datasize"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/keboola/go-cluster-filesync/internal/pkg/log"
	commonDeps "github.com/keboola/go-cluster-filesync/internal/pkg/service/common/dependencies"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/distlock"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/distribution"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/kvstore"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/pubsub"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/servicectx"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/filesync/config"
	"github.com/keboola/go-cluster-filesync/internal/pkg/telemetry"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/testhelper"
)

// Mocked is one node of the MockedCluster.
type Mocked interface {
	ServiceScope
	DebugLogger() log.DebugLogger
	TestTelemetry() telemetry.ForTest
	// ShutdownNode stops the node, as on the process termination.
	ShutdownNode()
}

// MockedCluster is a simulated cluster, nodes are connected by in-memory backends.
type MockedCluster struct {
	Members *distribution.MemoryCluster
	Broker  *pubsub.MemoryBroker
	Locks   *distlock.MemoryProvider
	Store   *kvstore.MemoryStore
	Nodes   []Mocked
}

type mocked struct {
	*serviceScope
	debugLogger log.DebugLogger
	telemetry   telemetry.ForTest
	proc        *servicectx.Process
}

type MockedOption func(c *mockedConfig)

type mockedConfig struct {
	clock  clock.Clock
	config func(nodeID string, cfg *config.Config)
	fs     func(nodeID string) afero.Fs
}

// WithConfig modifies the configuration of each node.
func WithConfig(fn func(nodeID string, cfg *config.Config)) MockedOption {
	return func(c *mockedConfig) {
		c.config = fn
	}
}

// WithFilesystem sets filesystem of each node, by default each node has its own in-memory filesystem.
func WithFilesystem(fn func(nodeID string) afero.Fs) MockedOption {
	return func(c *mockedConfig) {
		c.fs = fn
	}
}

func WithClock(v clock.Clock) MockedOption {
	return func(c *mockedConfig) {
		c.clock = v
	}
}

// NewMockedConfig returns the configuration of a mocked node, with short timeouts and small chunks.
func NewMockedConfig(nodeID string) config.Config {
	cfg := config.New()
	cfg.NodeID = nodeID
	cfg.Etcd.Endpoint = "memory"
	cfg.Distribution.EventsGroupInterval = 0
	cfg.Partition.Count = 16
	cfg.Distributor.ChunkSize = 16 * datasize.B
	cfg.Distributor.SendAckTimeout = 5 * time.Second
	cfg.Distributor.ReceiptAckTimeout = 10 * time.Second
	cfg.Distributor.LockAcquireTimeout = 100 * time.Millisecond
	cfg.Distributor.ChunkOfferTimeout = time.Second
	cfg.Distributor.ChunkWaitTimeout = 5 * time.Second
	cfg.Distributor.TargetDir = "/received"
	return cfg
}

// NewMockedCluster creates and starts n nodes, with IDs "node1" ... "nodeN".
// It returns when all nodes see the whole cluster.
func NewMockedCluster(t *testing.T, n int, opts ...MockedOption) *MockedCluster {
	t.Helper()

	mc := &mockedConfig{
		clock: clock.New(),
		fs: func(string) afero.Fs {
			return afero.NewMemMapFs()
		},
	}
	for _, o := range opts {
		o(mc)
	}

	cluster := &MockedCluster{
		Members: distribution.NewMemoryCluster(),
		Broker:  pubsub.NewMemoryBroker(),
		Locks:   distlock.NewMemoryProvider(),
		Store:   kvstore.NewMemoryStore(),
	}

	for i := range n {
		cluster.AddNode(t, fmt.Sprintf("node%d", i+1), mc)
	}

	require.Eventually(t, func() bool {
		for _, node := range cluster.Nodes {
			if node.DistributionNode().Size() != len(cluster.Nodes) {
				return false
			}
		}
		return true
	}, 10*time.Second, 10*time.Millisecond, "nodes did not see the whole cluster")

	return cluster
}

// AddNode creates and starts a new node of the cluster.
func (c *MockedCluster) AddNode(t *testing.T, nodeID string, mc *mockedConfig) Mocked {
	t.Helper()

	cfg := NewMockedConfig(nodeID)
	if mc.config != nil {
		mc.config(nodeID, &cfg)
	}

	// Bus subscriptions end after the process shutdown
	busCtx, busCancel := context.WithCancel(context.Background())
	t.Cleanup(busCancel)

	debugLogger := log.NewDebugLogger()
	debugLogger.ConnectTo(testhelper.VerboseStdout())
	var logger log.Logger = debugLogger

	tel := telemetry.NewForTest(t)
	proc := servicectx.NewForTest(t, logger)
	base := commonDeps.NewBaseScope(logger, tel, mc.clock, proc)

	node, err := distribution.NewNode(nodeID, cfg.Group, c.Members, base, distribution.WithConfig(cfg.Distribution))
	require.NoError(t, err)

	newMap := func(keyspace string, owner kvstore.Ownership) (kvstore.Map, error) {
		return c.Store.Map(keyspace, owner)
	}

	d, err := newServiceScope(
		context.Background(),
		cfg,
		base,
		commonDeps.NewDistributionScopeFromNode(node),
		commonDeps.NewPubSubScopeFromBus(c.Broker.NewBus(busCtx, nodeID)),
		c.Locks,
		newMap,
		mc.fs(nodeID),
	)
	require.NoError(t, err)

	m := &mocked{serviceScope: d, debugLogger: debugLogger, telemetry: tel, proc: proc}
	c.Nodes = append(c.Nodes, m)
	return m
}

// Node returns the node by the index, starting from 0.
func (c *MockedCluster) Node(i int) Mocked {
	return c.Nodes[i]
}

func (v *mocked) DebugLogger() log.DebugLogger {
	return v.debugLogger
}

func (v *mocked) TestTelemetry() telemetry.ForTest {
	return v.telemetry
}

func (v *mocked) ShutdownNode() {
	v.proc.Shutdown(context.Background(), nil)
	v.proc.WaitForShutdown()
}
