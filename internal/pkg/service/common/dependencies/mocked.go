package dependencies

import (
	"context"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	etcdPkg "go.etcd.io/etcd/client/v3"

	"github.com/keboola/go-cluster-filesync/internal/pkg/idgenerator"
	"github.com/keboola/go-cluster-filesync/internal/pkg/log"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/distlock"
	distributionPkg "github.com/keboola/go-cluster-filesync/internal/pkg/service/common/distribution"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/pubsub"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/servicectx"
	"github.com/keboola/go-cluster-filesync/internal/pkg/telemetry"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/etcdhelper"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/testhelper"
)

const (
	distributionGroup = "my-group"
)

// mocked dependencies container implements Mocked interface.
type mocked struct {
	*baseScope
	*etcdClientScope
	*distributionScope
	*distributedLockScope
	*pubSubScope
	t      *testing.T
	config *MockedConfig
}

type MockedConfig struct {
	enableEtcdClient       bool
	enableDistribution     bool
	enableDistributedLocks bool
	enablePubSub           bool

	ctx         context.Context
	clock       clock.Clock
	telemetry   telemetry.ForTest
	debugLogger log.DebugLogger
	nodeID      string

	etcdClient         *etcdPkg.Client
	distributionGroup  string
	distributionConfig distributionPkg.Config
	distributionOpts   []distributionPkg.NodeOption
	distlockConfig     distlock.Config
	pubSubConfig       pubsub.Config
}

type MockedOption func(c *MockedConfig)

func WithEnabledEtcdClient() MockedOption {
	return func(c *MockedConfig) {
		c.enableEtcdClient = true
	}
}

// WithEtcdClient shares the etcd client between more mocked dependencies, it is used to simulate more nodes.
func WithEtcdClient(v *etcdPkg.Client) MockedOption {
	return func(c *MockedConfig) {
		WithEnabledEtcdClient()(c)
		c.etcdClient = v
	}
}

// WithEnabledDistribution creates an unstarted distribution node, see DistributionNode.
func WithEnabledDistribution(opts ...distributionPkg.NodeOption) MockedOption {
	return func(c *MockedConfig) {
		WithEnabledEtcdClient()(c)
		c.enableDistribution = true
		c.distributionOpts = append(c.distributionOpts, opts...)
	}
}

func WithDistributionGroup(v string) MockedOption {
	return func(c *MockedConfig) {
		c.distributionGroup = v
	}
}

func WithDistributionConfig(v distributionPkg.Config) MockedOption {
	return func(c *MockedConfig) {
		c.distributionConfig = v
	}
}

func WithEnabledDistributedLocks() MockedOption {
	return func(c *MockedConfig) {
		WithEnabledEtcdClient()(c)
		c.enableDistributedLocks = true
	}
}

func WithEnabledPubSub() MockedOption {
	return func(c *MockedConfig) {
		WithEnabledEtcdClient()(c)
		c.enablePubSub = true
	}
}

func WithCtx(v context.Context) MockedOption {
	return func(c *MockedConfig) {
		c.ctx = v
	}
}

func WithClock(v clock.Clock) MockedOption {
	return func(c *MockedConfig) {
		c.clock = v
	}
}

func WithDebugLogger(v log.DebugLogger) MockedOption {
	return func(c *MockedConfig) {
		c.debugLogger = v
	}
}

func WithNodeID(v string) MockedOption {
	return func(c *MockedConfig) {
		c.nodeID = v
	}
}

func WithTelemetry(tel telemetry.ForTest) MockedOption {
	return func(c *MockedConfig) {
		c.telemetry = tel
	}
}

func newMockedConfig(t *testing.T, opts []MockedOption) *MockedConfig {
	t.Helper()

	cfg := &MockedConfig{
		ctx:                context.Background(),
		clock:              clock.New(),
		nodeID:             "node-" + idgenerator.Random(5),
		distributionGroup:  distributionGroup,
		distributionConfig: distributionPkg.NewConfig(),
		distlockConfig:     distlock.NewConfig(),
		pubSubConfig:       pubsub.NewConfig(),
	}

	// Apply options
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.telemetry == nil {
		cfg.telemetry = telemetry.NewForTest(t)
	}

	if cfg.debugLogger == nil {
		cfg.debugLogger = log.NewDebugLogger()
		cfg.debugLogger.ConnectTo(testhelper.VerboseStdout())
	}

	return cfg
}

func NewMocked(t *testing.T, opts ...MockedOption) Mocked {
	t.Helper()

	// Default values
	cfg := newMockedConfig(t, opts)
	logger := cfg.debugLogger

	// Cancel context after the test
	var cancel context.CancelFunc
	cfg.ctx, cancel = context.WithCancel(cfg.ctx)
	t.Cleanup(func() {
		cancel()
	})

	// Create service process
	proc := servicectx.NewForTest(t, logger)

	// Create dependencies container
	var err error
	d := &mocked{config: cfg, t: t}
	d.baseScope = newBaseScope(logger, cfg.telemetry, cfg.clock, proc)

	if cfg.enableEtcdClient {
		if cfg.etcdClient == nil {
			cfg.etcdClient = etcdhelper.ClusterForTest(t)
		}
		d.etcdClientScope = newEtcdClientScopeFromClient(cfg.etcdClient)
	}

	if cfg.enableDistributedLocks {
		d.distributedLockScope, err = newDistributedLockScope(cfg.ctx, cfg.distlockConfig, d)
		require.NoError(t, err)
	}

	if cfg.enablePubSub {
		d.pubSubScope, err = newPubSubScope(cfg.ctx, d, cfg.nodeID, cfg.pubSubConfig)
		require.NoError(t, err)
	}

	if cfg.enableDistribution {
		d.distributionScope, err = newDistributionScope(cfg.ctx, d, cfg.nodeID, cfg.distributionGroup, cfg.distributionConfig, cfg.distributionOpts...)
		require.NoError(t, err)
	}

	// Clear logs
	cfg.debugLogger.Truncate()

	return d
}

func (v *mocked) NodeID() string {
	return v.config.nodeID
}

func (v *mocked) DebugLogger() log.DebugLogger {
	return v.config.debugLogger
}

func (v *mocked) TestTelemetry() telemetry.ForTest {
	return v.config.telemetry
}

// TestEtcdClient returns the etcd client for tests, for example to check etcd state.
func (v *mocked) TestEtcdClient() *etcdPkg.Client {
	if !v.config.enableEtcdClient {
		panic(errors.New("etcd is not enabled in the mocked dependencies"))
	}
	return v.config.etcdClient
}
