// Package dependencies builds the shared infrastructure of a cluster node.
//
// Components declare a private "dependencies" interface with the methods they use,
// the scopes below implement these interfaces:
//   - [BaseScope] logger, telemetry, clock and the process, see [NewBaseScope].
//   - [EtcdClientScope] etcd connection and values encoding, see [NewEtcdClientScope].
//   - [DistributionScope] local member of the cluster membership, see [NewDistributionScope].
//   - [DistributedLockScope] cluster-wide mutexes, see [NewDistributedLockScope].
//   - [PubSubScope] topics shared by all nodes, see [NewPubSubScope].
//
// [NewMocked] connects all scopes to a test etcd cluster.
// The filesync node scope is in the [pkg/github.com/keboola/go-cluster-filesync/internal/pkg/service/filesync/dependencies] package.
package dependencies

import (
	"github.com/benbjohnson/clock"
	etcdPkg "go.etcd.io/etcd/client/v3"

	"github.com/keboola/go-cluster-filesync/internal/pkg/log"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/distlock"
	distributionPkg "github.com/keboola/go-cluster-filesync/internal/pkg/service/common/distribution"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/etcdop/serde"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/pubsub"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/servicectx"
	"github.com/keboola/go-cluster-filesync/internal/pkg/telemetry"
)

// BaseScope contains basic dependencies.
type BaseScope interface {
	Logger() log.Logger
	Telemetry() telemetry.Telemetry
	Clock() clock.Clock
	Process() *servicectx.Process
}

// EtcdClientScope provides the etcd connection, keys are prefixed by the configured namespace.
type EtcdClientScope interface {
	EtcdClient() *etcdPkg.Client
	EtcdSerde() *serde.Serde
}

// DistributionScope provides the local member of the cluster.
type DistributionScope interface {
	DistributionNode() *distributionPkg.Node
}

// DistributedLockScope provides mutexes shared by all nodes.
type DistributedLockScope interface {
	DistributedLockProvider() *distlock.Provider
}

// PubSubScope provides the publish/subscribe bus.
type PubSubScope interface {
	PubSub() pubsub.Bus
}

// Mocked dependencies of a node connected to a test etcd cluster.
type Mocked interface {
	BaseScope
	EtcdClientScope
	DistributionScope
	DistributedLockScope
	PubSubScope

	MockControl
}

// MockControl exposes test doubles.
type MockControl interface {
	NodeID() string
	DebugLogger() log.DebugLogger
	TestTelemetry() telemetry.ForTest
	TestEtcdClient() *etcdPkg.Client
}
