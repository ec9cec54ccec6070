// Package dependencies provides dependencies of the filesync node.
//
// The [ServiceScope] is built from the etcd backends by [NewServiceScope].
// The [NewMockedCluster] builds more nodes connected by in-memory backends, it is used in tests.
//
// Common dependencies are in the [pkg/github.com/keboola/go-cluster-filesync/internal/pkg/service/common/dependencies] package.
package dependencies

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/spf13/afero"

	"github.com/keboola/go-cluster-filesync/internal/pkg/log"
	commonDeps "github.com/keboola/go-cluster-filesync/internal/pkg/service/common/dependencies"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/distlock"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/kvstore"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/partition"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/servicectx"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/filesync/config"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/filesync/distributor"
	"github.com/keboola/go-cluster-filesync/internal/pkg/telemetry"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

// ServiceScope contains all dependencies of the filesync node.
type ServiceScope interface {
	commonDeps.BaseScope
	commonDeps.DistributionScope
	commonDeps.PubSubScope
	Config() config.Config
	Filesystem() afero.Fs
	Locker() distlock.Locker
	TransfersMap() kvstore.Map
	PartitionCoordinator() *partition.Coordinator
	Distributor() *distributor.Coordinator
}

// mapFactory creates a map of the keyspace in the used store.
type mapFactory func(keyspace string, owner kvstore.Ownership) (kvstore.Map, error)

type serviceScope struct {
	commonDeps.BaseScope
	commonDeps.DistributionScope
	commonDeps.PubSubScope
	config      config.Config
	fs          afero.Fs
	locker      distlock.Locker
	transfers   kvstore.Map
	partitions  *partition.Coordinator
	distributor *distributor.Coordinator
}

type parentScopes struct {
	commonDeps.BaseScope
	commonDeps.EtcdClientScope
}

// NewServiceScope connects the node to the etcd cluster and starts it.
func NewServiceScope(ctx context.Context, cfg config.Config, proc *servicectx.Process, logger log.Logger, tel telemetry.Telemetry, fs afero.Fs) (v ServiceScope, err error) {
	ctx, span := tel.Tracer().Start(ctx, "keboola.go.filesync.dependencies.NewServiceScope")
	defer span.End(&err)

	base := commonDeps.NewBaseScope(logger, tel, clock.New(), proc)

	etcdScope, err := commonDeps.NewEtcdClientScope(ctx, base, cfg.Etcd)
	if err != nil {
		return nil, err
	}
	parent := parentScopes{BaseScope: base, EtcdClientScope: etcdScope}

	distScope, err := commonDeps.NewDistributionScope(ctx, parent, cfg.NodeID, cfg.Group, cfg.Distribution)
	if err != nil {
		return nil, err
	}

	pubSubScope, err := commonDeps.NewPubSubScope(ctx, parent, cfg.NodeID, cfg.PubSub)
	if err != nil {
		return nil, err
	}

	lockScope, err := commonDeps.NewDistributedLockScope(ctx, cfg.DistLock, parent)
	if err != nil {
		return nil, err
	}

	newMap := func(keyspace string, owner kvstore.Ownership) (kvstore.Map, error) {
		return kvstore.NewEtcdMap(etcdScope.EtcdClient(), keyspace, owner)
	}

	d, err := newServiceScope(ctx, cfg, base, distScope, pubSubScope, lockScope.DistributedLockProvider(), newMap, fs)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// newServiceScope wires the components and starts the node.
// The distributor is created last, so it is stopped first on shutdown.
func newServiceScope(
	ctx context.Context,
	cfg config.Config,
	base commonDeps.BaseScope,
	distScope commonDeps.DistributionScope,
	pubSubScope commonDeps.PubSubScope,
	locker distlock.Locker,
	newMap mapFactory,
	fs afero.Fs,
) (*serviceScope, error) {
	d := &serviceScope{
		BaseScope:         base,
		DistributionScope: distScope,
		PubSubScope:       pubSubScope,
		config:            cfg,
		fs:                fs,
		locker:            locker,
	}

	var err error
	d.partitions, err = partition.NewCoordinator(d.DistributionNode(), cfg.Partition, d)
	if err != nil {
		return nil, err
	}

	d.transfers, err = newMap(distributor.TransfersKeyspace, d.partitions)
	if err != nil {
		return nil, err
	}

	if err := d.partitions.RegisterMigrationCallback(d.transfers, distributor.NewRecordOwnerCallback(cfg.NodeID)); err != nil {
		return nil, err
	}

	if err := d.DistributionNode().Start(ctx); err != nil {
		return nil, errors.PrefixError(err, "cannot start the cluster membership")
	}

	if err := d.partitions.Start(ctx); err != nil {
		return nil, err
	}

	d.distributor, err = distributor.New(d, cfg.Distributor)
	if err != nil {
		return nil, err
	}

	return d, nil
}

func (v *serviceScope) Config() config.Config {
	return v.config
}

func (v *serviceScope) Filesystem() afero.Fs {
	return v.fs
}

func (v *serviceScope) Locker() distlock.Locker {
	return v.locker
}

func (v *serviceScope) TransfersMap() kvstore.Map {
	return v.transfers
}

func (v *serviceScope) PartitionCoordinator() *partition.Coordinator {
	return v.partitions
}

func (v *serviceScope) Distributor() *distributor.Coordinator {
	return v.distributor
}
