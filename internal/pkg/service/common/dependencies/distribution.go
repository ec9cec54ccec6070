package dependencies

import (
	"context"

	distributionPkg "github.com/keboola/go-cluster-filesync/internal/pkg/service/common/distribution"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

// distributionScope implements DistributionScope interface.
type distributionScope struct {
	node *distributionPkg.Node
}

type distributionScopeDeps interface {
	BaseScope
	EtcdClientScope
}

// NewDistributionScope creates an unstarted etcd based node, observers must be registered before the Node.Start.
func NewDistributionScope(ctx context.Context, d distributionScopeDeps, nodeID, group string, cfg distributionPkg.Config, opts ...distributionPkg.NodeOption) (DistributionScope, error) {
	return newDistributionScope(ctx, d, nodeID, group, cfg, opts...)
}

func newDistributionScope(ctx context.Context, d distributionScopeDeps, nodeID, group string, cfg distributionPkg.Config, opts ...distributionPkg.NodeOption) (v *distributionScope, err error) {
	_, span := d.Telemetry().Tracer().Start(ctx, "keboola.go.common.dependencies.NewDistributionScope")
	defer span.End(&err)

	backend := distributionPkg.NewEtcdBackend(d.Logger().WithComponent("distribution."+group), d.EtcdClient(), group, cfg.TTLSeconds)
	opts = append([]distributionPkg.NodeOption{distributionPkg.WithConfig(cfg)}, opts...)
	node, err := distributionPkg.NewNode(nodeID, group, backend, d, opts...)
	if err != nil {
		return nil, err
	}

	return &distributionScope{node: node}, nil
}

func (v *distributionScope) check() {
	if v == nil {
		panic(errors.New("dependencies distribution scope is not initialized"))
	}
}

func (v *distributionScope) DistributionNode() *distributionPkg.Node {
	v.check()
	return v.node
}

// NewDistributionScopeFromNode wraps an existing node, for example a node with an in-memory backend.
func NewDistributionScopeFromNode(node *distributionPkg.Node) DistributionScope {
	return &distributionScope{node: node}
}
