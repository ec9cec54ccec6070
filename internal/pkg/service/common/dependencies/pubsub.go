package dependencies

import (
	"context"

	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/pubsub"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

// pubSubScope implements PubSubScope interface.
type pubSubScope struct {
	bus pubsub.Bus
}

type pubSubScopeDeps interface {
	BaseScope
	EtcdClientScope
}

func NewPubSubScope(ctx context.Context, d pubSubScopeDeps, nodeID string, cfg pubsub.Config) (PubSubScope, error) {
	return newPubSubScope(ctx, d, nodeID, cfg)
}

func newPubSubScope(ctx context.Context, d pubSubScopeDeps, nodeID string, cfg pubsub.Config) (v *pubSubScope, err error) {
	ctx, span := d.Telemetry().Tracer().Start(ctx, "keboola.go.common.dependencies.NewPubSubScope")
	defer span.End(&err)

	bus, err := pubsub.NewEtcdBus(ctx, nodeID, cfg, d)
	if err != nil {
		return nil, err
	}

	return &pubSubScope{bus: bus}, nil
}

func (v *pubSubScope) check() {
	if v == nil {
		panic(errors.New("dependencies pub/sub scope is not initialized"))
	}
}

func (v *pubSubScope) PubSub() pubsub.Bus {
	v.check()
	return v.bus
}

// NewPubSubScopeFromBus wraps an existing bus, for example the MemoryBus.
func NewPubSubScopeFromBus(bus pubsub.Bus) PubSubScope {
	return &pubSubScope{bus: bus}
}
