package dependencies

import (
	"context"

	etcdPkg "go.etcd.io/etcd/client/v3"

	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/etcdclient"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/etcdop/serde"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

// etcdClientScope implements EtcdClientScope interface.
type etcdClientScope struct {
	client *etcdPkg.Client
	serde  *serde.Serde
}

func NewEtcdClientScope(ctx context.Context, d BaseScope, cfg etcdclient.Config) (EtcdClientScope, error) {
	return newEtcdClientScope(ctx, d, cfg)
}

func newEtcdClientScope(ctx context.Context, d BaseScope, cfg etcdclient.Config) (v *etcdClientScope, err error) {
	ctx, span := d.Telemetry().Tracer().Start(ctx, "keboola.go.common.dependencies.NewEtcdClientScope")
	defer span.End(&err)

	client, err := etcdclient.New(ctx, d.Process(), d.Logger(), cfg)
	if err != nil {
		return nil, err
	}

	return newEtcdClientScopeFromClient(client), nil
}

func newEtcdClientScopeFromClient(client *etcdPkg.Client) *etcdClientScope {
	return &etcdClientScope{client: client, serde: serde.NewJSON(serde.StructValidation())}
}

func (v *etcdClientScope) check() {
	if v == nil {
		panic(errors.New("dependencies etcd client scope is not initialized"))
	}
}

func (v *etcdClientScope) EtcdClient() *etcdPkg.Client {
	v.check()
	return v.client
}

func (v *etcdClientScope) EtcdSerde() *serde.Serde {
	v.check()
	return v.serde
}
