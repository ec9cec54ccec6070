package etcdhelper

import (
	"context"
	"os"
	"testing"
	"time"

	etcd "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/tests/v3/integration"

	"github.com/keboola/go-cluster-filesync/internal/pkg/idgenerator"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/etcdclient"
)

// ClusterForTest starts an embedded single member etcd cluster, terminated at the end of the test.
// The returned client is namespaced to a random prefix.
func ClusterForTest(t *testing.T) *etcd.Client {
	t.Helper()
	if os.Getenv("UNIT_ETCD_ENABLED") == "false" {
		t.Skipf("etcd test is disabled by UNIT_ETCD_ENABLED=false")
	}

	integration.BeforeTestExternal(t)
	cluster := integration.NewClusterV3(t, &integration.ClusterConfig{Size: 1})
	t.Cleanup(func() {
		cluster.Terminate(t)
	})

	return NamespacedClient(t, cluster.RandClient())
}

// NamespacedClient creates a new client to the same endpoints, with a random namespace.
// The namespace is cleared at the end of the test.
func NamespacedClient(t *testing.T, base *etcd.Client) *etcd.Client {
	t.Helper()

	client, err := etcd.New(etcd.Config{
		Endpoints:   base.Endpoints(),
		DialTimeout: 5 * time.Second,
		Logger:      base.GetLogger(),
	})
	if err != nil {
		t.Fatalf("cannot create etcd client: %s", err)
	}

	prefix := "unit-" + idgenerator.EtcdNamespaceForTest() + "/"
	rawKV := client.KV
	etcdclient.UseNamespace(client, prefix)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = rawKV.Delete(ctx, prefix, etcd.WithPrefix())
		_ = client.Close()
	})

	return client
}
