package config_test

import (
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/go-cluster-filesync/internal/pkg/env"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/cliconfig"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/filesync/chunk"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/filesync/config"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := config.New()
	cfg.NodeID = " node1 "
	cfg.Etcd.Endpoint = "localhost:2379/"
	cfg.Normalize()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "node1", cfg.NodeID)
	assert.Equal(t, "localhost:2379", cfg.Etcd.Endpoint)
	assert.Equal(t, "filesync/", cfg.Etcd.Namespace)
}

func TestConfig_Validate_Invalid(t *testing.T) {
	t.Parallel()

	cfg := config.New()
	cfg.Distributor.Workers = 0
	cfg.Distributor.ReadMode = "foo"
	cfg.Distributor.ChunkSize = 2 * datasize.MB
	cfg.Partition.Count = 0

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "invalid configuration:")
	assert.Contains(t, msg, `"nodeId" is a required field`)
	assert.Contains(t, msg, `"etcd.endpoint" is a required field`)
	assert.Contains(t, msg, `"distributor.readMode" must be one of [buffered mmap]`)
	assert.Contains(t, msg, "etcd endpoint is not set")
	assert.Contains(t, msg, `"count" must be between 1 and 65536, found 0`)
	assert.Contains(t, msg, "workers must be at least 1, found 0")
	assert.Contains(t, msg, "chunk size must be between 1B and 1")
}

func TestConfig_Bind(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/filesync.yaml", []byte(`
group: my-cluster
etcd:
  endpoint: etcd:2379
distributor:
  readMode: mmap
  sendAckTimeout: 5s
`), 0o640))

	cfg := config.New()
	_, err := cliconfig.Bind(fs, pflag.NewFlagSet("filesync", pflag.ContinueOnError), cliconfig.BindSpec{
		Args:           []string{"--config-file", "/etc/filesync.yaml", "--node-id", "node1"},
		Envs:           env.FromMap(map[string]string{"FILESYNC_DISTRIBUTOR_CHUNK_SIZE": "1MB"}),
		EnvNaming:      env.NewNamingConvention(config.EnvPrefix),
		ConfigFileFlag: config.ConfigFileFlag,
	}, &cfg)
	require.NoError(t, err)
	cfg.Normalize()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "node1", cfg.NodeID)
	assert.Equal(t, "my-cluster", cfg.Group)
	assert.Equal(t, "etcd:2379", cfg.Etcd.Endpoint)
	assert.Equal(t, chunk.ReadModeMmap, cfg.Distributor.ReadMode)
	assert.Equal(t, 5*time.Second, cfg.Distributor.SendAckTimeout)
	assert.Equal(t, datasize.MB, cfg.Distributor.ChunkSize)
	assert.Equal(t, 600*time.Second, cfg.Distributor.ReceiptAckTimeout)
}

func TestConfig_Dump(t *testing.T) {
	t.Parallel()

	cfg := config.New()
	cfg.NodeID = "node1"
	cfg.Etcd.Password = "secret"

	kvs, err := cliconfig.Dump(cfg)
	require.NoError(t, err)
	assert.Contains(t, kvs.String(), "nodeId=node1;")
	assert.Contains(t, kvs.String(), "distributor.chunkSize=256KB;")
	assert.NotContains(t, kvs.String(), "secret")
}
