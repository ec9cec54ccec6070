package cliconfig_test

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
)

type testConfig struct {
	NodeID   string       `configKey:"nodeId" configUsage:"Node ID."`
	DebugLog bool         `configKey:"debugLog" configUsage:"Debug logging."`
	Password string       `configKey:"password" configUsage:"Password." sensitive:"true"`
	Nested   nestedConfig `configKey:"nested"`
	Ignored  string
}

type nestedConfig struct {
	ChunkSize datasize.ByteSize `configKey:"chunkSize" configUsage:"Chunk size."`
	Timeout   time.Duration     `configKey:"timeout" configUsage:"Timeout."`
	Workers   int               `configKey:"workers" configUsage:"Workers count."`
}

func defaultConfig() testConfig {
	return testConfig{
		NodeID: "default-node",
		Nested: nestedConfig{
			ChunkSize: 256 * datasize.KB,
			Timeout:   30 * time.Second,
			Workers:   2,
		},
	}
}

func TestKeyToFlagName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "node-id", cliconfig.KeyToFlagName("nodeId"))
	assert.Equal(t, "distributor-chunk-size", cliconfig.KeyToFlagName("distributor.chunkSize"))
	assert.Equal(t, "etcd-ttl-seconds", cliconfig.KeyToFlagName("etcd.ttlSeconds"))
	assert.Equal(t, "foo", cliconfig.KeyToFlagName("foo"))
}

func TestGenerateFlags(t *testing.T) {
	t.Parallel()
	cfg := defaultConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, cliconfig.GenerateFlags(fs, &cfg))

	var names []string
	fs.VisitAll(func(flag *pflag.Flag) {
		names = append(names, flag.Name+"="+flag.DefValue)
	})
	assert.Equal(t, []string{
		"debug-log=false",
		"nested-chunk-size=256KB",
		"nested-timeout=30s",
		"nested-workers=2",
		"node-id=default-node",
		"password=",
	}, names)
	assert.Equal(t, "Chunk size.", fs.Lookup("nested-chunk-size").Usage)

	// Not a struct
	err := cliconfig.GenerateFlags(pflag.NewFlagSet("test", pflag.ContinueOnError), "foo")
	require.Error(t, err)
	assert.Equal(t, `type "string" is not a struct or a pointer to a struct, it cannot be mapped to the FlagSet`, err.Error())
}

func TestBind_Defaults(t *testing.T) {
	t.Parallel()
	cfg := defaultConfig()
	setBy, err := cliconfig.Bind(afero.NewMemMapFs(), pflag.NewFlagSet("test", pflag.ContinueOnError), cliconfig.BindSpec{}, &cfg)
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
	assert.Equal(t, cliconfig.SetByDefault, setBy["nested.workers"])
}

func TestBind_Priority(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/config.yaml", []byte(`
nodeId: file-node
debugLog: true
nested:
  chunkSize: 1MB
  timeout: 5s
  workers: 10
`), 0o640))

	envs := env.FromMap(map[string]string{
		"FILESYNC_NESTED_TIMEOUT": "1m",
		"FILESYNC_NESTED_WORKERS": "20",
	})

	cfg := defaultConfig()
	setBy, err := cliconfig.Bind(fs, pflag.NewFlagSet("test", pflag.ContinueOnError), cliconfig.BindSpec{
		Args:           []string{"--config-file", "/config.yaml", "--nested-workers", "30"},
		Envs:           envs,
		EnvNaming:      env.NewNamingConvention("FILESYNC_"),
		ConfigFileFlag: "config-file",
	}, &cfg)
	require.NoError(t, err)

	assert.Equal(t, testConfig{
		NodeID:   "file-node",
		DebugLog: true,
		Nested: nestedConfig{
			ChunkSize: datasize.MB,
			Timeout:   time.Minute,
			Workers:   30,
		},
	}, cfg)
	assert.Equal(t, cliconfig.SetByConfigFile, setBy["nested.chunksize"])
	assert.Equal(t, cliconfig.SetByEnv, setBy["nested.timeout"])
	assert.Equal(t, cliconfig.SetByFlag, setBy["nested.workers"])
}

func TestBind_Invalid(t *testing.T) {
	t.Parallel()

	// Missing config file
	cfg := defaultConfig()
	_, err := cliconfig.Bind(afero.NewMemMapFs(), pflag.NewFlagSet("test", pflag.ContinueOnError), cliconfig.BindSpec{
		Args:           []string{"--config-file", "/missing.yaml"},
		ConfigFileFlag: "config-file",
	}, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `cannot read config file "/missing.yaml"`)

	// Invalid value
	cfg = defaultConfig()
	_, err = cliconfig.Bind(afero.NewMemMapFs(), pflag.NewFlagSet("test", pflag.ContinueOnError), cliconfig.BindSpec{
		Envs:      env.FromMap(map[string]string{"APP_NESTED_CHUNK_SIZE": "foo"}),
		EnvNaming: env.NewNamingConvention("APP_"),
	}, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot decode configuration")
}

func TestDump(t *testing.T) {
	t.Parallel()
	cfg := defaultConfig()
	cfg.Password = "secret"

	kvs, err := cliconfig.Dump(cfg)
	require.NoError(t, err)
	assert.Equal(t, cliconfig.KVs{
		{Key: "nodeId", Value: "default-node"},
		{Key: "debugLog", Value: "false"},
		{Key: "nested.chunkSize", Value: "256KB"},
		{Key: "nested.timeout", Value: "30s"},
		{Key: "nested.workers", Value: "2"},
	}, kvs)
	assert.Equal(t, "nodeId=default-node; debugLog=false; nested.chunkSize=256KB; nested.timeout=30s; nested.workers=2;", kvs.String())
}
