package etcdclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_NormalizeAndValidate(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	cfg.Normalize()
	assert.EqualError(t, cfg.Validate(), "etcd endpoint is not set")

	cfg = NewConfig()
	cfg.Endpoint = " localhost:2379/ "
	cfg.Namespace = "/my-namespace/"
	cfg.Normalize()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "localhost:2379", cfg.Endpoint)
	assert.Equal(t, "my-namespace/", cfg.Namespace)

	cfg.Namespace = ""
	cfg.Normalize()
	assert.EqualError(t, cfg.Validate(), "etcd namespace is not set")
}

func TestConfig_Validate_Multiple(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	cfg.Password = "secret"
	cfg.KeepAliveTimeout = -time.Second
	cfg.Normalize()

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "etcd endpoint is not set")
	assert.Contains(t, err.Error(), "etcd password is set, but the username is not")
	assert.Contains(t, err.Error(), "etcd timeouts must not be negative")
}
