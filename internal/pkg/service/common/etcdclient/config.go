package etcdclient

import (
	"strings"
	"time"

	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

// Config of the etcd connection. All keys of the node are stored under the Namespace prefix.
type Config struct {
	Endpoint          string        `configKey:"endpoint" configUsage:"Etcd endpoint." validate:"required"`
	Namespace         string        `configKey:"namespace" configUsage:"Etcd namespace." validate:"required"`
	Username          string        `configKey:"username" configUsage:"Etcd username."`
	Password          string        `configKey:"password" configUsage:"Etcd password." sensitive:"true"`
	ConnectTimeout    time.Duration `configKey:"connectTimeout" configUsage:"Etcd connect timeout." validate:"required"`
	KeepAliveTimeout  time.Duration `configKey:"keepAliveTimeout" configUsage:"Etcd keep alive timeout." validate:"required"`
	KeepAliveInterval time.Duration `configKey:"keepAliveInterval" configUsage:"Etcd keep alive interval." validate:"required"`
	DebugLog          bool          `configKey:"debugLog" configUsage:"Etcd client messages logging."`
}

func NewConfig() Config {
	return Config{
		Namespace:         "filesync",
		ConnectTimeout:    30 * time.Second,
		KeepAliveTimeout:  5 * time.Second,
		KeepAliveInterval: 10 * time.Second,
	}
}

// Normalize trims slashes, the namespace always ends with a slash.
func (c *Config) Normalize() {
	c.Endpoint = strings.Trim(c.Endpoint, " /")
	c.Namespace = strings.Trim(c.Namespace, " /") + "/"
}

func (c *Config) Validate() error {
	errs := errors.NewMultiError()
	if c.Endpoint == "" {
		errs.Append(errors.New("etcd endpoint is not set"))
	}
	if c.Namespace == "/" || c.Namespace == "" {
		errs.Append(errors.New("etcd namespace is not set"))
	}
	if c.Username == "" && c.Password != "" {
		errs.Append(errors.New("etcd password is set, but the username is not"))
	}
	if c.ConnectTimeout < 0 || c.KeepAliveTimeout < 0 || c.KeepAliveInterval < 0 {
		errs.Append(errors.New("etcd timeouts must not be negative"))
	}
	return errs.ErrorOrNil()
}
