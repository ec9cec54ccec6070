// Package config provides configuration of the filesync node.
package config

import (
	"context"
	"strings"

	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/distlock"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/distribution"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/etcdclient"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/partition"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/pubsub"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/filesync/distributor"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
	"github.com/keboola/go-cluster-filesync/internal/pkg/validator"
)

const (
	EnvPrefix      = "FILESYNC_"
	ConfigFileFlag = "config-file"
	DefaultGroup   = "filesync"
)

// Config of the filesync node.
type Config struct {
	NodeID       string              `configKey:"nodeId" configUsage:"Unique ID of the node in the cluster." validate:"required"`
	Group        string              `configKey:"group" configUsage:"Name of the cluster, nodes with the same group see each other." validate:"required"`
	DebugLog     bool                `configKey:"debugLog" configUsage:"Enable debug log level."`
	LogFormat    string              `configKey:"logFormat" configUsage:"Format of the log: console or json." validate:"required,oneof=console json"`
	Metrics      MetricsConfig       `configKey:"metrics"`
	Etcd         etcdclient.Config   `configKey:"etcd"`
	Distribution distribution.Config `configKey:"distribution"`
	Partition    partition.Config    `configKey:"partition"`
	PubSub       pubsub.Config       `configKey:"pubsub"`
	DistLock     distlock.Config     `configKey:"distlock"`
	Distributor  distributor.Config  `configKey:"distributor"`
}

type MetricsConfig struct {
	Listen string `configKey:"listen" configUsage:"Listen address of the Prometheus metrics endpoint, empty value disables the endpoint."`
}

func New() Config {
	return Config{
		Group:        DefaultGroup,
		LogFormat:    "console",
		Metrics:      MetricsConfig{Listen: "0.0.0.0:9000"},
		Etcd:         etcdclient.NewConfig(),
		Distribution: distribution.NewConfig(),
		Partition:    partition.NewConfig(),
		PubSub:       pubsub.NewConfig(),
		DistLock:     distlock.NewConfig(),
		Distributor:  distributor.NewConfig(),
	}
}

func (c *Config) Normalize() {
	c.NodeID = strings.TrimSpace(c.NodeID)
	c.Group = strings.Trim(c.Group, " /")
	c.Metrics.Listen = strings.TrimSpace(c.Metrics.Listen)
	c.Etcd.Normalize()
}

// Validate the tags of the whole tree and then the rules of the components.
func (c *Config) Validate() error {
	errs := errors.NewMultiError()

	if err := validator.New().Validate(context.Background(), c); err != nil {
		errs.Append(err)
	}

	components := []struct {
		name     string
		validate func() error
	}{
		{"etcd", c.Etcd.Validate},
		{"partition", c.Partition.Validate},
		{"pubsub", c.PubSub.Validate},
		{"distlock", c.DistLock.Validate},
		{"distributor", c.Distributor.Validate},
	}
	for _, component := range components {
		if err := component.validate(); err != nil {
			errs.Append(errors.PrefixErrorf(err, `invalid "%s" configuration`, component.name))
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return errors.PrefixError(err, "invalid configuration")
	}
	return nil
}
