package partition

import (
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

type Config struct {
	// Count of partitions, it must be the same on all nodes.
	Count int `configKey:"count" configUsage:"Count of partitions, it must be the same on all nodes." validate:"required,min=1,max=65536"`
	// MaxRetries of a key which failed in a migration callback.
	MaxRetries int `configKey:"maxRetries" configUsage:"How many times a failed key is retried on the next migrations." validate:"min=0,max=100"`
}

func NewConfig() Config {
	return Config{
		Count:      271,
		MaxRetries: 3,
	}
}

func (c Config) Validate() error {
	errs := errors.NewMultiError()
	if c.Count < 1 || c.Count > 65536 {
		errs.Append(errors.Errorf(`"count" must be between 1 and 65536, found %d`, c.Count))
	}
	if c.MaxRetries < 0 || c.MaxRetries > 100 {
		errs.Append(errors.Errorf(`"maxRetries" must be between 0 and 100, found %d`, c.MaxRetries))
	}
	return errs.ErrorOrNil()
}
