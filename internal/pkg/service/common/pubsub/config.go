package pubsub

import (
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

type Config struct {
	TTLSeconds int `configKey:"ttlSeconds" configUsage:"Seconds after which not deleted messages of a not responding node expire." validate:"required,min=1,max=30"`
}

func NewConfig() Config {
	return Config{
		TTLSeconds: 15,
	}
}

func (c Config) Validate() error {
	if c.TTLSeconds < 1 || c.TTLSeconds > 30 {
		return errors.Errorf(`"ttlSeconds" must be between 1 and 30, found %d`, c.TTLSeconds)
	}
	return nil
}
