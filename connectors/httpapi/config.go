package httpapi

import (
	"errors"
	"time"

	"reduction.dev/ckptsink/connectors"
)

// SinkConfig contains configuration for the HTTP API transport
type SinkConfig struct {
	Addr    string        `yaml:"addr"`
	Topic   string        `yaml:"topic"`
	Timeout time.Duration `yaml:"timeout"`
}

func (c SinkConfig) Validate() error {
	var errs []error
	if err := connectors.ValidateURL(c.Addr); err != nil {
		errs = append(errs, err)
	}
	if c.Topic == "" {
		errs = append(errs, errors.New("httpapi topic is required"))
	}
	return errors.Join(errs...)
}
