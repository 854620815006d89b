package doris

import (
	"errors"
	"time"

	"reduction.dev/ckptsink/connectors"
)

// SinkConfig contains configuration for the Doris stream load transport
type SinkConfig struct {
	// Addr is the HTTP address of a frontend node, like http://fe:8030.
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Table    string `yaml:"table"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// MaxRetries is the number of additional attempts for a retryable stream
	// load failure. Defaults to 3.
	MaxRetries int `yaml:"maxRetries"`
	// RetryBackoff is the minimum time between attempts. Defaults to 1s.
	RetryBackoff time.Duration `yaml:"retryBackoff"`
	// Timeout bounds a single stream load request. Defaults to 60s.
	Timeout time.Duration `yaml:"timeout"`
}

func (c SinkConfig) Validate() error {
	var errs []error
	if err := connectors.ValidateURL(c.Addr); err != nil {
		errs = append(errs, err)
	}
	if c.Database == "" {
		errs = append(errs, errors.New("doris database is required"))
	}
	if c.Table == "" {
		errs = append(errs, errors.New("doris table is required"))
	}
	if c.Username == "" {
		errs = append(errs, errors.New("doris username is required"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("doris maxRetries cannot be negative"))
	}
	if c.RetryBackoff < 0 {
		errs = append(errs, errors.New("doris retryBackoff cannot be negative"))
	}
	return errors.Join(errs...)
}
