package kinesis

import (
	"errors"
	"fmt"
	"strings"

	"reduction.dev/ckptsink/connectors"
)

// SinkConfig contains configuration for the Kinesis transport
type SinkConfig struct {
	StreamARN string `yaml:"streamARN"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	Profile   string `yaml:"profile"`

	// Static credentials, used when AccessKeyID is set
	AccessKeyID     string `yaml:"accessKeyID"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	SessionToken    string `yaml:"sessionToken"`

	// MaxAttempts bounds PutRecords calls per delivery when records are
	// throttled. Defaults to 3.
	MaxAttempts int `yaml:"maxAttempts"`
}

func (c SinkConfig) Validate() error {
	var errs []error
	if !strings.HasPrefix(c.StreamARN, "arn:") {
		errs = append(errs, fmt.Errorf("kinesis streamARN must be an ARN, got %q", c.StreamARN))
	}
	if c.Endpoint != "" {
		if err := connectors.ValidateURL(c.Endpoint); err != nil {
			errs = append(errs, fmt.Errorf("invalid kinesis endpoint: %w", err))
		}
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		errs = append(errs, errors.New("kinesis accessKeyID and secretAccessKey must be set together"))
	}
	if c.MaxAttempts < 0 {
		errs = append(errs, errors.New("kinesis maxAttempts cannot be negative"))
	}
	return errors.Join(errs...)
}
