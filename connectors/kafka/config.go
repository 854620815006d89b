package kafka

import (
	"errors"
	"fmt"
)

// SinkConfig contains configuration for the Kafka transport
type SinkConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	// ClientID identifies the producer to brokers. Defaults to "ckptsink".
	ClientID string `yaml:"clientID"`
}

func (c SinkConfig) Validate() error {
	var errs []error
	if len(c.Brokers) == 0 {
		errs = append(errs, errors.New("kafka brokers are required"))
	}
	for _, b := range c.Brokers {
		if b == "" {
			errs = append(errs, fmt.Errorf("kafka broker address cannot be empty"))
			break
		}
	}
	if c.Topic == "" {
		errs = append(errs, errors.New("kafka topic is required"))
	}
	return errors.Join(errs...)
}
