package bigquery

import "errors"

// SinkConfig contains configuration for the BigQuery streaming insert
// transport
type SinkConfig struct {
	ProjectID string `yaml:"projectID"`
	Dataset   string `yaml:"dataset"`
	Table     string `yaml:"table"`
}

func (c SinkConfig) Validate() error {
	var errs []error
	if c.ProjectID == "" {
		errs = append(errs, errors.New("bigquery projectID is required"))
	}
	if c.Dataset == "" {
		errs = append(errs, errors.New("bigquery dataset is required"))
	}
	if c.Table == "" {
		errs = append(errs, errors.New("bigquery table is required"))
	}
	return errors.Join(errs...)
}
