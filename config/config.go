package config

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"reduction.dev/ckptsink/connectors"
	"reduction.dev/ckptsink/connectors/bigquery"
	"reduction.dev/ckptsink/connectors/doris"
	"reduction.dev/ckptsink/connectors/httpapi"
	"reduction.dev/ckptsink/connectors/kafka"
	"reduction.dev/ckptsink/connectors/kinesis"
	"reduction.dev/ckptsink/connectors/memory"
	"reduction.dev/ckptsink/connectors/s3stage"
	"reduction.dev/ckptsink/connectors/stdio"
	"reduction.dev/ckptsink/storage/locations"
	"reduction.dev/ckptsink/writer"
)

// Sink types
const (
	SinkDoris    = "doris"
	SinkS3Stage  = "s3stage"
	SinkKafka    = "kafka"
	SinkKinesis  = "kinesis"
	SinkBigQuery = "bigquery"
	SinkHTTPAPI  = "httpapi"
	SinkStdio    = "stdio"
	SinkMemory   = "memory"
)

// The object representing job configuration.
type Config struct {
	Job    JobConfig    `yaml:"job"`
	Writer WriterConfig `yaml:"writer"`
	Sink   SinkConfig   `yaml:"sink"`

	sharedOnce sync.Once
	stdio      *stdio.Transport
	memory     *memory.Store
}

type JobConfig struct {
	Name               string        `yaml:"name"`
	Parallelism        int           `yaml:"parallelism"`
	CheckpointLocation string        `yaml:"checkpointLocation"`
	CheckpointEvery    int           `yaml:"checkpointEvery"`
	CheckpointInterval time.Duration `yaml:"checkpointInterval"`
	RetainCheckpoints  int           `yaml:"retainCheckpoints"`
	MaxRestarts        int           `yaml:"maxRestarts"`
}

type WriterConfig struct {
	LabelPrefix        string        `yaml:"labelPrefix"`
	MaxBatchSize       int           `yaml:"maxBatchSize"`
	MaxBatchDelay      time.Duration `yaml:"maxBatchDelay"`
	MaxBufferedRecords int           `yaml:"maxBufferedRecords"`
	MaxInFlight        int           `yaml:"maxInFlight"`
	DeliveryTimeout    time.Duration `yaml:"deliveryTimeout"`
}

// SinkConfig selects a transport by Type and holds the configuration for it
// under the key of the same name.
type SinkConfig struct {
	Type     string               `yaml:"type"`
	Doris    *doris.SinkConfig    `yaml:"doris"`
	S3Stage  *s3stage.SinkConfig  `yaml:"s3stage"`
	Kafka    *kafka.SinkConfig    `yaml:"kafka"`
	Kinesis  *kinesis.SinkConfig  `yaml:"kinesis"`
	BigQuery *bigquery.SinkConfig `yaml:"bigquery"`
	HTTPAPI  *httpapi.SinkConfig  `yaml:"httpapi"`
	Stdio    *stdio.SinkConfig    `yaml:"stdio"`
}

func (c *Config) Validate() error {
	var errs []error
	if c.Job.Parallelism < 1 {
		errs = append(errs, fmt.Errorf("job.parallelism must be at least 1 but was %d", c.Job.Parallelism))
	}
	if c.Job.CheckpointLocation == "" {
		errs = append(errs, errors.New("job.checkpointLocation is required"))
	}
	if c.Job.CheckpointEvery < 0 || c.Job.CheckpointInterval < 0 {
		errs = append(errs, errors.New("job checkpoint triggers cannot be negative"))
	}
	if c.Job.MaxRestarts < 0 {
		errs = append(errs, errors.New("job.maxRestarts cannot be negative"))
	}
	if c.Writer.MaxBatchSize < 0 || c.Writer.MaxBufferedRecords < 0 || c.Writer.MaxInFlight < 0 {
		errs = append(errs, errors.New("writer limits cannot be negative"))
	}
	if c.Writer.MaxBufferedRecords > 0 && c.Writer.MaxBatchSize > c.Writer.MaxBufferedRecords {
		errs = append(errs, fmt.Errorf("writer.maxBatchSize (%d) exceeds writer.maxBufferedRecords (%d)",
			c.Writer.MaxBatchSize, c.Writer.MaxBufferedRecords))
	}
	errs = append(errs, c.Sink.validate())
	return errors.Join(errs...)
}

type validator interface{ Validate() error }

func (s SinkConfig) validate() error {
	var cfg validator
	var present bool
	switch s.Type {
	case SinkDoris:
		cfg, present = s.Doris, s.Doris != nil
	case SinkS3Stage:
		cfg, present = s.S3Stage, s.S3Stage != nil
	case SinkKafka:
		cfg, present = s.Kafka, s.Kafka != nil
	case SinkKinesis:
		cfg, present = s.Kinesis, s.Kinesis != nil
	case SinkBigQuery:
		cfg, present = s.BigQuery, s.BigQuery != nil
	case SinkHTTPAPI:
		cfg, present = s.HTTPAPI, s.HTTPAPI != nil
	case SinkStdio:
		if s.Stdio == nil {
			return nil
		}
		cfg, present = s.Stdio, true
	case SinkMemory:
		return nil
	case "":
		return errors.New("sink.type is required")
	default:
		return fmt.Errorf("unknown sink type %q", s.Type)
	}
	if !present {
		return fmt.Errorf("sink.%s configuration is required for sink type %s", s.Type, s.Type)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("sink.%s: %w", s.Type, err)
	}
	return nil
}

// NewTransport builds a transport for the configured sink. Each subtask gets
// its own transport, except stdio and memory which share one stream or store.
func (c *Config) NewTransport(ctx context.Context) (connectors.Transport, error) {
	c.initShared()

	switch c.Sink.Type {
	case SinkDoris:
		return doris.NewTransport(*c.Sink.Doris), nil
	case SinkS3Stage:
		loc, err := locations.New(ctx, c.Sink.S3Stage.Path)
		if err != nil {
			return nil, err
		}
		return s3stage.NewTransport(loc), nil
	case SinkKafka:
		return kafka.NewTransport(*c.Sink.Kafka), nil
	case SinkKinesis:
		t, err := kinesis.NewTransport(ctx, *c.Sink.Kinesis)
		if err != nil {
			return nil, err
		}
		return t, nil
	case SinkBigQuery:
		return bigquery.NewTransport(*c.Sink.BigQuery), nil
	case SinkHTTPAPI:
		return httpapi.NewTransport(*c.Sink.HTTPAPI), nil
	case SinkStdio:
		return c.stdio, nil
	case SinkMemory:
		return memory.NewTransport(c.memory), nil
	default:
		return nil, fmt.Errorf("unknown sink type %q", c.Sink.Type)
	}
}

// MemoryStore is the store behind the memory sink type.
func (c *Config) MemoryStore() *memory.Store {
	c.initShared()
	return c.memory
}

func (c *Config) initShared() {
	c.sharedOnce.Do(func() {
		stdioConfig := stdio.SinkConfig{}
		if c.Sink.Stdio != nil {
			stdioConfig = *c.Sink.Stdio
		}
		c.stdio = stdio.NewTransport(stdioConfig.Output())
		c.memory = memory.NewStore()
	})
}

// WriterParams returns the writer settings for a transport. Records are
// delivered as raw bytes.
func (c *Config) WriterParams(transport connectors.Transport) writer.Params[[]byte] {
	return writer.Params[[]byte]{
		Transport:          transport,
		Encoder:            writer.BytesEncoder{},
		LabelPrefix:        c.Writer.LabelPrefix,
		MaxBatchSize:       c.Writer.MaxBatchSize,
		MaxBatchDelay:      c.Writer.MaxBatchDelay,
		MaxBufferedRecords: c.Writer.MaxBufferedRecords,
		MaxInFlight:        c.Writer.MaxInFlight,
		DeliveryTimeout:    c.Writer.DeliveryTimeout,
	}
}
