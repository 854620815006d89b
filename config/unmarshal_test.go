package config_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"reduction.dev/ckptsink/config"
	"reduction.dev/ckptsink/connectors/doris"
	"reduction.dev/ckptsink/connectors/memory"
	"reduction.dev/ckptsink/connectors/stdio"
)

const dorisJob = `
job:
  name: orders
  parallelism: ${PARALLELISM}
  checkpointLocation: /tmp/ckpt
  checkpointInterval: 10s
  maxRestarts: 2
writer:
  maxBatchSize: 100
  maxBatchDelay: 500ms
sink:
  type: doris
  doris:
    addr: http://${FE_HOST}:8030
    database: shop
    table: orders
    username: root
    password: "${DORIS_PASSWORD}"
`

func TestUnmarshal_ResolvesParams(t *testing.T) {
	params := config.NewParams()
	params.Set("PARALLELISM", "4")
	params.Set("FE_HOST", "fe")
	params.Set("DORIS_PASSWORD", "123")

	cfg, err := config.Unmarshal([]byte(dorisJob), params)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 4, cfg.Job.Parallelism, "whole-value param takes the field type")
	assert.Equal(t, 10*time.Second, cfg.Job.CheckpointInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Writer.MaxBatchDelay)
	assert.Equal(t, &doris.SinkConfig{
		Addr:     "http://fe:8030",
		Database: "shop",
		Table:    "orders",
		Username: "root",
		Password: "123",
	}, cfg.Sink.Doris)
	assert.Equal(t, "123", cfg.Sink.Doris.Password, "quoted param stays a string")
}

func TestUnmarshal_ReportsAllMissingParams(t *testing.T) {
	_, err := config.Unmarshal([]byte(dorisJob), config.NewParams())
	require.Error(t, err)
	for _, name := range []string{"PARALLELISM", "FE_HOST", "DORIS_PASSWORD"} {
		assert.ErrorContains(t, err, name)
	}
}

func TestUnmarshal_EnvironmentParams(t *testing.T) {
	t.Setenv("CKPTSINK_PARAM_PARALLELISM", "2")
	t.Setenv("CKPTSINK_PARAM_FE_HOST", "fe")
	t.Setenv("CKPTSINK_PARAM_DORIS_PASSWORD", "pw")

	cfg, err := config.Unmarshal([]byte(dorisJob), config.NewParams())
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Job.Parallelism)
}

func TestUnmarshal_RejectsUnknownFields(t *testing.T) {
	_, err := config.Unmarshal([]byte("job:\n  parallelism: 1\n  workers: 3\n"), config.NewParams())
	assert.ErrorContains(t, err, "workers")
}

func TestUnmarshal_RejectsInvalidDocuments(t *testing.T) {
	_, err := config.Unmarshal([]byte(""), config.NewParams())
	assert.Error(t, err)

	_, err = config.Unmarshal([]byte("job: [unclosed"), config.NewParams())
	assert.ErrorContains(t, err, "invalid config document format")
}

func TestValidate_JoinsProblems(t *testing.T) {
	cfg, err := config.Unmarshal([]byte(`
job:
  parallelism: 0
writer:
  maxBatchSize: 50
  maxBufferedRecords: 10
sink:
  type: kafka
`), config.NewParams())
	require.NoError(t, err)

	err = cfg.Validate()
	assert.ErrorContains(t, err, "parallelism must be at least 1")
	assert.ErrorContains(t, err, "checkpointLocation is required")
	assert.ErrorContains(t, err, "maxBatchSize (50) exceeds")
	assert.ErrorContains(t, err, "sink.kafka configuration is required")
}

func TestValidate_SinkTypes(t *testing.T) {
	tests := []struct {
		sink string
		err  string
	}{
		{"type: memory", ""},
		{"type: stdio", ""},
		{"type: stdio\n  stdio:\n    stream: file", "stdout or stderr"},
		{"type: s3stage\n  s3stage:\n    path: s3://bucket/out", ""},
		{"type: kafka\n  kafka:\n    brokers: [localhost:9092]", "topic is required"},
		{"type: ftp", `unknown sink type "ftp"`},
		{"{}", "sink.type is required"},
	}
	for _, tt := range tests {
		t.Run(tt.sink, func(t *testing.T) {
			doc := "job:\n  parallelism: 1\n  checkpointLocation: /tmp/ckpt\nsink:\n  " + tt.sink + "\n"
			cfg, err := config.Unmarshal([]byte(doc), config.NewParams())
			require.NoError(t, err)
			if tt.err == "" {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.ErrorContains(t, cfg.Validate(), tt.err)
			}
		})
	}
}

func TestNewTransport_SharesMemoryStore(t *testing.T) {
	cfg, err := config.Unmarshal([]byte("job:\n  parallelism: 2\n  checkpointLocation: /tmp\nsink:\n  type: memory\n"), config.NewParams())
	require.NoError(t, err)

	t1, err := cfg.NewTransport(context.Background())
	require.NoError(t, err)
	t2, err := cfg.NewTransport(context.Background())
	require.NoError(t, err)

	assert.IsType(t, &memory.Transport{}, t1)
	assert.NotSame(t, t1, t2)
	assert.NotNil(t, cfg.MemoryStore())
}

func TestNewTransport_StdioIsShared(t *testing.T) {
	cfg, err := config.Unmarshal([]byte("job:\n  parallelism: 2\n  checkpointLocation: /tmp\nsink:\n  type: stdio\n"), config.NewParams())
	require.NoError(t, err)

	t1, err := cfg.NewTransport(context.Background())
	require.NoError(t, err)
	t2, err := cfg.NewTransport(context.Background())
	require.NoError(t, err)

	assert.IsType(t, &stdio.Transport{}, t1)
	assert.Same(t, t1, t2)
}

func TestWriterParams(t *testing.T) {
	cfg, err := config.Unmarshal([]byte(dorisJob), paramsFor(t))
	require.NoError(t, err)

	params := cfg.WriterParams(nil)
	assert.Equal(t, 100, params.MaxBatchSize)
	assert.Equal(t, 500*time.Millisecond, params.MaxBatchDelay)
	assert.NotNil(t, params.Encoder)
}

func paramsFor(t *testing.T) *config.Params {
	t.Helper()
	params := config.NewParams()
	params.Set("PARALLELISM", "1")
	params.Set("FE_HOST", "fe")
	params.Set("DORIS_PASSWORD", "pw")
	return params
}
