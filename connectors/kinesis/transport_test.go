package kinesis_test

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"reduction.dev/ckptsink/connectors"
	"reduction.dev/ckptsink/connectors/kinesis"
	"reduction.dev/ckptsink/connectors/kinesis/kinesisfake"
	"reduction.dev/ckptsink/sink"
)

var subtask = sink.SubtaskIdentity{Index: 0, Parallelism: 1}

func startStream(t *testing.T) (*kinesisfake.Fake, kinesis.SinkConfig) {
	t.Helper()
	ctx := context.Background()
	svc, fake := kinesisfake.StartFake()
	t.Cleanup(svc.Close)

	client, err := kinesis.NewClient(ctx, &kinesis.NewClientParams{
		Endpoint:    svc.URL,
		Region:      "us-east-2",
		Credentials: credentials.NewStaticCredentialsProvider("key", "secret", "session"),
	})
	require.NoError(t, err)

	streamARN, err := client.CreateStream(ctx, &kinesis.CreateStreamParams{
		StreamName:      "test-stream",
		ShardCount:      2,
		MaxWaitDuration: time.Minute,
	})
	require.NoError(t, err)

	return fake, kinesis.SinkConfig{
		StreamARN:       streamARN,
		Region:          "us-east-2",
		Endpoint:        svc.URL,
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	}
}

func batch(label string, records ...string) *connectors.Batch {
	b := &connectors.Batch{Label: label}
	for _, r := range records {
		b.Records = append(b.Records, []byte(r))
	}
	return b
}

func TestTransport_DeliversRecordsWithLabelPartitionKeys(t *testing.T) {
	ctx := context.Background()
	fake, config := startStream(t)

	transport, err := kinesis.NewTransport(ctx, config)
	require.NoError(t, err)
	require.NoError(t, transport.Open(ctx, subtask))
	require.NoError(t, transport.Deliver(ctx, batch("p_0_0", "r1", "r2", "r3")))
	require.NoError(t, transport.Close())

	var keys []string
	var data []string
	for _, r := range fake.Records("test-stream") {
		keys = append(keys, r.PartitionKey)
		data = append(data, string(r.Data))
	}
	assert.ElementsMatch(t, []string{"p_0_0-0", "p_0_0-1", "p_0_0-2"}, keys)
	assert.ElementsMatch(t, []string{"r1", "r2", "r3"}, data)
}

func TestTransport_RetriesOnlyRejectedRecords(t *testing.T) {
	ctx := context.Background()
	fake, config := startStream(t)

	transport, err := kinesis.NewTransport(ctx, config)
	require.NoError(t, err)
	require.NoError(t, transport.Open(ctx, subtask))

	fake.RejectNextRecords(1, "ProvisionedThroughputExceededException")
	require.NoError(t, transport.Deliver(ctx, batch("p_0_0", "r1", "r2")))

	assert.Len(t, fake.Records("test-stream"), 2, "no duplicates of accepted records")
	assert.Equal(t, 2, fake.PutRecordsRequests())
}

func TestTransport_PersistentRejectionIsRetryable(t *testing.T) {
	ctx := context.Background()
	fake, config := startStream(t)
	config.MaxAttempts = 2

	transport, err := kinesis.NewTransport(ctx, config)
	require.NoError(t, err)
	require.NoError(t, transport.Open(ctx, subtask))

	fake.RejectNextRecords(10, "ProvisionedThroughputExceededException")
	err = transport.Deliver(ctx, batch("p_0_0", "r1"))
	require.Error(t, err)
	assert.True(t, connectors.IsRetryable(err))
	assert.ErrorContains(t, err, "ProvisionedThroughputExceededException")
}

func TestTransport_MissingStream(t *testing.T) {
	ctx := context.Background()
	_, config := startStream(t)
	config.StreamARN = "arn:aws:kinesis:us-east-2:123456789012:stream/missing"

	transport, err := kinesis.NewTransport(ctx, config)
	require.NoError(t, err)
	assert.Error(t, transport.Open(ctx, subtask))

	err = transport.Deliver(ctx, batch("p_0_0", "r1"))
	require.Error(t, err)
	assert.False(t, connectors.IsRetryable(err), "missing stream cannot be fixed by retrying")
}

func TestSinkConfig_Validate(t *testing.T) {
	assert.NoError(t, kinesis.SinkConfig{StreamARN: "arn:aws:kinesis:us-east-2:1:stream/s"}.Validate())

	err := kinesis.SinkConfig{
		StreamARN:   "s",
		Endpoint:    "localhost",
		AccessKeyID: "key",
	}.Validate()
	assert.ErrorContains(t, err, "streamARN")
	assert.ErrorContains(t, err, "endpoint")
	assert.ErrorContains(t, err, "secretAccessKey")
}
