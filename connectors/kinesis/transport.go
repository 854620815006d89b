// Package kinesis delivers batches to a Kinesis data stream with PutRecords.
// Kinesis does not de-duplicate, so redelivered batches may appear twice.
// Partition keys carry the batch label to make duplicates identifiable.
package kinesis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"reduction.dev/ckptsink/connectors"
	"reduction.dev/ckptsink/sink"
)

// Kinesis accepts at most 500 records per PutRecords request
const maxRecordsPerRequest = 500

const defaultMaxAttempts = 3

type Transport struct {
	client      *Client
	streamARN   string
	maxAttempts int
	backoff     time.Duration
	log         *slog.Logger
}

func NewTransport(ctx context.Context, config SinkConfig) (*Transport, error) {
	params := &NewClientParams{
		Endpoint: config.Endpoint,
		Region:   config.Region,
		Profile:  config.Profile,
	}
	if config.AccessKeyID != "" {
		params.Credentials = credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, config.SessionToken)
	}
	client, err := NewClient(ctx, params)
	if err != nil {
		return nil, err
	}

	maxAttempts := config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	return &Transport{
		client:      client,
		streamARN:   config.StreamARN,
		maxAttempts: maxAttempts,
		backoff:     100 * time.Millisecond,
		log:         slog.With("instanceID", "kinesis"),
	}, nil
}

func (t *Transport) Open(ctx context.Context, identity sink.SubtaskIdentity) error {
	t.log = slog.With("instanceID", fmt.Sprintf("kinesis-%d", identity.Index))

	status, err := t.client.DescribeStreamSummary(ctx, t.streamARN)
	if err != nil {
		return err
	}
	if status != types.StreamStatusActive && status != types.StreamStatusUpdating {
		return fmt.Errorf("kinesis stream %s is %s", t.streamARN, status)
	}
	return nil
}

func (t *Transport) Deliver(ctx context.Context, batch *connectors.Batch) error {
	records := make([]Record, len(batch.Records))
	for i, data := range batch.Records {
		records[i] = Record{Key: fmt.Sprintf("%s-%d", batch.Label, i), Data: data}
	}

	for attempt := 1; ; attempt++ {
		rejected, reason, err := t.putAll(ctx, records)
		if err != nil {
			return classify(err)
		}
		if len(rejected) == 0 {
			return nil
		}
		if attempt >= t.maxAttempts {
			return connectors.NewRetryableError(fmt.Errorf("kinesis rejected %d of %d records of batch %s: %s",
				len(rejected), len(batch.Records), batch.Label, reason))
		}

		t.log.Debug("retrying rejected records", "label", batch.Label, "rejected", len(rejected), "reason", reason)
		records = rejected
		select {
		case <-time.After(t.backoff * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// putAll writes records in request-sized chunks and returns the rejected ones.
func (t *Transport) putAll(ctx context.Context, records []Record) (rejected []Record, reason string, err error) {
	for start := 0; start < len(records); start += maxRecordsPerRequest {
		chunk := records[start:min(start+maxRecordsPerRequest, len(records))]
		failed, chunkReason, err := t.client.PutRecords(ctx, t.streamARN, chunk)
		if err != nil {
			return nil, "", err
		}
		for _, i := range failed {
			rejected = append(rejected, chunk[i])
		}
		if reason == "" {
			reason = chunkReason
		}
	}
	return rejected, reason, nil
}

func (t *Transport) Close() error {
	return nil
}

// classify marks errors that retrying cannot fix as terminal.
func classify(err error) error {
	var notFound *types.ResourceNotFoundException
	var invalid *types.InvalidArgumentException
	if errors.As(err, &notFound) || errors.As(err, &invalid) {
		return connectors.NewTerminalError(err)
	}
	return connectors.NewRetryableError(err)
}

var _ connectors.Transport = (*Transport)(nil)
