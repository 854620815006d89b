package kinesis

import (
	"context"
	"fmt"
	"time"

	"reduction.dev/ckptsink/util/ptr"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
)

type Client struct {
	svc *kinesis.Client
}

type NewClientParams struct {
	// The kinesis endpoint to use. Normally left blank but used for testing
	// against fake.
	Endpoint string
	Region   string
	// The AWS credentials profile name to use instead of default when credentials
	// falls back to credentials config file.
	Profile     string
	Credentials aws.CredentialsProvider
}

func NewClient(ctx context.Context, params *NewClientParams) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		func(lo *config.LoadOptions) error {
			if params.Region != "" {
				lo.Region = params.Region
			}
			if params.Profile != "" {
				lo.SharedConfigProfile = params.Profile
			}
			if params.Credentials != nil {
				lo.Credentials = params.Credentials
			}
			return nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("kinesis load config: %w", err)
	}

	svc := kinesis.NewFromConfig(cfg, func(opts *kinesis.Options) {
		if params.Endpoint != "" {
			opts.BaseEndpoint = ptr.New(params.Endpoint)
		}
	})

	return &Client{svc: svc}, nil
}

type Record struct {
	Key  string
	Data []byte
}

// PutRecords writes records in one request and returns the indexes of the
// records Kinesis rejected along with the first rejection reason.
func (c *Client) PutRecords(ctx context.Context, streamARN string, records []Record) (failed []int, reason string, err error) {
	entries := make([]types.PutRecordsRequestEntry, len(records))
	for i, e := range records {
		entries[i] = types.PutRecordsRequestEntry{Data: e.Data, PartitionKey: ptr.New(e.Key)}
	}

	out, err := c.svc.PutRecords(ctx, &kinesis.PutRecordsInput{
		Records:   entries,
		StreamARN: ptr.New(streamARN),
	})
	if err != nil {
		return nil, "", fmt.Errorf("put records: %w", err)
	}

	if aws.ToInt32(out.FailedRecordCount) == 0 {
		return nil, "", nil
	}
	for i, r := range out.Records {
		if r.ErrorCode != nil {
			failed = append(failed, i)
			if reason == "" {
				reason = aws.ToString(r.ErrorCode) + ": " + aws.ToString(r.ErrorMessage)
			}
		}
	}
	return failed, reason, nil
}

// DescribeStreamSummary returns the stream's status, e.g. ACTIVE.
func (c *Client) DescribeStreamSummary(ctx context.Context, streamARN string) (types.StreamStatus, error) {
	out, err := c.svc.DescribeStreamSummary(ctx, &kinesis.DescribeStreamSummaryInput{
		StreamARN: ptr.New(streamARN),
	})
	if err != nil {
		return "", fmt.Errorf("describe stream summary: %w", err)
	}
	return out.StreamDescriptionSummary.StreamStatus, nil
}

type CreateStreamParams struct {
	StreamName      string
	ShardCount      int
	MaxWaitDuration time.Duration
}

// CreateStream creates a stream and waits for it to become active. It returns
// the stream ARN.
func (c *Client) CreateStream(ctx context.Context, params *CreateStreamParams) (string, error) {
	if _, err := c.svc.CreateStream(ctx, &kinesis.CreateStreamInput{
		StreamName: &params.StreamName,
		ShardCount: ptr.New(int32(params.ShardCount)),
	}); err != nil {
		return "", fmt.Errorf("create stream: %w", err)
	}

	describeInput := &kinesis.DescribeStreamSummaryInput{StreamName: &params.StreamName}
	deadline := time.Now().Add(params.MaxWaitDuration)
	for {
		out, err := c.svc.DescribeStreamSummary(ctx, describeInput)
		if err != nil {
			return "", fmt.Errorf("create stream describe stream: %w", err)
		}
		summary := out.StreamDescriptionSummary
		if summary.StreamStatus == types.StreamStatusActive {
			if summary.StreamARN == nil {
				return "", fmt.Errorf("invalid stream description output: %+v", summary)
			}
			return *summary.StreamARN, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("stream %s not active after %s", params.StreamName, params.MaxWaitDuration)
		}

		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
