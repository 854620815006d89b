// Package kafka produces batch records to a Kafka topic with franz-go. Each
// record carries its batch label in a header so consumers can discard
// redelivered duplicates.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"reduction.dev/ckptsink/connectors"
	"reduction.dev/ckptsink/sink"
)

// LabelHeader is the record header holding the batch label.
const LabelHeader = "ckptsink-label"

// Producer is the part of *kgo.Client the transport uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Ping(ctx context.Context) error
	Close()
}

type Transport struct {
	newProducer func() (Producer, error)
	producer    Producer
	topic       string
}

// NewTransport creates a transport that connects to brokers on Open.
func NewTransport(config SinkConfig) *Transport {
	clientID := config.ClientID
	if clientID == "" {
		clientID = "ckptsink"
	}
	return &Transport{
		topic: config.Topic,
		newProducer: func() (Producer, error) {
			return kgo.NewClient(
				kgo.SeedBrokers(config.Brokers...),
				kgo.ClientID(clientID),
				kgo.DefaultProduceTopic(config.Topic),
				kgo.RequiredAcks(kgo.AllISRAcks()),
			)
		},
	}
}

// NewTransportWithProducer uses an existing producer, typically a fake.
func NewTransportWithProducer(producer Producer, topic string) *Transport {
	return &Transport{
		topic:       topic,
		newProducer: func() (Producer, error) { return producer, nil },
	}
}

func (t *Transport) Open(ctx context.Context, identity sink.SubtaskIdentity) error {
	producer, err := t.newProducer()
	if err != nil {
		return fmt.Errorf("failed to create Kafka client: %w", err)
	}
	t.producer = producer

	if err := producer.Ping(ctx); err != nil {
		return fmt.Errorf("kafka brokers unreachable: %w", err)
	}
	return nil
}

func (t *Transport) Deliver(ctx context.Context, batch *connectors.Batch) error {
	if t.producer == nil {
		return connectors.NewTerminalError(errors.New("kafka transport not open"))
	}

	records := make([]*kgo.Record, len(batch.Records))
	for i, data := range batch.Records {
		records[i] = &kgo.Record{
			Topic:   t.topic,
			Value:   data,
			Headers: []kgo.RecordHeader{{Key: LabelHeader, Value: []byte(batch.Label)}},
		}
	}

	if err := t.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		err = fmt.Errorf("kafka produce batch %s: %w", batch.Label, err)
		if isTerminal(err) {
			return connectors.NewTerminalError(err)
		}
		return connectors.NewRetryableError(err)
	}
	return nil
}

func (t *Transport) Close() error {
	if t.producer != nil {
		t.producer.Close()
	}
	return nil
}

// isTerminal reports Kafka protocol errors that retrying will not fix, like
// authorization failures or oversized records.
func isTerminal(err error) bool {
	var kafkaErr *kerr.Error
	if errors.As(err, &kafkaErr) {
		return !kerr.IsRetriable(kafkaErr)
	}
	return false
}

var _ connectors.Transport = (*Transport)(nil)
