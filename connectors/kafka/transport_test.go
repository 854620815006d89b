package kafka_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"reduction.dev/ckptsink/connectors"
	"reduction.dev/ckptsink/connectors/kafka"
	"reduction.dev/ckptsink/sink"
)

type fakeProducer struct {
	mu         sync.Mutex
	records    []*kgo.Record
	produceErr error
	pingErr    error
	closed     bool
}

func (p *fakeProducer) ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	p.mu.Lock()
	defer p.mu.Unlock()
	results := make(kgo.ProduceResults, len(rs))
	for i, r := range rs {
		results[i] = kgo.ProduceResult{Record: r, Err: p.produceErr}
	}
	if p.produceErr == nil {
		p.records = append(p.records, rs...)
	}
	return results
}

func (p *fakeProducer) Ping(ctx context.Context) error { return p.pingErr }

func (p *fakeProducer) Close() { p.closed = true }

var subtask = sink.SubtaskIdentity{Index: 0, Parallelism: 1}

func TestTransport_DeliverAddsLabelHeader(t *testing.T) {
	ctx := context.Background()
	producer := &fakeProducer{}
	transport := kafka.NewTransportWithProducer(producer, "events")
	require.NoError(t, transport.Open(ctx, subtask))

	err := transport.Deliver(ctx, &connectors.Batch{Label: "job_0_0", Records: [][]byte{[]byte("a"), []byte("b")}})
	require.NoError(t, err)
	require.NoError(t, transport.Close())

	require.Len(t, producer.records, 2)
	for i, want := range []string{"a", "b"} {
		r := producer.records[i]
		assert.Equal(t, "events", r.Topic)
		assert.Equal(t, want, string(r.Value))
		assert.Equal(t, []kgo.RecordHeader{{Key: kafka.LabelHeader, Value: []byte("job_0_0")}}, r.Headers)
	}
	assert.True(t, producer.closed)
}

func TestTransport_ClassifiesProduceErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"retriable kafka error", kerr.NotLeaderForPartition, true},
		{"non-retriable kafka error", kerr.TopicAuthorizationFailed, false},
		{"network error", errors.New("connection reset"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			transport := kafka.NewTransportWithProducer(&fakeProducer{produceErr: tt.err}, "events")
			require.NoError(t, transport.Open(ctx, subtask))

			err := transport.Deliver(ctx, &connectors.Batch{Label: "job_0_0", Records: [][]byte{[]byte("a")}})
			require.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.retryable, connectors.IsRetryable(err))
		})
	}
}

func TestTransport_OpenFailsWhenBrokersUnreachable(t *testing.T) {
	transport := kafka.NewTransportWithProducer(&fakeProducer{pingErr: errors.New("dial tcp: refused")}, "events")
	err := transport.Open(context.Background(), subtask)
	assert.ErrorContains(t, err, "kafka brokers unreachable")
}

func TestTransport_DeliverBeforeOpenIsTerminal(t *testing.T) {
	transport := kafka.NewTransportWithProducer(&fakeProducer{}, "events")
	err := transport.Deliver(context.Background(), &connectors.Batch{Label: "x"})
	assert.False(t, connectors.IsRetryable(err))
}

func TestSinkConfig_Validate(t *testing.T) {
	assert.NoError(t, kafka.SinkConfig{Brokers: []string{"localhost:9092"}, Topic: "events"}.Validate())

	err := kafka.SinkConfig{Brokers: []string{""}}.Validate()
	assert.ErrorContains(t, err, "broker address cannot be empty")
	assert.ErrorContains(t, err, "topic is required")
	assert.ErrorContains(t, kafka.SinkConfig{Topic: "events"}.Validate(), "brokers are required")
}

func TestTransport_ProducesToKafka(t *testing.T) {
	integrationOnly(t)
	ctx := context.Background()
	cluster := startKafka(t)
	cluster.CreateTopic(ctx, "ckptsink-events")

	transport := kafka.NewTransport(kafka.SinkConfig{Brokers: []string{cluster.BrokerAddr}, Topic: "ckptsink-events"})
	require.NoError(t, transport.Open(ctx, subtask))
	defer transport.Close()

	batch := &connectors.Batch{Label: "job_0_0", Records: [][]byte{[]byte("one"), []byte("two")}}
	require.NoError(t, transport.Deliver(ctx, batch))

	records := cluster.Consume(ctx, "ckptsink-events", 2)
	var values []string
	for _, r := range records {
		values = append(values, string(r.Value))
	}
	assert.ElementsMatch(t, []string{"one", "two"}, values)
}
