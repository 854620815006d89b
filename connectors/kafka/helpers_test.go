package kafka_test

import (
	"context"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaCluster manages a test Kafka cluster in Docker and provides helpers.
type KafkaCluster struct {
	t          *testing.T
	BrokerAddr string
	client     *kgo.Client
	admin      *kadm.Client
}

// startKafka starts a Kafka docker container and returns a KafkaCluster.
func startKafka(t *testing.T) *KafkaCluster {
	containerName := "ckptsink-test-kafka"
	image := "apache/kafka-native:latest"
	brokerPort := "9092"

	exec.Command("docker", "rm", "-f", containerName).Run()

	cmd := exec.Command("docker", "run", "-d",
		"--name", containerName,
		"-p", brokerPort+":"+brokerPort,
		image,
	)
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "failed to start kafka docker: %s", string(output))
	t.Cleanup(func() {
		exec.Command("docker", "rm", "-f", containerName).Run()
	})

	brokerAddr := "localhost:" + brokerPort
	client, err := kgo.NewClient(kgo.SeedBrokers(brokerAddr))
	require.NoError(t, err, "failed to create kafka client")
	t.Cleanup(client.Close)

	return &KafkaCluster{
		t:          t,
		BrokerAddr: brokerAddr,
		client:     client,
		admin:      kadm.NewClient(client),
	}
}

// CreateTopic creates a topic with the given name and 2 partitions.
func (k *KafkaCluster) CreateTopic(ctx context.Context, topic string) {
	_, err := k.admin.CreateTopics(ctx, 2, -1, nil, topic)
	require.NoError(k.t, err, "failed to create topic with admin client")
}

// Consume reads records from the start of a topic until n are read.
func (k *KafkaCluster) Consume(ctx context.Context, topic string, n int) []*kgo.Record {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(k.BrokerAddr),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(k.t, err)
	defer client.Close()

	var records []*kgo.Record
	for len(records) < n {
		fetches := client.PollFetches(ctx)
		require.NoError(k.t, fetches.Err())
		records = append(records, fetches.Records()...)
	}
	return records
}

func integrationOnly(t *testing.T) {
	if os.Getenv("INTEGRATION") == "" && os.Getenv("INTEGRATION_KAFKA") == "" {
		t.Skip("integration-only")
	}
}
