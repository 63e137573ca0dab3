//go:build integration

package kafka_test

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/flowgate/pkg/channels/kafka"
	"github.com/dukex/flowgate/pkg/eventbus"
	"github.com/dukex/flowgate/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func setupKafka(t *testing.T) []string {
	t.Helper()

	ctx := context.Background()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("flowgate-test"))
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, container.Terminate(context.Background()))
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0

	admin, err := sarama.NewClusterAdmin(brokers, config)
	require.NoError(t, err)

	defer func() { _ = admin.Close() }()

	require.NoError(t, admin.CreateTopic(events.Topic, &sarama.TopicDetail{
		NumPartitions:     3,
		ReplicationFactor: 1,
	}, false))

	return brokers
}

func TestKafkaChannel_DeliversRunEvents(t *testing.T) {
	brokers := setupKafka(t)

	pub, sub, err := kafka.CreateChannel(watermill.NopLogger{}, brokers, "flowgate-it")
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, nil)
	t.Cleanup(func() { _ = bus.Close() })

	received := make(chan *events.RunPaused, 1)

	require.NoError(t, bus.Handle(events.RunPausedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.RunPaused)

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	published := events.RunPaused{
		BaseEvent:  events.NewBaseEvent(events.RunPausedEvent, "refunds", "exec-1"),
		NodeID:     "review",
		ApprovalID: "exec-1:review",
	}
	require.NoError(t, bus.Publish(ctx, published.Key(), published))

	select {
	case event := <-received:
		assert.Equal(t, "exec-1", event.ExecutionID)
		assert.Equal(t, "exec-1:review", event.ApprovalID)
	case <-time.After(60 * time.Second):
		t.Fatal("event was not delivered")
	}
}
