package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/flowgate/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBrokers(t *testing.T) {
	brokers, err := ParseBrokers(" a:9092, b:9092 ,,")
	require.NoError(t, err)
	assert.Equal(t, []string{"a:9092", "b:9092"}, brokers)

	_, err = ParseBrokers(" , ")
	require.Error(t, err)
}

func TestPartitionKey(t *testing.T) {
	msg := message.NewMessage("m-1", nil)
	msg.Metadata.Set(events.EventMetadataKey, "exec-1")

	key, err := partitionKey(events.Topic, msg)
	require.NoError(t, err)
	assert.Equal(t, "exec-1", key)
}

func TestCreateChannel_NoBrokers(t *testing.T) {
	_, _, err := CreateChannel(nil, nil, "flowgate")
	require.Error(t, err)
}
