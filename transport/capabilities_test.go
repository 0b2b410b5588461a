package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilities_SupportsReliableDelivery(t *testing.T) {
	tests := []struct {
		name     string
		caps     Capabilities
		wantBool bool
	}{
		{name: "supports ack and nack", caps: Capabilities{SupportsAck: true, SupportsNack: true}, wantBool: true},
		{name: "supports ack only", caps: Capabilities{SupportsAck: true}, wantBool: false},
		{name: "supports nack only", caps: Capabilities{SupportsNack: true}, wantBool: false},
		{name: "supports neither", caps: Capabilities{}, wantBool: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantBool, tt.caps.SupportsReliableDelivery())
		})
	}
}

func TestCapabilities_RequiresReordering(t *testing.T) {
	assert.True(t, ChannelCapabilities.RequiresReordering())
	assert.True(t, NATSCapabilities.RequiresReordering())
	assert.False(t, KafkaCapabilities.RequiresReordering())
	assert.False(t, RabbitMQCapabilities.RequiresReordering())
}

func TestCapabilities_Fits(t *testing.T) {
	tests := []struct {
		name string
		caps Capabilities
		n    int
		want bool
	}{
		{"unlimited", Capabilities{}, 1 << 30, true},
		{"under limit", Capabilities{MaxMessageSize: 1024}, 1000, true},
		{"at limit", Capabilities{MaxMessageSize: 1024}, 1024, true},
		{"over limit", Capabilities{MaxMessageSize: 1024}, 1025, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.caps.Fits(tt.n))
		})
	}
}

func TestPredefinedCapabilities(t *testing.T) {
	t.Run("ChannelCapabilities", func(t *testing.T) {
		assert.Equal(t, "channel", ChannelCapabilities.Name)
		assert.True(t, ChannelCapabilities.SupportsAck)
		assert.True(t, ChannelCapabilities.SupportsNack)
		assert.False(t, ChannelCapabilities.Durable)
	})

	t.Run("KafkaCapabilities", func(t *testing.T) {
		assert.Equal(t, "kafka", KafkaCapabilities.Name)
		assert.True(t, KafkaCapabilities.SupportsOrdering)
		assert.True(t, KafkaCapabilities.SupportsPartitioning)
		assert.True(t, KafkaCapabilities.Durable)
		assert.Greater(t, KafkaCapabilities.MaxMessageSize, int64(0))
	})

	t.Run("RabbitMQCapabilities", func(t *testing.T) {
		assert.Equal(t, "rabbitmq", RabbitMQCapabilities.Name)
		assert.True(t, RabbitMQCapabilities.SupportsReliableDelivery())
		assert.True(t, RabbitMQCapabilities.Durable)
	})

	t.Run("NATSCapabilities", func(t *testing.T) {
		assert.Equal(t, "nats", NATSCapabilities.Name)
		assert.False(t, NATSCapabilities.SupportsAck)
		assert.False(t, NATSCapabilities.Durable)
	})

	t.Run("NATSJetStreamCapabilities", func(t *testing.T) {
		assert.Equal(t, "nats-jetstream", NATSJetStreamCapabilities.Name)
		assert.True(t, NATSJetStreamCapabilities.SupportsOrdering)
		assert.True(t, NATSJetStreamCapabilities.Durable)
	})
}

func TestGetCapabilities_PackageLevel(t *testing.T) {
	caps := GetCapabilities("nonexistent")
	assert.Equal(t, "nonexistent", caps.Name)
}

func TestCapabilities_ZeroValue(t *testing.T) {
	var caps Capabilities
	assert.False(t, caps.SupportsOrdering)
	assert.True(t, caps.RequiresReordering())
	assert.False(t, caps.SupportsReliableDelivery())
	assert.True(t, caps.Fits(1<<20))
}
