package channel

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/mpiflow/transport"
)

func TestRegister(t *testing.T) {
	transport.DefaultRegistry = transport.NewRegistry()
	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "channel", caps.Name)
	assert.True(t, caps.SupportsAck)
	assert.True(t, caps.SupportsNack)
	assert.False(t, caps.Durable)
}

func TestCapabilities(t *testing.T) {
	caps := Capabilities()
	assert.Equal(t, transport.ChannelCapabilities, caps)
	assert.Equal(t, "channel", caps.Name)
}

func TestBuild(t *testing.T) {
	t.Run("creates transport with default factory", func(t *testing.T) {
		cfg := &mockConfig{}
		tr, err := Build(context.Background(), cfg, watermill.NopLogger{})

		require.NoError(t, err)
		assert.NotNil(t, tr.Publisher)
		assert.NotNil(t, tr.Subscriber)
		assert.NoError(t, tr.Close())
	})

	t.Run("uses custom factory", func(t *testing.T) {
		originalFactory := Factory
		defer func() { Factory = originalFactory }()

		mockPub := &mockPublisher{}
		mockSub := &mockSubscriber{}
		var got gochannel.Config
		Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
			got = cfg
			return mockPub, mockSub
		}

		cfg := &mockConfig{outputBuffer: 16}
		tr, err := Build(context.Background(), cfg, watermill.NopLogger{})

		require.NoError(t, err)
		assert.Equal(t, mockPub, tr.Publisher)
		assert.Equal(t, mockSub, tr.Subscriber)
		assert.Equal(t, int64(16), got.OutputChannelBuffer)
	})
}

func TestNewDeliversBetweenTopics(t *testing.T) {
	tr := New(0, nil)
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := tr.Subscriber.Subscribe(ctx, "job.rank.1")
	require.NoError(t, err)

	require.NoError(t, tr.Publisher.Publish("job.rank.1", message.NewMessage("id-1", []byte("hello"))))

	select {
	case msg := <-msgs:
		assert.Equal(t, []byte("hello"), []byte(msg.Payload))
		msg.Ack()
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestTransportName(t *testing.T) {
	assert.Equal(t, "channel", TransportName)
}

type mockConfig struct {
	outputBuffer int
}

func (m *mockConfig) GetTransport() string          { return "channel" }
func (m *mockConfig) GetJobID() string              { return "job" }
func (m *mockConfig) GetRank() int                  { return 0 }
func (m *mockConfig) GetKafkaBrokers() []string     { return nil }
func (m *mockConfig) GetKafkaConsumerGroup() string { return "" }
func (m *mockConfig) GetRabbitMQURL() string        { return "" }
func (m *mockConfig) GetNATSURL() string            { return "" }
func (m *mockConfig) GetOutputBuffer() int          { return m.outputBuffer }

type mockPublisher struct{}

func (m *mockPublisher) Publish(topic string, messages ...*message.Message) error { return nil }
func (m *mockPublisher) Close() error                                             { return nil }

type mockSubscriber struct{}

func (m *mockSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return make(chan *message.Message), nil
}
func (m *mockSubscriber) Close() error { return nil }
