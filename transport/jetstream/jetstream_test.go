package jetstream

import (
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"

	"github.com/drblury/mpiflow/transport"
)

func TestRegister(t *testing.T) {
	transport.DefaultRegistry = transport.NewRegistry()
	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "nats-jetstream", caps.Name)
	assert.True(t, caps.Durable)
	assert.True(t, caps.SupportsOrdering)
	assert.True(t, caps.SupportsTracing)
}

func TestCapabilities(t *testing.T) {
	caps := Capabilities()
	assert.Equal(t, transport.NATSJetStreamCapabilities, caps)
	assert.Equal(t, "nats-jetstream", caps.Name)

	var _ transport.CapabilitiesProvider = (*Transport)(nil)
}

func TestTransportName(t *testing.T) {
	assert.Equal(t, "nats-jetstream", TransportName)
}

func TestConfig_withDefaults(t *testing.T) {
	t.Run("empty config gets defaults", func(t *testing.T) {
		result := Config{}.withDefaults()

		assert.Equal(t, "MPIFLOW", result.StreamName)
		assert.Equal(t, DefaultMaxDeliver, result.MaxDeliver)
		assert.Equal(t, DefaultAckWait, result.AckWait)
		assert.Equal(t, DefaultMaxAge, result.MaxAge)
		assert.Equal(t, 1, result.Replicas)
	})

	t.Run("custom values preserved", func(t *testing.T) {
		cfg := Config{
			URL:             "nats://localhost:4222",
			StreamName:      "CUSTOM",
			MaxDeliver:      5,
			AckWait:         time.Minute,
			MaxAge:          2 * time.Hour,
			Replicas:        3,
			RetentionPolicy: "workqueue",
		}
		assert.Equal(t, cfg, cfg.withDefaults())
	})

	t.Run("negative values get defaults", func(t *testing.T) {
		result := Config{MaxDeliver: -1, AckWait: -1, MaxAge: -1, Replicas: -1}.withDefaults()

		assert.Equal(t, DefaultMaxDeliver, result.MaxDeliver)
		assert.Equal(t, DefaultAckWait, result.AckWait)
		assert.Equal(t, DefaultMaxAge, result.MaxAge)
		assert.Equal(t, 1, result.Replicas)
	})
}

func TestStreamConfig(t *testing.T) {
	tests := []struct {
		policy string
		want   nats.RetentionPolicy
	}{
		{"", nats.LimitsPolicy},
		{"limits", nats.LimitsPolicy},
		{"interest", nats.InterestPolicy},
		{"workqueue", nats.WorkQueuePolicy},
	}

	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			sc := Config{RetentionPolicy: tt.policy}.withDefaults().streamConfig()
			assert.Equal(t, tt.want, sc.Retention)
			assert.Equal(t, []string{"MPIFLOW.>"}, sc.Subjects)
		})
	}
}

func TestConsumerConfig(t *testing.T) {
	cc := Config{}.withDefaults().consumerConfig("job.rank.2")

	assert.Equal(t, "inbox_job_rank_2", cc.Durable)
	assert.Equal(t, "MPIFLOW.job.rank.2", cc.FilterSubject)
	assert.Equal(t, nats.DeliverAllPolicy, cc.DeliverPolicy)
	assert.Equal(t, nats.AckExplicitPolicy, cc.AckPolicy)
}

func TestToWatermill(t *testing.T) {
	t.Run("uses message id header", func(t *testing.T) {
		msg := &nats.Msg{Data: []byte("payload"), Header: nats.Header{}}
		msg.Header.Set(nats.MsgIdHdr, "01JABC")
		msg.Header.Set("trace", "t-1")

		wm := toWatermill(msg)
		assert.Equal(t, "01JABC", wm.UUID)
		assert.Equal(t, message.Payload("payload"), wm.Payload)
		assert.Equal(t, "t-1", wm.Metadata.Get("trace"))
		assert.Empty(t, wm.Metadata.Get(nats.MsgIdHdr))
	})

	t.Run("generates an id when missing", func(t *testing.T) {
		wm := toWatermill(&nats.Msg{Data: []byte("x"), Header: nats.Header{}})
		assert.NotEmpty(t, wm.UUID)
	})
}
