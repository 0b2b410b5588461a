package transport

// Capabilities describes the features supported by a transport backend.
// Use this to introspect what operations are available at runtime.
type Capabilities struct {
	// SupportsOrdering indicates the transport delivers one publisher's
	// messages to a topic in publish order. The fabric restores order itself
	// when this is false.
	SupportsOrdering bool

	// SupportsTracing indicates the transport propagates tracing headers natively.
	SupportsTracing bool

	// SupportsBatching indicates the transport can batch multiple messages.
	SupportsBatching bool

	// SupportsAck indicates the transport supports explicit message acknowledgment.
	SupportsAck bool

	// SupportsNack indicates the transport supports negative acknowledgment (redelivery).
	SupportsNack bool

	// SupportsPartitioning indicates the transport supports message partitioning.
	SupportsPartitioning bool

	// Durable indicates messages published before a rank subscribes are
	// still delivered to it.
	Durable bool

	// MaxMessageSize is the maximum message size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64

	// Name is the human-readable name of the transport.
	Name string

	// Version is the transport/driver version.
	Version string
}

// SupportsReliableDelivery returns true if the transport supports at-least-once
// delivery semantics (ack + nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// RequiresReordering returns true if the receiver has to restore per-sender
// order from sequence numbers.
func (c Capabilities) RequiresReordering() bool {
	return !c.SupportsOrdering
}

// Fits reports whether an envelope of n bytes can be published in one message.
func (c Capabilities) Fits(n int) bool {
	return c.MaxMessageSize == 0 || int64(n) <= c.MaxMessageSize
}

// Predefined capability sets for the built-in transports.
var (
	// ChannelCapabilities for in-memory Go channel transport. Delivery goes
	// through one goroutine per message, so order is not preserved.
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: false,
		SupportsAck:      true,
		SupportsNack:     true,
		Durable:          false,
	}

	// KafkaCapabilities for Apache Kafka transport.
	KafkaCapabilities = Capabilities{
		Name:                 "kafka",
		SupportsOrdering:     true,
		SupportsTracing:      true,
		SupportsBatching:     true,
		SupportsAck:          true,
		SupportsNack:         false,
		SupportsPartitioning: true,
		Durable:              true,
		MaxMessageSize:       1048576, // Default 1MB
	}

	// RabbitMQCapabilities for RabbitMQ/AMQP transport.
	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsOrdering: true,
		SupportsTracing:  true,
		SupportsAck:      true,
		SupportsNack:     true,
		Durable:          true,
	}

	// NATSCapabilities for NATS Core transport.
	NATSCapabilities = Capabilities{
		Name:             "nats",
		SupportsOrdering: false,
		SupportsTracing:  true,
		SupportsAck:      false,
		SupportsNack:     false,
		Durable:          false,
		MaxMessageSize:   1048576, // Default 1MB
	}

	// NATSJetStreamCapabilities for NATS JetStream transport.
	NATSJetStreamCapabilities = Capabilities{
		Name:             "nats-jetstream",
		SupportsOrdering: true,
		SupportsTracing:  true,
		SupportsBatching: true,
		SupportsAck:      true,
		SupportsNack:     true,
		Durable:          true,
		MaxMessageSize:   1048576, // Default 1MB
	}
)

// GetCapabilities returns the capabilities for a transport by name.
// Uses the registry to look up capabilities registered by each transport package.
// Returns a zero Capabilities struct if the transport is unknown.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
