// Package transport defines how ranks reach each other. Each transport
// implementation (channel, nats, kafka, rabbitmq, nats-jetstream) lives in
// its own sub-package and registers itself with the transport registry.
package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines a publisher and subscriber pair produced by a factory.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close closes both halves. A pub/sub that serves as both is closed once.
func (t Transport) Close() error {
	var err error
	if t.Subscriber != nil {
		err = t.Subscriber.Close()
	}
	if t.Publisher != nil && any(t.Publisher) != any(t.Subscriber) {
		if perr := t.Publisher.Close(); err == nil {
			err = perr
		}
	}
	return err
}

// Builder is the function signature for creating a transport from config.
// Each transport package provides a Builder function that can be registered.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the configuration values needed by transports.
// This interface allows transports to access only the config they need
// without depending on the full config package.
type Config interface {
	// GetTransport returns the transport name.
	GetTransport() string

	// GetJobID and GetRank identify the subscribing rank. Broker-side
	// names (consumer groups, durable queues) are derived from them.
	GetJobID() string
	GetRank() int

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaConsumerGroup() string

	// RabbitMQ
	GetRabbitMQURL() string

	// NATS
	GetNATSURL() string

	// Channel
	GetOutputBuffer() int
}

// CapabilitiesProvider is implemented by transports that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}
