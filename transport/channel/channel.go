// Package channel provides an in-memory Go channel transport for mpiflow.
// Every rank of a job has to share one pub/sub, so this transport serves
// jobs whose ranks all live in the current process.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/mpiflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

func init() {
	Register()
}

// Register registers the channel transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build creates a new Go channel transport.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	return New(cfg.GetOutputBuffer(), logger), nil
}

// New creates one pub/sub that all in-process ranks publish and subscribe on.
func New(outputBuffer int, logger watermill.LoggerAdapter) transport.Transport {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	pub, sub := Factory(gochannel.Config{OutputChannelBuffer: int64(outputBuffer)}, logger)
	return transport.Transport{
		Publisher:  pub,
		Subscriber: sub,
	}
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}
