// Package channel provides an in-memory transport for sqsbinder. Messages move
// over Go channels and topology is recorded by an in-memory broker, so the
// binder can run without AWS in tests and local development. Only the direct
// mode is supported: there is no topic layer to fan out from.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/sqsbinder/internal/runtime/broker"
	"github.com/drblury/sqsbinder/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

// BrokerFactory allows sharing one in-memory broker between transports.
var BrokerFactory = func() broker.Client {
	return broker.NewMemory()
}

func init() {
	Register()
}

// Register adds the transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build creates a new Go channel transport. Queues are persistent, so
// messages published before a consumer subscribes are still delivered.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	pub, sub := Factory(gochannel.Config{Persistent: true}, logger)
	return transport.Transport{
		Broker:     BrokerFactory(),
		Publisher:  pub,
		Subscriber: sub,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}
