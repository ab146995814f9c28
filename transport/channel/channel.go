// Package channel provides the in-memory Watermill transport. Every bridge
// built from one pub/sub instance shares its messages, which makes it the
// transport of choice for tests and single-process deployments.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/puppets/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// OutputBuffer is the per-subscriber buffer of the default pub/sub.
const OutputBuffer = 64

// Factory allows overriding the pub/sub creation, for example to let several
// bridges in one test share one instance.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build creates a new in-memory transport.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	pub, sub := Factory(gochannel.Config{OutputChannelBuffer: OutputBuffer}, logger)
	return transport.Transport{Publisher: pub, Subscriber: sub}, nil
}

// Shared returns a Factory that hands out the same pub/sub on every call.
func Shared(logger watermill.LoggerAdapter) func(gochannel.Config, watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: OutputBuffer}, logger)
	return func(gochannel.Config, watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
		return pubSub, pubSub
	}
}
