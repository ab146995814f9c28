// Package jetstream provides a NATS JetStream transport. Each node consumes
// through its own durable consumer, so bridged events survive a short
// subscriber outage and every node still sees every event.
package jetstream

import (
	"context"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/drblury/puppets/transport"
	natstransport "github.com/drblury/puppets/transport/nats"
)

// TransportName is the name used to register this transport.
const TransportName = "nats-jetstream"

const (
	// DefaultMaxDeliver is the number of delivery attempts before JetStream
	// gives up on a message.
	DefaultMaxDeliver = 3

	// DefaultAckWait is how long JetStream waits for an ack before
	// redelivering.
	DefaultAckWait = 30 * time.Second

	durablePrefix = "puppets"
)

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.JetStreamCapabilities)
}

// DurableName returns the durable consumer name for a node and topic.
// JetStream rejects dots and spaces in consumer names.
func DurableName(node, topic string) string {
	replacer := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")
	name := durablePrefix
	if node != "" {
		name += "_" + node
	}
	return replacer.Replace(name + "_" + topic)
}

// Build creates a JetStream transport.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetNATSURL()
	if url == "" {
		url = nc.DefaultURL
	}
	node := cfg.GetNodeID()
	marshaler := &nats.NATSMarshaler{}
	options := natstransport.ConnectionOptions(cfg)

	publisher, err := PublisherFactory(
		nats.PublisherConfig{
			URL:         url,
			NatsOptions: options,
			Marshaler:   marshaler,
			JetStream: nats.JetStreamConfig{
				AutoProvision: true,
				TrackMsgId:    true,
			},
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(
		nats.SubscriberConfig{
			URL:         url,
			NatsOptions: options,
			Unmarshaler: marshaler,
			JetStream: nats.JetStreamConfig{
				AutoProvision: true,
				SubscribeOptions: []nc.SubOpt{
					nc.DeliverNew(),
					nc.AckExplicit(),
					nc.MaxDeliver(DefaultMaxDeliver),
					nc.AckWait(DefaultAckWait),
				},
				DurableCalculator: func(_ string, topic string) string {
					return DurableName(node, topic)
				},
			},
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{Publisher: publisher, Subscriber: subscriber}, nil
}
