package jetstream

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/puppets/transport"
	"github.com/drblury/puppets/transport/transporttest"
)

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	caps := transport.DefaultRegistry.Capabilities(TransportName)
	assert.True(t, caps.SupportsOrdering)
	assert.True(t, caps.SupportsReliableDelivery())
}

func TestDurableName(t *testing.T) {
	assert.Equal(t, "puppets_node-a_puppets-events", DurableName("node-a", "puppets-events"))
	assert.Equal(t, "puppets_puppets_global", DurableName("", "puppets.global"))
	assert.Equal(t, "puppets_n_1_a_b", DurableName("n.1", "a b"))
}

func TestBuild(t *testing.T) {
	originalPub, originalSub := PublisherFactory, SubscriberFactory
	defer func() {
		PublisherFactory = originalPub
		SubscriberFactory = originalSub
	}()

	pub, sub := &transporttest.Publisher{}, &transporttest.Subscriber{}
	PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		assert.Equal(t, nc.DefaultURL, cfg.URL)
		assert.False(t, cfg.JetStream.Disabled)
		assert.True(t, cfg.JetStream.AutoProvision)
		return pub, nil
	}
	SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		assert.False(t, cfg.JetStream.Disabled)
		assert.Len(t, cfg.JetStream.SubscribeOptions, 4)
		require.NotNil(t, cfg.JetStream.DurableCalculator)
		assert.Equal(t, "puppets_node-b_events", cfg.JetStream.DurableCalculator("", "events"))
		return sub, nil
	}

	tr, err := Build(context.Background(), &transporttest.Config{NodeID: "node-b"}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Same(t, pub, tr.Publisher)
	assert.Same(t, sub, tr.Subscriber)
}

func TestBuildSubscriberError(t *testing.T) {
	originalPub, originalSub := PublisherFactory, SubscriberFactory
	defer func() {
		PublisherFactory = originalPub
		SubscriberFactory = originalSub
	}()

	pub := &transporttest.Publisher{}
	PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return pub, nil
	}
	SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return nil, errors.New("stream unavailable")
	}

	_, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
	assert.ErrorContains(t, err, "stream unavailable")
	assert.True(t, pub.Closed)
}
