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

	"github.com/drblury/puppets/transport"
)

type emptyConfig struct{ transport.Config }

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.Equal(t, transport.ChannelCapabilities, transport.DefaultRegistry.Capabilities(TransportName))
}

func TestBuildDeliversMessages(t *testing.T) {
	tr, err := Build(context.Background(), emptyConfig{}, watermill.NopLogger{})
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	messages, err := tr.Subscriber.Subscribe(ctx, "puppets.events")
	require.NoError(t, err)

	require.NoError(t, tr.Publisher.Publish("puppets.events", message.NewMessage("1", []byte(`[]`))))

	select {
	case msg := <-messages:
		assert.Equal(t, "1", msg.UUID)
		msg.Ack()
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
}

func TestSharedFactory(t *testing.T) {
	original := Factory
	defer func() { Factory = original }()

	Factory = Shared(watermill.NopLogger{})
	a, err := Build(context.Background(), emptyConfig{}, watermill.NopLogger{})
	require.NoError(t, err)
	b, err := Build(context.Background(), emptyConfig{}, watermill.NopLogger{})
	require.NoError(t, err)

	assert.Same(t, a.Publisher, b.Publisher)
	_ = a.Close()
}

func TestCustomFactory(t *testing.T) {
	original := Factory
	defer func() { Factory = original }()

	var gotBuffer int64
	Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
		gotBuffer = cfg.OutputChannelBuffer
		ps := gochannel.NewGoChannel(cfg, logger)
		return ps, ps
	}

	_, err := Build(context.Background(), emptyConfig{}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.EqualValues(t, OutputBuffer, gotBuffer)
}
