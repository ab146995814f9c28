package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/puppets/internal/runtime/channel"
	perrors "github.com/drblury/puppets/internal/runtime/errors"
	"github.com/drblury/puppets/internal/runtime/logging"
	"github.com/drblury/puppets/internal/runtime/metadata"
	"github.com/drblury/puppets/transport"
	"github.com/drblury/puppets/transport/transporttest"
)

type recorder struct {
	mu    sync.Mutex
	calls [][]any
}

func (r *recorder) handler(args ...any) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, args)
	return nil
}

func (r *recorder) Calls() [][]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]any(nil), r.calls...)
}

func (r *recorder) Len() int {
	return len(r.Calls())
}

func startNode(t *testing.T, pubSub *gochannel.GoChannel, nodeID string, cfg Config) (*channel.Channel, *Bridge) {
	t.Helper()

	ch := channel.NewRegistry().Channel(channel.GlobalChannel)
	cfg.NodeID = nodeID
	if cfg.Topic == "" {
		cfg.Topic = "puppets-events"
	}
	b, err := New(ch, pubSub, pubSub, cfg, logging.NopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-b.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("bridge did not start")
	}
	return ch, b
}

func newPubSub(t *testing.T) *gochannel.GoChannel {
	t.Helper()
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubSub.Close() })
	return pubSub
}

func TestNewValidatesArguments(t *testing.T) {
	ch := channel.NewRegistry().Channel("global")
	pub := &transporttest.Publisher{}
	sub := &transporttest.Subscriber{}
	log := logging.NopLogger()

	tests := []struct {
		name    string
		ch      *channel.Channel
		pub     message.Publisher
		sub     message.Subscriber
		cfg     Config
		log     logging.ServiceLogger
		wantErr error
	}{
		{"channel", nil, pub, sub, Config{Topic: "t"}, log, perrors.ErrChannelRequired},
		{"publisher", ch, nil, sub, Config{Topic: "t"}, log, perrors.ErrTransportRequired},
		{"subscriber", ch, pub, nil, Config{Topic: "t"}, log, perrors.ErrTransportRequired},
		{"topic", ch, pub, sub, Config{}, log, perrors.ErrTopicRequired},
		{"logger", ch, pub, sub, Config{Topic: "t"}, nil, perrors.ErrLoggerRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.ch, tt.pub, tt.sub, tt.cfg, tt.log)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewGeneratesNodeID(t *testing.T) {
	ch := channel.NewRegistry().Channel("global")
	b, err := New(ch, &transporttest.Publisher{}, &transporttest.Subscriber{}, Config{Topic: "t"}, logging.NopLogger())
	require.NoError(t, err)

	assert.Contains(t, b.NodeID(), "node-")
	assert.Equal(t, "t", b.Topic())
	assert.Same(t, ch, b.Channel())
}

func TestForwardPublishesWithMetadata(t *testing.T) {
	ch := channel.NewRegistry().Channel("global")
	pub := &transporttest.Publisher{}
	b, err := New(ch, pub, &transporttest.Subscriber{}, Config{NodeID: "node-a", Topic: "events"}, logging.NopLogger())
	require.NoError(t, err)

	require.Nil(t, b.forward("chat", "hi", 2))

	msgs := pub.Messages("events")
	require.Len(t, msgs, 1)
	md := metadata.FromWatermill(msgs[0].Metadata)
	assert.Equal(t, "chat", md.Event())
	assert.Equal(t, "global", md.Channel())
	assert.Equal(t, "node-a", md.Origin())
	assert.Equal(t, CodecJSON, md.Codec())
	assert.NotEmpty(t, md.CorrelationID())
	assert.NotEmpty(t, msgs[0].UUID)
	assert.JSONEq(t, `["hi",2]`, string(msgs[0].Payload))
	assert.Equal(t, uint64(1), b.Stats().Published)
}

func TestForwardHonoursEventFilter(t *testing.T) {
	ch := channel.NewRegistry().Channel("global")
	pub := &transporttest.Publisher{}
	b, err := New(ch, pub, &transporttest.Subscriber{}, Config{Topic: "events", Events: []string{"chat"}}, logging.NopLogger())
	require.NoError(t, err)

	assert.Nil(t, b.forward("presence", "alice"))
	assert.Nil(t, b.forward("chat", "hello"))
	assert.Nil(t, b.forward())

	assert.Len(t, pub.Messages("events"), 1)
}

func TestForwardReportsFailures(t *testing.T) {
	ch := channel.NewRegistry().Channel("global")
	pub := &transporttest.Publisher{Err: errors.New("broker down")}
	b, err := New(ch, pub, &transporttest.Subscriber{}, Config{Topic: "events"}, logging.NopLogger())
	require.NoError(t, err)

	result := b.forward("chat", "hello")
	failure, ok := result.(error)
	require.True(t, ok)
	assert.ErrorContains(t, failure, "broker down")

	result = b.forward("chat", func() {})
	_, ok = result.(error)
	assert.True(t, ok, "unencodable argument must fail")
	assert.Equal(t, uint64(2), b.Stats().Failed)
}

func TestForwardRejectsOversizedPayload(t *testing.T) {
	ch := channel.NewRegistry().Channel("global")
	pub := &transporttest.Publisher{}
	caps := transport.Capabilities{Name: "tiny", SupportsOrdering: true, MaxMessageSize: 4}
	b, err := New(ch, pub, &transporttest.Subscriber{}, Config{Topic: "events", Capabilities: caps}, logging.NopLogger())
	require.NoError(t, err)

	result := b.forward("chat", "far too long")
	failure, ok := result.(error)
	require.True(t, ok)
	assert.ErrorContains(t, failure, "exceeds tiny limit")
	assert.Empty(t, pub.Messages("events"))
}

func TestReceiveSkipsOwnOriginAndOtherChannels(t *testing.T) {
	ch := channel.NewRegistry().Channel("global")
	b, err := New(ch, &transporttest.Publisher{}, &transporttest.Subscriber{}, Config{NodeID: "node-a", Topic: "events"}, logging.NopLogger())
	require.NoError(t, err)

	rec := &recorder{}
	ch.Vent.On("chat", rec.handler)

	own := message.NewMessage("1", []byte(`["x"]`))
	own.Metadata = metadata.ToWatermill(metadata.ForEvent("global", "chat", "node-a", CodecJSON, ""))
	require.NoError(t, b.receive(own))

	other := message.NewMessage("2", []byte(`["x"]`))
	other.Metadata = metadata.ToWatermill(metadata.ForEvent("lobby", "chat", "node-b", CodecJSON, ""))
	require.NoError(t, b.receive(other))

	assert.Zero(t, rec.Len())
	assert.Equal(t, uint64(2), b.Stats().Skipped)
}

func TestReceiveUndecodable(t *testing.T) {
	ch := channel.NewRegistry().Channel("global")
	bad := func() *message.Message {
		msg := message.NewMessage("1", []byte(`not json`))
		msg.Metadata = metadata.ToWatermill(metadata.ForEvent("global", "chat", "node-b", CodecJSON, ""))
		return msg
	}

	t.Run("dropped without poison queue", func(t *testing.T) {
		b, err := New(ch, &transporttest.Publisher{}, &transporttest.Subscriber{}, Config{Topic: "events"}, logging.NopLogger())
		require.NoError(t, err)
		assert.NoError(t, b.receive(bad()))
		assert.Equal(t, uint64(1), b.Stats().Failed)
	})

	t.Run("returned with poison queue", func(t *testing.T) {
		b, err := New(ch, &transporttest.Publisher{}, &transporttest.Subscriber{}, Config{Topic: "events", PoisonQueue: "poison"}, logging.NopLogger())
		require.NoError(t, err)
		assert.Error(t, b.receive(bad()))
	})

	t.Run("missing event name", func(t *testing.T) {
		b, err := New(ch, &transporttest.Publisher{}, &transporttest.Subscriber{}, Config{Topic: "events", PoisonQueue: "poison"}, logging.NopLogger())
		require.NoError(t, err)
		assert.ErrorContains(t, b.receive(message.NewMessage("1", []byte(`[]`))), "no event name")
	})

	t.Run("unknown codec", func(t *testing.T) {
		b, err := New(ch, &transporttest.Publisher{}, &transporttest.Subscriber{}, Config{Topic: "events", PoisonQueue: "poison"}, logging.NopLogger())
		require.NoError(t, err)
		msg := message.NewMessage("1", []byte(`[]`))
		msg.Metadata = metadata.ToWatermill(metadata.ForEvent("global", "chat", "node-b", "xml", ""))
		assert.ErrorContains(t, b.receive(msg), "unknown bridge codec")
	})
}

func TestReceiveKeepsGoingWhenSubscriberFails(t *testing.T) {
	ch := channel.NewRegistry().Channel("global")
	b, err := New(ch, &transporttest.Publisher{}, &transporttest.Subscriber{}, Config{Topic: "events"}, logging.NopLogger())
	require.NoError(t, err)

	rec := &recorder{}
	ch.Vent.On("chat", func(...any) any { return errors.New("boom") })
	ch.Vent.On("chat", rec.handler)

	msg := message.NewMessage("1", []byte(`["x"]`))
	msg.Metadata = metadata.ToWatermill(metadata.ForEvent("global", "chat", "node-b", CodecJSON, ""))
	assert.NoError(t, b.receive(msg))
	assert.Equal(t, 1, rec.Len())
}

func TestRunTwiceFails(t *testing.T) {
	pubSub := newPubSub(t)
	_, b := startNode(t, pubSub, "node-a", Config{})

	assert.ErrorIs(t, b.Run(context.Background()), ErrAlreadyRunning)
}

func TestBridgeRelaysBetweenNodesWithoutEcho(t *testing.T) {
	for _, codec := range []Codec{JSONCodec{}, ProtoCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			pubSub := newPubSub(t)
			chA, bridgeA := startNode(t, pubSub, "node-a", Config{Codec: codec})
			chB, bridgeB := startNode(t, pubSub, "node-b", Config{Codec: codec})

			onA := &recorder{}
			onB := &recorder{}
			chA.Vent.On("chat", onA.handler)
			chB.Vent.On("chat", onB.handler)

			require.NoError(t, chA.Vent.Trigger("chat", "hi", 2, true))

			require.Eventually(t, func() bool { return onB.Len() == 1 }, 5*time.Second, 10*time.Millisecond)
			assert.Equal(t, []any{"hi", float64(2), true}, onB.Calls()[0])

			assert.Never(t, func() bool { return onA.Len() > 1 || onB.Len() > 1 }, 200*time.Millisecond, 20*time.Millisecond)
			assert.Equal(t, uint64(1), bridgeA.Stats().Published)
			assert.Zero(t, bridgeB.Stats().Published, "relayed events must not be published again")
			assert.Equal(t, uint64(1), bridgeB.Stats().Received)
		})
	}
}

func TestCloseStopsForwarding(t *testing.T) {
	ch := channel.NewRegistry().Channel("global")
	pubSub := newPubSub(t)
	b, err := New(ch, pubSub, pubSub, Config{Topic: "events"}, logging.NopLogger())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()
	<-b.Running()
	assert.Equal(t, 1, ch.Vent.Listeners("all"))

	require.NoError(t, b.Close())
	require.NoError(t, <-done)
	assert.Zero(t, ch.Vent.Listeners("all"))
}
