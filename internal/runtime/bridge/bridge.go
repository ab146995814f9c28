// Package bridge relays the event bus of one channel across processes. Every
// node publishes what its local subscribers trigger and replays what other
// nodes publish, so subscribers on any node see the events of all of them.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/puppets/internal/runtime/channel"
	"github.com/drblury/puppets/internal/runtime/dispatch"
	perrors "github.com/drblury/puppets/internal/runtime/errors"
	"github.com/drblury/puppets/internal/runtime/ids"
	"github.com/drblury/puppets/internal/runtime/logging"
	"github.com/drblury/puppets/internal/runtime/metadata"
	"github.com/drblury/puppets/transport"
)

// ErrAlreadyRunning is returned by Run on a bridge that is running.
var ErrAlreadyRunning = errors.New("puppets: bridge already running")

// Config selects what a Bridge relays and where.
type Config struct {
	// NodeID identifies this process. Generated when empty.
	NodeID string
	// Topic carries the events. Nodes sharing a topic see each other.
	Topic string
	// Events limits the relayed event names. Empty relays every event.
	Events []string
	// Codec encodes arguments. Defaults to JSONCodec.
	Codec Codec
	// PoisonQueue, when set, receives messages that cannot be decoded.
	PoisonQueue string
	Retry       RetryConfig
	// Capabilities of the transport, used for warnings and size checks.
	Capabilities transport.Capabilities
	// Registerer, when set, receives the Watermill router metrics.
	Registerer prometheus.Registerer
}

// Stats counts the traffic of a bridge.
type Stats struct {
	Published uint64 `json:"published"`
	Received  uint64 `json:"received"`
	Skipped   uint64 `json:"skipped"`
	Failed    uint64 `json:"failed"`
}

// Bridge relays one channel over a Watermill publisher and subscriber.
type Bridge struct {
	channel    *channel.Channel
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     logging.ServiceLogger

	nodeID       string
	topic        string
	events       map[string]struct{}
	codec        Codec
	poisonQueue  string
	retry        RetryConfig
	capabilities transport.Capabilities

	router *message.Router

	mu       sync.Mutex
	outgoing dispatch.Subscription
	running  bool

	published atomic.Uint64
	received  atomic.Uint64
	skipped   atomic.Uint64
	failed    atomic.Uint64
}

// New wires ch to pub and sub. Nothing is relayed until Run is called.
func New(ch *channel.Channel, pub message.Publisher, sub message.Subscriber, cfg Config, logger logging.ServiceLogger) (*Bridge, error) {
	switch {
	case ch == nil:
		return nil, perrors.ErrChannelRequired
	case pub == nil || sub == nil:
		return nil, perrors.ErrTransportRequired
	case cfg.Topic == "":
		return nil, perrors.ErrTopicRequired
	case logger == nil:
		return nil, perrors.ErrLoggerRequired
	}

	if cfg.NodeID == "" {
		cfg.NodeID = ids.NodeID("")
	}
	if cfg.Codec == nil {
		cfg.Codec = JSONCodec{}
	}

	b := &Bridge{
		channel:      ch,
		publisher:    pub,
		subscriber:   sub,
		nodeID:       cfg.NodeID,
		topic:        cfg.Topic,
		codec:        cfg.Codec,
		poisonQueue:  cfg.PoisonQueue,
		retry:        cfg.Retry,
		capabilities: cfg.Capabilities,
	}
	if len(cfg.Events) > 0 {
		b.events = make(map[string]struct{}, len(cfg.Events))
		for _, event := range cfg.Events {
			b.events[event] = struct{}{}
		}
	}
	b.logger = logger.With(logging.LogFields{
		"channel": ch.Name(),
		"topic":   cfg.Topic,
		"node_id": cfg.NodeID,
	})

	if cfg.Capabilities.Name != "" && !cfg.Capabilities.SupportsOrdering {
		b.logger.Warn("Transport does not preserve event order", nil, logging.LogFields{
			"transport": cfg.Capabilities.Name,
		})
	}

	router, err := message.NewRouter(message.RouterConfig{}, logging.NewWatermillAdapter(b.logger))
	if err != nil {
		return nil, fmt.Errorf("create bridge router: %w", err)
	}
	if cfg.Registerer != nil {
		metrics.NewPrometheusMetricsBuilder(cfg.Registerer, "puppets", "bridge").AddPrometheusRouterMetrics(router)
	}
	if err := b.addMiddlewares(router); err != nil {
		return nil, err
	}
	router.AddNoPublisherHandler(
		"puppets-bridge-"+ch.Name(),
		cfg.Topic,
		sub,
		b.receive,
	)
	b.router = router
	return b, nil
}

func (b *Bridge) addMiddlewares(router *message.Router) error {
	mws := []message.HandlerMiddleware{
		CorrelationID(),
		LogMessages(b.logger),
		Tracer(),
	}
	if b.poisonQueue != "" {
		poison, err := PoisonQueue(b.publisher, b.poisonQueue)
		if err != nil {
			return fmt.Errorf("create poison queue middleware: %w", err)
		}
		mws = append(mws, poison)
	}
	mws = append(mws, Retry(b.retry, b.logger), Recoverer())
	router.AddMiddleware(mws...)
	return nil
}

// NodeID returns the origin stamped on published events.
func (b *Bridge) NodeID() string {
	return b.nodeID
}

// Topic returns the topic events travel on.
func (b *Bridge) Topic() string {
	return b.topic
}

// Channel returns the relayed channel.
func (b *Bridge) Channel() *channel.Channel {
	return b.channel
}

// Stats returns the traffic counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Received:  b.received.Load(),
		Skipped:   b.skipped.Load(),
		Failed:    b.failed.Load(),
	}
}

// Run starts relaying and blocks until ctx is done or Close is called.
func (b *Bridge) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return ErrAlreadyRunning
	}
	b.running = true
	b.outgoing = b.channel.Vent.On(dispatch.AllEvents, b.forward)
	b.mu.Unlock()

	defer b.stopForwarding()

	b.logger.Info("Bridge started", nil)
	if err := b.router.Run(ctx); err != nil {
		return fmt.Errorf("bridge router: %w", err)
	}
	return nil
}

// Running is closed once the bridge receives messages.
func (b *Bridge) Running() chan struct{} {
	return b.router.Running()
}

// Close stops relaying. It does not close the transport.
func (b *Bridge) Close() error {
	b.stopForwarding()
	return b.router.Close()
}

func (b *Bridge) stopForwarding() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outgoing.Off()
	b.outgoing = dispatch.Subscription{}
}

func (b *Bridge) forwarder() dispatch.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outgoing
}

func (b *Bridge) selected(event string) bool {
	if b.events == nil {
		return true
	}
	_, ok := b.events[event]
	return ok
}

// forward is subscribed to "all" on the channel, so args[0] is the event name.
func (b *Bridge) forward(args ...any) any {
	if len(args) == 0 {
		return nil
	}
	event, _ := args[0].(string)
	if event == "" || !b.selected(event) {
		return nil
	}

	payload, err := b.codec.Encode(args[1:])
	if err != nil {
		b.failed.Add(1)
		return fmt.Errorf("encode event %q: %w", event, err)
	}
	if !b.capabilities.Fits(len(payload)) {
		b.failed.Add(1)
		return fmt.Errorf("event %q: payload of %d bytes exceeds %s limit of %d",
			event, len(payload), b.capabilities.Name, b.capabilities.MaxMessageSize)
	}

	msg := message.NewMessage(ids.New(), payload)
	msg.Metadata = metadata.ToWatermill(metadata.ForEvent(
		b.channel.Name(), event, b.nodeID, b.codec.Name(), ids.New(),
	))
	if err := b.publisher.Publish(b.topic, msg); err != nil {
		b.failed.Add(1)
		return fmt.Errorf("publish event %q: %w", event, err)
	}
	b.published.Add(1)
	return nil
}

func (b *Bridge) receive(msg *message.Message) error {
	md := metadata.FromWatermill(msg.Metadata)
	if md.Origin() == b.nodeID || (md.Channel() != "" && md.Channel() != b.channel.Name()) {
		b.skipped.Add(1)
		return nil
	}
	fields := logging.LogFields{
		"event":          md.Event(),
		"origin":         md.Origin(),
		"message_uuid":   msg.UUID,
		"correlation_id": md.CorrelationID(),
	}

	args, err := b.decode(md, msg.Payload)
	if err != nil {
		b.failed.Add(1)
		if b.poisonQueue != "" {
			return err
		}
		b.logger.Warn("Dropping undecodable bridged event", err, fields)
		return nil
	}

	b.received.Add(1)
	if err := b.channel.Vent.TriggerExcept(b.forwarder(), md.Event(), args...); err != nil {
		b.logger.Warn("Bridged event subscriber failed", err, fields)
	}
	return nil
}

func (b *Bridge) decode(md metadata.Metadata, payload []byte) ([]any, error) {
	if md.Event() == "" {
		return nil, errors.New("message carries no event name")
	}
	codec := b.codec
	if name := md.Codec(); name != "" && name != codec.Name() {
		var err error
		if codec, err = CodecByName(name); err != nil {
			return nil, err
		}
	}
	args, err := codec.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("decode event %q: %w", md.Event(), err)
	}
	return args, nil
}
