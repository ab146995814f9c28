package bridge

import (
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/puppets/internal/runtime/ids"
	"github.com/drblury/puppets/internal/runtime/logging"
	"github.com/drblury/puppets/internal/runtime/metadata"
)

// TracerName names the OpenTelemetry tracer used for received events.
const TracerName = "github.com/drblury/puppets/bridge"

// RetryConfig customises redelivery of messages whose handling failed.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = time.Second
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 16 * time.Second
	}
	return cfg
}

// CorrelationID adds a correlation id to messages that arrive without one.
func CorrelationID() message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			if msg.Metadata.Get(metadata.KeyCorrelationID) == "" {
				msg.Metadata.Set(metadata.KeyCorrelationID, ids.New())
			}
			return h(msg)
		}
	}
}

// LogMessages logs every received message at debug level.
func LogMessages(logger logging.ServiceLogger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			logger.Debug("Received bridged event", logging.LogFields{
				"message_uuid": msg.UUID,
				"payload":      string(msg.Payload),
				"metadata":     msg.Metadata,
			})
			return h(msg)
		}
	}
}

// Tracer wraps message handling in a consumer span.
func Tracer() message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			ctx, span := otel.Tracer(TracerName).Start(
				msg.Context(),
				"ReceiveEvent",
				trace.WithSpanKind(trace.SpanKindConsumer),
			)
			defer span.End()
			msg.SetContext(ctx)

			span.SetAttributes(
				attribute.String("message.uuid", msg.UUID),
				attribute.String("puppets.channel", msg.Metadata.Get(metadata.KeyChannel)),
				attribute.String("puppets.event", msg.Metadata.Get(metadata.KeyEvent)),
				attribute.String("puppets.origin", msg.Metadata.Get(metadata.KeyOrigin)),
			)
			return h(msg)
		}
	}
}

// Retry redelivers failed messages with exponential backoff.
func Retry(cfg RetryConfig, logger logging.ServiceLogger) message.HandlerMiddleware {
	normalized := cfg.withDefaults()
	return middleware.Retry{
		MaxRetries:      normalized.MaxRetries,
		InitialInterval: normalized.InitialInterval,
		MaxInterval:     normalized.MaxInterval,
		Multiplier:      2,
		Logger:          logging.NewWatermillAdapter(logger),
	}.Middleware
}

// PoisonQueue publishes messages that still fail after retries to topic.
func PoisonQueue(pub message.Publisher, topic string) (message.HandlerMiddleware, error) {
	return middleware.PoisonQueue(pub, topic)
}

// Recoverer turns handler panics into errors.
func Recoverer() message.HandlerMiddleware {
	return middleware.Recoverer
}
