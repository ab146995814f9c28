package runtime

import (
	"time"

	"github.com/drblury/puppets/internal/runtime/lifecycle"
	"github.com/drblury/puppets/internal/runtime/logging"
)

// LifecycleContext describes one lifecycle change of a puppet.
type LifecycleContext struct {
	// Puppet is the puppet name, Channel its local channel name.
	Puppet  string
	Channel string
	From    lifecycle.State
	To      lifecycle.State
	// Event is the local event that caused the change.
	Event string
	At    time.Time
}

// LifecycleHooks defines callbacks for lifecycle changes. All hooks are
// optional.
type LifecycleHooks struct {
	// OnTransition is called for every accepted transition, before the
	// state specific hook.
	OnTransition func(ctx LifecycleContext)

	OnStart    func(ctx LifecycleContext)
	OnReady    func(ctx LifecycleContext)
	OnStopping func(ctx LifecycleContext)
	OnStop     func(ctx LifecycleContext)

	// OnRejected is called when the table does not permit an event from the
	// current state. ctx.To equals ctx.From.
	OnRejected func(ctx LifecycleContext, err error)
}

// Merge combines two LifecycleHooks. The hooks from other are called after
// the hooks from h.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnTransition: chainHooks(h.OnTransition, other.OnTransition),
		OnStart:      chainHooks(h.OnStart, other.OnStart),
		OnReady:      chainHooks(h.OnReady, other.OnReady),
		OnStopping:   chainHooks(h.OnStopping, other.OnStopping),
		OnStop:       chainHooks(h.OnStop, other.OnStop),
		OnRejected:   chainRejectedHooks(h.OnRejected, other.OnRejected),
	}
}

func chainHooks(a, b func(LifecycleContext)) func(LifecycleContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx LifecycleContext) {
		a(ctx)
		b(ctx)
	}
}

func chainRejectedHooks(a, b func(LifecycleContext, error)) func(LifecycleContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx LifecycleContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

func (h LifecycleHooks) entered(ctx LifecycleContext) {
	if h.OnTransition != nil {
		h.OnTransition(ctx)
	}
	var hook func(LifecycleContext)
	switch ctx.To {
	case lifecycle.Started:
		hook = h.OnStart
	case lifecycle.Ready:
		hook = h.OnReady
	case lifecycle.Stopping:
		hook = h.OnStopping
	case lifecycle.Stopped:
		hook = h.OnStop
	}
	if hook != nil {
		hook(ctx)
	}
}

func (h LifecycleHooks) rejected(ctx LifecycleContext, err error) {
	if h.OnRejected != nil {
		h.OnRejected(ctx, err)
	}
}

// LoggingHooks returns hooks that log every transition at debug level and
// rejected events as warnings.
func LoggingHooks(logger logging.ServiceLogger) LifecycleHooks {
	return LifecycleHooks{
		OnTransition: func(ctx LifecycleContext) {
			logger.Debug("Puppet transition", logging.LogFields{
				"puppet": ctx.Puppet,
				"from":   string(ctx.From),
				"to":     string(ctx.To),
				"event":  ctx.Event,
			})
		},
		OnRejected: func(ctx LifecycleContext, err error) {
			logger.Warn("Puppet transition rejected", err, logging.LogFields{
				"puppet": ctx.Puppet,
				"state":  string(ctx.From),
				"event":  ctx.Event,
			})
		},
	}
}

// MetricsHooks returns hooks that record transitions on m.
func MetricsHooks(m *Metrics) LifecycleHooks {
	return LifecycleHooks{
		OnTransition: func(ctx LifecycleContext) {
			m.RecordTransition(ctx.Puppet, ctx.From, ctx.To)
		},
		OnRejected: func(ctx LifecycleContext, err error) {
			m.RecordRejected(ctx.Puppet)
		},
	}
}
