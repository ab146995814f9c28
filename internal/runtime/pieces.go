package runtime

import (
	"sync"

	"github.com/drblury/puppets/internal/runtime/actions"
	"github.com/drblury/puppets/internal/runtime/channel"
	"github.com/drblury/puppets/internal/runtime/dispatch"
	"github.com/drblury/puppets/internal/runtime/logging"
)

// PieceContext is handed to every piece of a puppet. Local is the puppet's
// own channel; pieces trigger on it directly or through their own bus.
type PieceContext struct {
	Name        string
	PuppetName  string
	ChannelName string
	Local       *channel.Channel
	Global      *channel.Channel
	Values      map[string]any
	Logger      logging.ServiceLogger
}

// PieceFactory builds one declared piece. A piece may be any value; the
// optional interfaces below decide how the puppet wires it.
type PieceFactory func(ctx PieceContext) (any, error)

// Linker receives the context of the puppet it is attached to.
type Linker interface {
	Link(ctx PieceContext)
}

// LocalEventer declares handlers bound to the puppet's local channel. Named
// references resolve against the piece when it implements actions.Resolver.
type LocalEventer interface {
	LocalEvents() actions.Group
}

// Emitter exposes an event bus. Every event triggered on it is forwarded to
// the puppet's local vent as "<event>:<piece name>".
type Emitter interface {
	Events() *dispatch.Vent
}

// Closer and Remover shut a piece down when its puppet stops. Close is
// preferred when a piece implements both.
type Closer interface {
	Close() error
}

type Remover interface {
	Remove()
}

// Component is an embeddable piece base: it keeps its context, owns a bus and
// resolves actions added with AddAction.
type Component struct {
	PieceContext

	busOnce sync.Once
	bus     *dispatch.Vent

	mu      sync.RWMutex
	actions actions.Table
}

// Link stores ctx.
func (c *Component) Link(ctx PieceContext) {
	c.PieceContext = ctx
}

// Events returns the component's own bus.
func (c *Component) Events() *dispatch.Vent {
	c.busOnce.Do(func() {
		c.bus = dispatch.NewVent(c.Name, nil)
	})
	return c.bus
}

// Trigger raises event on the component's own bus.
func (c *Component) Trigger(event string, args ...any) error {
	return c.Events().Trigger(event, args...)
}

// AddAction makes fn resolvable under name by the component's local events.
func (c *Component) AddAction(name string, fn dispatch.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.actions == nil {
		c.actions = make(actions.Table)
	}
	c.actions[name] = fn
}

func (c *Component) Action(name string) (dispatch.Handler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.actions.Action(name)
}

// Close announces "close" on the component's bus.
func (c *Component) Close() error {
	return c.Trigger("close")
}

// ComponentFactory returns a factory building a bare Component.
func ComponentFactory() PieceFactory {
	return func(PieceContext) (any, error) {
		return &Component{}, nil
	}
}

func shutdownPiece(piece any) error {
	switch p := piece.(type) {
	case Closer:
		return p.Close()
	case Remover:
		p.Remove()
	}
	return nil
}
