package dispatch

import (
	"fmt"
	"time"

	perrors "github.com/drblury/puppets/internal/runtime/errors"
)

// Commands dispatches fire-and-forget commands to a single handler per name.
// The zero value is ready to use.
type Commands struct {
	channel  string
	observer Observer
	table    handlerTable
}

// NewCommands returns a dispatcher reporting to observer under channel.
func NewCommands(channel string, observer Observer) *Commands {
	return &Commands{channel: channel, observer: observer}
}

// SetHandler registers fn for name, replacing any previous handler. A nil fn
// removes the handler.
func (c *Commands) SetHandler(name string, fn Handler) {
	c.table.set(name, fn)
}

// SetHandlers registers every entry of handlers.
func (c *Commands) SetHandlers(handlers map[string]Handler) {
	c.table.setAll(handlers)
}

func (c *Commands) HasHandler(name string) bool {
	_, ok := c.table.get(name)
	return ok
}

func (c *Commands) RemoveHandler(name string) bool {
	return c.table.remove(name)
}

func (c *Commands) RemoveAllHandlers() {
	c.table.reset()
}

// Names returns the registered command names, sorted.
func (c *Commands) Names() []string {
	return c.table.names()
}

// Execute runs the handler registered for name. It returns an error wrapping
// ErrUnhandledCommand when none is registered, and a HandlerError when the
// handler panics or returns an error.
func (c *Commands) Execute(name string, args ...any) error {
	started := time.Now()
	fn, ok := c.table.get(name)
	if !ok {
		err := fmt.Errorf("%w: %q", perrors.ErrUnhandledCommand, name)
		observe(c.observer, Dispatch{Channel: c.channel, Kind: KindCommand, Name: name, Err: err})
		return err
	}

	_, err := invoke(KindCommand, name, fn, args)
	observe(c.observer, Dispatch{
		Channel:  c.channel,
		Kind:     KindCommand,
		Name:     name,
		Handlers: 1,
		Duration: time.Since(started),
		Err:      err,
	})
	return err
}
