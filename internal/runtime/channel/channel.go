// Package channel keeps the process-wide table of named channels. Every name
// maps to exactly one Channel, and therefore one dispatcher triad, for the
// lifetime of its registry.
package channel

import "github.com/drblury/puppets/internal/runtime/dispatch"

const (
	// RootChannel is used when a caller asks for the empty name.
	RootChannel = "root"
	// GlobalChannel is shared by every puppet of an application.
	GlobalChannel = "global"
)

// Channel is a named bundle of an event bus, a command dispatcher and a
// request/response dispatcher.
type Channel struct {
	name string
	*dispatch.Triad
	onReset func(*Channel)
}

// Name returns the registry key of the channel.
func (c *Channel) Name() string {
	return c.name
}

// ConnectEvents subscribes each handler to the event it is keyed by.
func (c *Channel) ConnectEvents(handlers map[string]dispatch.Handler) *Channel {
	for event, fn := range handlers {
		c.Vent.On(event, fn)
	}
	return c
}

// ConnectCommands registers each handler as the command it is keyed by,
// replacing existing handlers.
func (c *Channel) ConnectCommands(handlers map[string]dispatch.Handler) *Channel {
	c.Commands.SetHandlers(handlers)
	return c
}

// ConnectRequests registers each handler as the request it is keyed by,
// replacing existing handlers.
func (c *Channel) ConnectRequests(handlers map[string]dispatch.Handler) *Channel {
	c.Reqres.SetHandlers(handlers)
	return c
}

// Reset removes every subscriber and handler but keeps the channel registered.
func (c *Channel) Reset() {
	c.Triad.Reset()
	if c.onReset != nil {
		c.onReset(c)
	}
}
