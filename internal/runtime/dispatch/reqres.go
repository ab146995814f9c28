package dispatch

import (
	"fmt"
	"time"

	perrors "github.com/drblury/puppets/internal/runtime/errors"
)

// Reqres answers named requests with the value returned by the single
// handler registered for each name. The zero value is ready to use.
type Reqres struct {
	channel  string
	observer Observer
	table    handlerTable
}

// NewReqres returns a dispatcher reporting to observer under channel.
func NewReqres(channel string, observer Observer) *Reqres {
	return &Reqres{channel: channel, observer: observer}
}

// SetHandler registers fn for name, replacing any previous handler. A nil fn
// removes the handler.
func (r *Reqres) SetHandler(name string, fn Handler) {
	r.table.set(name, fn)
}

// SetHandlers registers every entry of handlers.
func (r *Reqres) SetHandlers(handlers map[string]Handler) {
	r.table.setAll(handlers)
}

func (r *Reqres) HasHandler(name string) bool {
	_, ok := r.table.get(name)
	return ok
}

func (r *Reqres) RemoveHandler(name string) bool {
	return r.table.remove(name)
}

func (r *Reqres) RemoveAllHandlers() {
	r.table.reset()
}

// Names returns the registered request names, sorted.
func (r *Reqres) Names() []string {
	return r.table.names()
}

// Request returns the value produced by the handler registered for name.
// Missing handlers yield an error wrapping ErrUnhandledRequest. A handler that
// returns an error value, or panics, yields a HandlerError.
func (r *Reqres) Request(name string, args ...any) (any, error) {
	started := time.Now()
	fn, ok := r.table.get(name)
	if !ok {
		err := fmt.Errorf("%w: %q", perrors.ErrUnhandledRequest, name)
		observe(r.observer, Dispatch{Channel: r.channel, Kind: KindRequest, Name: name, Err: err})
		return nil, err
	}

	result, err := invoke(KindRequest, name, fn, args)
	observe(r.observer, Dispatch{
		Channel:  r.channel,
		Kind:     KindRequest,
		Name:     name,
		Handlers: 1,
		Duration: time.Since(started),
		Err:      err,
	})
	return result, err
}

// RequestBool is a convenience for requests answering with a bool, such as
// the lifecycle state queries.
func (r *Reqres) RequestBool(name string, args ...any) (bool, error) {
	result, err := r.Request(name, args...)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("puppets: request %q answered %T, want bool", name, result)
	}
	return b, nil
}
