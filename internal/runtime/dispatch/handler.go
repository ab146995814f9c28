package dispatch

import (
	"time"

	perrors "github.com/drblury/puppets/internal/runtime/errors"
)

// Handler is the signature shared by event subscribers, command handlers and
// request handlers. Event and command results are discarded unless they are a
// non-nil error.
type Handler func(args ...any) any

// Kind identifies the dispatcher that performed a dispatch.
type Kind string

const (
	KindEvent   Kind = "event"
	KindCommand Kind = "command"
	KindRequest Kind = "request"
)

// Dispatch describes one completed Trigger, Execute or Request call.
type Dispatch struct {
	Channel  string
	Kind     Kind
	Name     string
	Handlers int
	Duration time.Duration
	Err      error
}

// Observer receives a Dispatch after every delivery. Implementations must not
// block.
type Observer interface {
	ObserveDispatch(Dispatch)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Dispatch)

func (f ObserverFunc) ObserveDispatch(d Dispatch) {
	f(d)
}

func observe(o Observer, d Dispatch) {
	if o != nil {
		o.ObserveDispatch(d)
	}
}

// invoke runs fn, converting a panic or an error result into a HandlerError.
func invoke(kind Kind, name string, fn Handler, args []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = perrors.HandlerError{Kind: string(kind), Name: name, Err: perrors.PanicError{Value: r}}
		}
	}()

	result = fn(args...)
	if failure, ok := result.(error); ok && failure != nil {
		return nil, perrors.HandlerError{Kind: string(kind), Name: name, Err: failure}
	}
	return result, nil
}
