package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrPuppetNameRequired   = sterrors.New("puppets: puppet name is required")
	ErrApplicationRequired  = sterrors.New("puppets: application is required")
	ErrPieceFactoryRequired = sterrors.New("puppets: piece factory is required")
	ErrChannelRequired      = sterrors.New("puppets: channel name is required")
	ErrTransportRequired    = sterrors.New("puppets: transport is required")
	ErrTopicRequired        = sterrors.New("puppets: topic is required")
	ErrConfigRequired       = sterrors.New("puppets: configuration is required")
	ErrLoggerRequired       = sterrors.New("puppets: logger is required")

	ErrUnhandledCommand  = sterrors.New("puppets: no handler registered for command")
	ErrUnhandledRequest  = sterrors.New("puppets: no handler registered for request")
	ErrUnresolvedHandler = sterrors.New("puppets: handler reference does not resolve")
	ErrDuplicatePiece    = sterrors.New("puppets: piece name already attached")
	ErrInvalidTransition = sterrors.New("puppets: transition not permitted")
	ErrUnknownState      = sterrors.New("puppets: unknown lifecycle state")
)

// HandlerError reports a failure raised by a single subscriber or handler. Kind
// is one of "event", "command" or "request".
type HandlerError struct {
	Kind string
	Name string
	Err  error
}

func (e HandlerError) Error() string {
	return fmt.Sprintf("puppets: %s handler %q failed: %v", e.Kind, e.Name, e.Err)
}

func (e HandlerError) Unwrap() error {
	return e.Err
}

// PanicError carries a value recovered from a panicking handler.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// ConfigValidationError wraps every problem found while validating a Config.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "puppets: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
