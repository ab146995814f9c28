package runtime

import (
	"errors"
	"fmt"
	"time"

	"github.com/drblury/puppets/internal/runtime/actions"
	"github.com/drblury/puppets/internal/runtime/config"
	"github.com/drblury/puppets/internal/runtime/lifecycle"
)

// Definition describes a kind of puppet. It plays the role of a class: one
// Definition may be instantiated under many names.
type Definition struct {
	// Initialize runs after the channels are attached and before any handler
	// is bound. It may change LocalEvents, GlobalEvents and Pieces on p and
	// add actions, initializers and finalizers.
	Initialize func(p *Puppet) error

	LocalEvents  actions.Group
	GlobalEvents actions.Group
	Pieces       map[string]PieceFactory
	// Actions resolve named references of the puppet's hashes. They take
	// precedence over the built-in start/stop/show/close actions.
	Actions actions.Table
}

// Options configure one puppet instance.
type Options struct {
	// Region shows View on Start. It is attached as the piece "region" and
	// is expected to emit open, ready, closing and close.
	Region Region
	View   any
	// Duration and Transition are handed to regions implementing
	// TransitionSetter. They default to the application configuration.
	Duration   time.Duration
	Transition string

	// Global channel hashes applied on top of the definition's GlobalEvents.
	Events   actions.Hash
	Commands actions.Hash
	Requests actions.Hash

	// Pieces, Elements and Components are synonyms. They are merged in that
	// order after the definition's pieces; the first declaration of a name
	// wins.
	Pieces     map[string]PieceFactory
	Elements   map[string]PieceFactory
	Components map[string]PieceFactory

	// Values are passed to every piece factory.
	Values map[string]any
	Hooks  LifecycleHooks
	// Table replaces the default lifecycle table.
	Table *lifecycle.Table
}

func (o Options) withDefaults(conf *config.Config) Options {
	if o.Duration == 0 {
		o.Duration = conf.DefaultDuration
	}
	if o.Duration == 0 {
		o.Duration = config.DefaultDuration
	}
	if o.Transition == "" {
		o.Transition = conf.DefaultTransition
	}
	if o.Transition == "" {
		o.Transition = config.DefaultTransition
	}
	return o
}

// Validate reports invalid option values.
func (o Options) Validate() error {
	var errs []error
	if o.Duration < 0 {
		errs = append(errs, fmt.Errorf("duration cannot be negative: %s", o.Duration))
	}
	switch o.Transition {
	case "", config.TransitionPop, config.TransitionFade, config.TransitionSlide:
	default:
		errs = append(errs, fmt.Errorf("unknown transition %q", o.Transition))
	}
	if o.View != nil && o.Region == nil {
		errs = append(errs, errors.New("a view requires a region"))
	}
	if o.Table != nil {
		if err := o.Table.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("lifecycle table: %w", err))
		}
	}
	return errors.Join(errs...)
}

// mergePieces combines declarations in order; the first factory of a name wins.
func mergePieces(sets ...map[string]PieceFactory) map[string]PieceFactory {
	out := make(map[string]PieceFactory)
	for _, set := range sets {
		for name, factory := range set {
			if _, ok := out[name]; !ok {
				out[name] = factory
			}
		}
	}
	return out
}
