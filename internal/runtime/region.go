package runtime

import (
	"errors"
	"sync"
	"time"

	"github.com/drblury/puppets/internal/runtime/config"
)

// RegionPieceName is the piece name regions are attached under, which makes
// their events arrive locally as "open:region", "ready:region" and so on.
const RegionPieceName = "region"

// ViewPieceName is the conventional name of a view piece. Its "updating" and
// "update" events are re-shared on the global channel.
const ViewPieceName = "view"

// Local events of the view piece relayed to the global channel.
const (
	EventViewUpdating = "updating:" + ViewPieceName
	EventViewUpdate   = "update:" + ViewPieceName
)

// Region shows and closes the view of a puppet.
type Region interface {
	Show(view any) error
	Close() error
}

// TransitionSetter is implemented by regions that honour the puppet's
// transition options.
type TransitionSetter interface {
	SetTransition(transition string, duration time.Duration)
}

// Scheduler runs f after d and returns a function cancelling it.
type Scheduler func(d time.Duration, f func()) (cancel func() bool)

// AfterFunc schedules with time.AfterFunc.
func AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// HeadlessRegion is a Region without a display. It emits the region events
// with the timing of its transition: "pop" emits everything synchronously,
// "fade" and "slide" emit ready and close once the duration has elapsed.
type HeadlessRegion struct {
	Component

	// Schedule defers the second event of timed transitions.
	Schedule Scheduler

	mu         sync.Mutex
	transition string
	duration   time.Duration
	current    any
	cancel     func() bool
}

// NewHeadlessRegion returns a region using transition and duration. Empty
// values select "pop" and 500ms.
func NewHeadlessRegion(transition string, duration time.Duration) *HeadlessRegion {
	r := &HeadlessRegion{Schedule: AfterFunc}
	r.SetTransition(transition, duration)
	return r
}

func (r *HeadlessRegion) SetTransition(transition string, duration time.Duration) {
	if transition == "" {
		transition = config.DefaultTransition
	}
	if duration <= 0 {
		duration = config.DefaultDuration
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transition = transition
	r.duration = duration
}

// Transition returns the transition name and duration in use.
func (r *HeadlessRegion) Transition() (string, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transition, r.duration
}

// Current returns the view being shown, or nil.
func (r *HeadlessRegion) Current() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Show replaces the current view with view.
func (r *HeadlessRegion) Show(view any) error {
	if view == nil {
		return errors.New("puppets: region cannot show a nil view")
	}
	r.mu.Lock()
	r.stopPendingLocked()
	r.current = view
	r.mu.Unlock()

	return r.run("open", "ready")
}

// Close removes the current view. Closing an empty region does nothing.
func (r *HeadlessRegion) Close() error {
	r.mu.Lock()
	view := r.current
	r.current = nil
	if view != nil {
		r.stopPendingLocked()
	}
	r.mu.Unlock()
	if view == nil {
		return nil
	}

	return r.run("closing", "close", func() { _ = shutdownPiece(view) })
}

// run emits first now and second according to the transition. after runs
// just before second.
func (r *HeadlessRegion) run(first, second string, after ...func()) error {
	r.mu.Lock()
	transition, duration, schedule := r.transition, r.duration, r.Schedule
	r.mu.Unlock()

	err := r.Trigger(first)
	finish := func() error {
		for _, fn := range after {
			fn()
		}
		return r.Trigger(second)
	}
	if transition == config.TransitionPop || schedule == nil {
		return errors.Join(err, finish())
	}

	cancel := schedule(duration, func() {
		r.mu.Lock()
		r.cancel = nil
		r.mu.Unlock()
		if ferr := finish(); ferr != nil && r.Logger != nil {
			r.Logger.Warn("Region event subscriber failed", ferr, nil)
		}
	})
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	return err
}

func (r *HeadlessRegion) stopPendingLocked() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}
