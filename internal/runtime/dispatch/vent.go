package dispatch

import (
	"errors"
	"slices"
	"sort"
	"sync"
	"time"
)

// AllEvents is the wildcard event. Its subscribers receive every triggered
// event, with the event name prepended to the arguments, after the
// event-specific subscribers.
const AllEvents = "all"

type subscriber struct {
	id   uint64
	fn   Handler
	once bool
}

// Vent is a synchronous publish/subscribe bus. The zero value is ready to use.
type Vent struct {
	channel  string
	observer Observer

	mu     sync.Mutex
	nextID uint64
	subs   map[string][]*subscriber
}

// NewVent returns a bus reporting its dispatches to observer under the given
// channel name. Both may be empty.
func NewVent(channel string, observer Observer) *Vent {
	return &Vent{channel: channel, observer: observer}
}

// Subscription identifies a single registration on a Vent.
type Subscription struct {
	vent  *Vent
	event string
	id    uint64
}

// Event returns the event name the subscription listens to.
func (s Subscription) Event() string {
	return s.event
}

// Off removes the subscription. It reports whether anything was removed and is
// safe to call repeatedly or on the zero value.
func (s Subscription) Off() bool {
	if s.vent == nil {
		return false
	}
	return s.vent.remove(s.event, s.id)
}

// On subscribes fn to event. Subscribers of one event are delivered in
// subscription order.
func (v *Vent) On(event string, fn Handler) Subscription {
	return v.add(event, fn, false)
}

// Once subscribes fn for a single delivery. The subscription is removed before
// fn runs, so a reentrant trigger cannot deliver it twice.
func (v *Vent) Once(event string, fn Handler) Subscription {
	return v.add(event, fn, true)
}

func (v *Vent) add(event string, fn Handler, once bool) Subscription {
	if fn == nil {
		return Subscription{}
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.subs == nil {
		v.subs = make(map[string][]*subscriber)
	}
	v.nextID++
	v.subs[event] = append(v.subs[event], &subscriber{id: v.nextID, fn: fn, once: once})
	return Subscription{vent: v, event: event, id: v.nextID}
}

func (v *Vent) remove(event string, id uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	list := v.subs[event]
	for i, sub := range list {
		if sub.id == id {
			v.setList(event, slices.Delete(slices.Clone(list), i, i+1))
			return true
		}
	}
	return false
}

// setList stores a subscriber list; callers hold mu. Lists are never mutated
// in place so snapshots taken by running triggers stay valid.
func (v *Vent) setList(event string, list []*subscriber) {
	if len(list) == 0 {
		delete(v.subs, event)
		return
	}
	v.subs[event] = list
}

// Off removes every subscriber of event. An empty name clears the whole bus.
func (v *Vent) Off(event string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if event == "" {
		v.subs = nil
		return
	}
	delete(v.subs, event)
}

// Reset removes every subscriber.
func (v *Vent) Reset() {
	v.Off("")
}

// Listeners returns the number of subscribers of event, not counting
// wildcard subscribers.
func (v *Vent) Listeners(event string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs[event])
}

// Events returns the names that currently have subscribers, sorted.
func (v *Vent) Events() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	names := make([]string, 0, len(v.subs))
	for name := range v.subs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Trigger delivers args to every subscriber of event. A subscriber that
// panics or returns an error does not stop delivery; all failures are joined
// and returned once every subscriber ran. Triggering an event nobody listens
// to is not an error.
func (v *Vent) Trigger(event string, args ...any) error {
	return v.TriggerExcept(Subscription{}, event, args...)
}

// TriggerExcept behaves like Trigger but skips the given subscription.
func (v *Vent) TriggerExcept(skip Subscription, event string, args ...any) error {
	started := time.Now()
	specific, wildcard := v.snapshot(event, skip)

	var errs []error
	for _, sub := range specific {
		if _, err := invoke(KindEvent, event, sub.fn, args); err != nil {
			errs = append(errs, err)
		}
	}
	if len(wildcard) > 0 {
		withName := make([]any, 0, len(args)+1)
		withName = append(withName, event)
		withName = append(withName, args...)
		for _, sub := range wildcard {
			if _, err := invoke(KindEvent, event, sub.fn, withName); err != nil {
				errs = append(errs, err)
			}
		}
	}

	err := errors.Join(errs...)
	observe(v.observer, Dispatch{
		Channel:  v.channel,
		Kind:     KindEvent,
		Name:     event,
		Handlers: len(specific) + len(wildcard),
		Duration: time.Since(started),
		Err:      err,
	})
	return err
}

// snapshot copies the subscribers due for event and claims one-shot
// subscriptions while the lock is held.
func (v *Vent) snapshot(event string, skip Subscription) (specific, wildcard []*subscriber) {
	v.mu.Lock()
	defer v.mu.Unlock()

	skipID := uint64(0)
	if skip.vent == v {
		skipID = skip.id
	}
	if event != AllEvents {
		specific = v.claim(event, skipID)
	}
	wildcard = v.claim(AllEvents, skipID)
	return specific, wildcard
}

func (v *Vent) claim(event string, skipID uint64) []*subscriber {
	list := v.subs[event]
	if len(list) == 0 {
		return nil
	}
	due := make([]*subscriber, 0, len(list))
	kept := list[:0:0]
	claimedOnce := false
	for _, sub := range list {
		if sub.id == skipID {
			kept = append(kept, sub)
			continue
		}
		due = append(due, sub)
		if sub.once {
			claimedOnce = true
			continue
		}
		kept = append(kept, sub)
	}
	if claimedOnce {
		v.setList(event, kept)
	}
	return due
}
