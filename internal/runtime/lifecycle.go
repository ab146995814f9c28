package runtime

import (
	"errors"
	"fmt"
	"time"

	"github.com/drblury/puppets/internal/runtime/dispatch"
	"github.com/drblury/puppets/internal/runtime/lifecycle"
	"github.com/drblury/puppets/internal/runtime/logging"
)

// ErrPuppetDestroyed is returned by Start on a destroyed puppet.
var ErrPuppetDestroyed = errors.New("puppets: puppet destroyed")

// Start runs the initializers and opens the puppet. With both a region and a
// view the view is shown and the region drives the lifecycle; otherwise
// open:region and ready:region are triggered on the local vent. A stopped
// puppet rebuilds its local bindings and pieces first. Starting a running
// puppet does nothing.
func (p *Puppet) Start() error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return ErrPuppetDestroyed
	}
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.stopRequested = false
	rebind := !p.bound
	initializers := append([]func() error(nil), p.initializers...)
	p.mu.Unlock()

	if rebind {
		if err := p.bindLocal(); err != nil {
			p.setRunning(false)
			return err
		}
	}
	for _, init := range initializers {
		if err := init(); err != nil {
			p.setRunning(false)
			return fmt.Errorf("puppet %q initializer: %w", p.name, err)
		}
	}

	if p.opts.Region != nil && p.opts.View != nil {
		p.mu.Lock()
		p.shown = true
		p.regionClosed = false
		p.mu.Unlock()
		return p.opts.Region.Show(p.opts.View)
	}
	return errors.Join(
		p.local.Vent.Trigger(lifecycle.EventOpen),
		p.local.Vent.Trigger(lifecycle.EventReady),
	)
}

// Stop closes the puppet. The finalizers run once the machine reaches
// stopped: immediately for synchronous regions, after the transition for
// timed ones. Stopping a puppet that is not running does nothing. A region
// that closes by itself stops the puppet the same way.
func (p *Puppet) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.stopRequested = true
	shown := p.shown
	p.shown = false
	if shown {
		p.regionClosed = true
	}
	p.mu.Unlock()

	if shown {
		return p.opts.Region.Close()
	}
	err := errors.Join(
		p.local.Vent.Trigger(lifecycle.EventClosing),
		p.local.Vent.Trigger(lifecycle.EventClose),
	)
	// A custom table may not lead to stopped; finalize regardless.
	p.finalize()
	return err
}

// Show shows the configured view in the configured region.
func (p *Puppet) Show() error {
	if p.opts.Region == nil || p.opts.View == nil {
		return nil
	}
	p.mu.Lock()
	p.shown = true
	p.regionClosed = false
	p.mu.Unlock()
	return p.opts.Region.Show(p.opts.View)
}

// Close closes the configured region.
func (p *Puppet) Close() error {
	if p.opts.Region == nil {
		return nil
	}
	p.mu.Lock()
	p.shown = false
	p.regionClosed = true
	p.mu.Unlock()
	return p.opts.Region.Close()
}

// Destroy stops the puppet, runs pending finalizers, shuts its pieces down
// and removes its global handlers, its local channel and its application
// entry. A destroyed puppet cannot be started again.
func (p *Puppet) Destroy() error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	err := p.Stop()
	p.finalize()

	p.mu.Lock()
	bound := p.bound
	p.mu.Unlock()
	if bound {
		err = errors.Join(err, p.teardown())
	}
	p.unbindGlobal()

	p.mu.Lock()
	p.destroyed = true
	p.mu.Unlock()

	p.app.forget(p)
	p.app.registry.Remove(p.channelName)
	return err
}

func (p *Puppet) setRunning(running bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = running
}

// fire feeds a local event into the lifecycle machine.
func (p *Puppet) fire(event string) dispatch.Handler {
	return func(...any) any {
		if _, err := p.machine.Fire(event); err != nil {
			return err
		}
		return nil
	}
}

func (p *Puppet) lifecycleContext(c lifecycle.Change) LifecycleContext {
	return LifecycleContext{
		Puppet:  p.name,
		Channel: p.channelName,
		From:    c.From,
		To:      c.To,
		Event:   c.Event,
		At:      time.Now(),
	}
}

// entered announces a transition as "<type>:<channel name>" on the global
// channel and runs the hooks.
func (p *Puppet) entered(c lifecycle.Change) {
	announcement := lifecycle.Announcement(c.To) + ":" + p.channelName
	if err := p.global.Vent.Trigger(announcement); err != nil {
		p.logger.Warn("Lifecycle subscriber failed", err, logging.LogFields{"event": announcement})
	}
	p.hooks.entered(p.lifecycleContext(c))
	if c.To == lifecycle.Stopped {
		p.stopped()
	}
}

// stopped settles the flags once the machine reaches stopped. A running
// puppet is stopped here when its region closed without Stop being called.
func (p *Puppet) stopped() {
	p.mu.Lock()
	if p.shown {
		p.shown = false
		p.regionClosed = true
	}
	if p.running {
		p.running = false
		p.stopRequested = true
	}
	p.mu.Unlock()
	p.finalize()
}

func (p *Puppet) rejected(current lifecycle.State, event string, err error) {
	p.hooks.rejected(p.lifecycleContext(lifecycle.Change{From: current, To: current, Event: event}), err)
}

// finalize runs the finalizers once per Stop.
func (p *Puppet) finalize() {
	p.mu.Lock()
	if !p.stopRequested {
		p.mu.Unlock()
		return
	}
	p.stopRequested = false
	finalizers := append([]func() error(nil), p.finalizers...)
	p.mu.Unlock()

	for _, fin := range finalizers {
		if err := fin(); err != nil {
			p.logger.Error("Puppet finalizer failed", err, nil)
		}
	}
}
