package runtime

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/drblury/puppets/internal/runtime/actions"
	"github.com/drblury/puppets/internal/runtime/channel"
	"github.com/drblury/puppets/internal/runtime/dispatch"
	perrors "github.com/drblury/puppets/internal/runtime/errors"
	"github.com/drblury/puppets/internal/runtime/lifecycle"
	"github.com/drblury/puppets/internal/runtime/logging"
)

// ChannelPrefix is prepended to a puppet name to form its local channel name.
const ChannelPrefix = "puppets."

// ChannelName returns the local channel name of the puppet called name.
func ChannelName(name string) string {
	return ChannelPrefix + name
}

// Built-in action names. The default global commands and requests of each
// puppet refer to them.
const (
	ActionStart      = "start"
	ActionStop       = "stop"
	ActionShow       = "show"
	ActionClose      = "close"
	ActionIsStarted  = "isStarted"
	ActionIsReady    = "isReady"
	ActionIsStopping = "isStopping"
	ActionIsStopped  = "isStopped"
	ActionState      = "state"
)

// Puppet coordinates a set of pieces around a local channel and announces
// its lifecycle on the global channel.
type Puppet struct {
	// Vent, Commands and Reqres are the dispatchers of the local channel.
	Vent     *dispatch.Vent
	Commands *dispatch.Commands
	Reqres   *dispatch.Reqres

	// LocalEvents, GlobalEvents and Pieces start as copies of the
	// definition and may be changed by Definition.Initialize. Changes made
	// later only take effect when a stopped puppet is started again.
	LocalEvents  actions.Group
	GlobalEvents actions.Group
	Pieces       map[string]PieceFactory

	name        string
	channelName string
	app         *Application
	local       *channel.Channel
	global      *channel.Channel
	opts        Options
	logger      logging.ServiceLogger
	machine     *lifecycle.Machine
	hooks       LifecycleHooks

	actionsMu sync.RWMutex
	actions   actions.Table

	mu            sync.Mutex
	pieces        map[string]any
	forwards      []dispatch.Subscription
	globalSubs    []dispatch.Subscription
	globalCmds    []string
	globalReqs    []string
	initializers  []func() error
	finalizers    []func() error
	bound         bool
	running       bool
	shown         bool
	regionClosed  bool
	stopRequested bool
	destroyed     bool
}

// NewPuppet builds the puppet name of app. Most callers use
// Application.Puppet, which also registers the result.
func NewPuppet(name string, app *Application, def Definition, opts Options) (*Puppet, error) {
	if name == "" {
		return nil, perrors.ErrPuppetNameRequired
	}
	if app == nil {
		return nil, perrors.ErrApplicationRequired
	}
	opts = opts.withDefaults(app.Conf)
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("puppet %q: %w", name, err)
	}

	channelName := ChannelName(name)
	local := app.Channel(channelName)
	p := &Puppet{
		Vent:         local.Vent,
		Commands:     local.Commands,
		Reqres:       local.Reqres,
		LocalEvents:  def.LocalEvents.Clone(),
		GlobalEvents: def.GlobalEvents.Clone(),
		Pieces:       maps.Clone(def.Pieces),
		name:         name,
		channelName:  channelName,
		app:          app,
		local:        local,
		global:       app.Global(),
		opts:         opts,
		logger:       app.Logger.With(logging.LogFields{"puppet": name, "channel": channelName}),
		hooks:        app.hooks.Merge(opts.Hooks),
		pieces:       make(map[string]any),
	}
	p.actions = p.builtinActions()
	for actionName, fn := range def.Actions {
		p.actions[actionName] = fn
	}

	table := lifecycle.DefaultTable()
	if opts.Table != nil {
		table = *opts.Table
	}
	machine, err := lifecycle.NewMachine(table, lifecycle.Hooks{
		OnEnter:    p.entered,
		OnRejected: p.rejected,
	})
	if err != nil {
		return nil, fmt.Errorf("puppet %q: %w", name, err)
	}
	p.machine = machine

	if setter, ok := opts.Region.(TransitionSetter); ok {
		setter.SetTransition(opts.Transition, opts.Duration)
	}

	if def.Initialize != nil {
		if err := def.Initialize(p); err != nil {
			return nil, fmt.Errorf("initialize puppet %q: %w", name, err)
		}
	}

	p.bindGlobal()
	if err := p.bindLocal(); err != nil {
		p.unbindGlobal()
		return nil, err
	}
	p.AddFinalizer(p.teardown)
	return p, nil
}

// Name returns the puppet name.
func (p *Puppet) Name() string {
	return p.name
}

// ChannelName returns the local channel name, "puppets.<name>".
func (p *Puppet) ChannelName() string {
	return p.channelName
}

// Local returns the puppet's own channel.
func (p *Puppet) Local() *channel.Channel {
	return p.local
}

// Global returns the application's shared channel.
func (p *Puppet) Global() *channel.Channel {
	return p.global
}

// App returns the owning application.
func (p *Puppet) App() *Application {
	return p.app
}

// Logger returns the puppet's logger.
func (p *Puppet) Logger() logging.ServiceLogger {
	return p.logger
}

// Options returns the options the puppet was built with, defaults applied.
func (p *Puppet) Options() Options {
	return p.opts
}

// State returns the current lifecycle state.
func (p *Puppet) State() lifecycle.State {
	return p.machine.State()
}

// Flags returns the four flag view of the current state.
func (p *Puppet) Flags() lifecycle.Flags {
	return p.machine.Flags()
}

// Emit triggers "<event>:<channel name>" on the global channel with args
// unchanged.
func (p *Puppet) Emit(event string, args ...any) error {
	return p.global.Vent.Trigger(event+":"+p.channelName, args...)
}

// AddAction makes fn resolvable under name by the puppet's handler hashes.
func (p *Puppet) AddAction(name string, fn dispatch.Handler) {
	p.actionsMu.Lock()
	defer p.actionsMu.Unlock()
	p.actions[name] = fn
}

// Action implements actions.Resolver.
func (p *Puppet) Action(name string) (dispatch.Handler, bool) {
	p.actionsMu.RLock()
	defer p.actionsMu.RUnlock()
	return p.actions.Action(name)
}

// AddInitializer registers fn to run on every Start, in registration order.
func (p *Puppet) AddInitializer(fn func() error) {
	if fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initializers = append(p.initializers, fn)
}

// AddFinalizer registers fn to run when the puppet has stopped, in
// registration order.
func (p *Puppet) AddFinalizer(fn func() error) {
	if fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finalizers = append(p.finalizers, fn)
}

// AttachPiece links piece under name. It returns false, leaving the existing
// piece in place, when name is taken.
func (p *Puppet) AttachPiece(name string, piece any) bool {
	if name == "" || piece == nil {
		return false
	}
	p.mu.Lock()
	if _, exists := p.pieces[name]; exists {
		p.mu.Unlock()
		p.logger.Warn("Refusing to replace piece", perrors.ErrDuplicatePiece, logging.LogFields{"piece": name})
		return false
	}
	p.pieces[name] = piece
	p.mu.Unlock()

	if linker, ok := piece.(Linker); ok {
		linker.Link(p.pieceContext(name))
	}
	p.bindPieceEvents(piece)
	if emitter, ok := piece.(Emitter); ok {
		if bus := emitter.Events(); bus != nil {
			sub := bus.On(dispatch.AllEvents, p.forwarder(name))
			p.mu.Lock()
			p.forwards = append(p.forwards, sub)
			p.mu.Unlock()
		}
	}
	return true
}

// Piece returns the piece attached under name.
func (p *Puppet) Piece(name string) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	piece, ok := p.pieces[name]
	return piece, ok
}

// PieceNames returns the attached piece names, sorted.
func (p *Puppet) PieceNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := slices.Collect(maps.Keys(p.pieces))
	sort.Strings(names)
	return names
}

func (p *Puppet) pieceContext(name string) PieceContext {
	return PieceContext{
		Name:        name,
		PuppetName:  p.name,
		ChannelName: p.channelName,
		Local:       p.local,
		Global:      p.global,
		Values:      p.opts.Values,
		Logger:      p.logger.With(logging.LogFields{"piece": name}),
	}
}

func (p *Puppet) bindPieceEvents(piece any) {
	eventer, ok := piece.(LocalEventer)
	if !ok {
		return
	}
	resolver, _ := piece.(actions.Resolver)
	normalized := actions.NormalizeGroup(eventer.LocalEvents(), resolver, p.logger)
	p.local.ConnectEvents(normalized.Vent).
		ConnectCommands(normalized.Commands).
		ConnectRequests(normalized.Reqres)
}

// forwarder relays the events of a piece bus to the local vent.
func (p *Puppet) forwarder(pieceName string) dispatch.Handler {
	return func(args ...any) any {
		if len(args) == 0 {
			return nil
		}
		event, _ := args[0].(string)
		return p.local.Vent.Trigger(event+":"+pieceName, args[1:]...)
	}
}

// bindLocal connects the local hashes, the lifecycle machine, the view
// relays and the declared pieces to the local channel. On error everything
// bound so far is torn down again.
func (p *Puppet) bindLocal() error {
	normalized := actions.NormalizeGroup(p.LocalEvents, p, p.logger)
	p.local.ConnectEvents(normalized.Vent).
		ConnectCommands(normalized.Commands).
		ConnectRequests(normalized.Reqres)

	for _, event := range p.machine.Table().Events() {
		p.local.Vent.On(event, p.fire(event))
	}
	for local, global := range viewRelays {
		p.local.Vent.On(local, p.relay(global))
	}

	if p.opts.Region != nil {
		p.mu.Lock()
		p.regionClosed = false
		p.mu.Unlock()
		p.AttachPiece(RegionPieceName, p.opts.Region)
	}

	if err := p.buildPieces(); err != nil {
		if rollbackErr := p.teardown(); rollbackErr != nil {
			p.logger.Warn("Rolling back pieces failed", rollbackErr, nil)
		}
		return err
	}

	p.mu.Lock()
	p.bound = true
	p.mu.Unlock()
	return nil
}

func (p *Puppet) buildPieces() error {
	declared := mergePieces(p.Pieces, p.opts.Pieces, p.opts.Elements, p.opts.Components)
	names := slices.Collect(maps.Keys(declared))
	sort.Strings(names)
	for _, pieceName := range names {
		factory := declared[pieceName]
		if factory == nil {
			return fmt.Errorf("puppet %q piece %q: %w", p.name, pieceName, perrors.ErrPieceFactoryRequired)
		}
		piece, err := factory(p.pieceContext(pieceName))
		if err != nil {
			return fmt.Errorf("puppet %q piece %q: %w", p.name, pieceName, err)
		}
		p.AttachPiece(pieceName, piece)
	}
	return nil
}

// Local view events re-shared on the global channel as
// "<updating|update>:<channel name>".
var viewRelays = map[string]string{
	EventViewUpdating: "updating",
	EventViewUpdate:   "update",
}

// relay emits event globally with the arguments of the local event.
func (p *Puppet) relay(event string) dispatch.Handler {
	return func(args ...any) any {
		return errOrNil(p.Emit(event, args...))
	}
}

func (p *Puppet) builtinActions() actions.Table {
	flag := func(get func(lifecycle.Flags) bool) dispatch.Handler {
		return func(...any) any { return get(p.Flags()) }
	}
	return actions.Table{
		ActionStart: func(...any) any { return errOrNil(p.Start()) },
		ActionStop:  func(...any) any { return errOrNil(p.Stop()) },
		ActionShow:  func(...any) any { return errOrNil(p.Show()) },
		ActionClose: func(...any) any { return errOrNil(p.Close()) },

		ActionIsStarted:  flag(func(f lifecycle.Flags) bool { return f.Started }),
		ActionIsReady:    flag(func(f lifecycle.Flags) bool { return f.Ready }),
		ActionIsStopping: flag(func(f lifecycle.Flags) bool { return f.Stopping }),
		ActionIsStopped:  flag(func(f lifecycle.Flags) bool { return f.Stopped }),
		ActionState:      func(...any) any { return string(p.State()) },
	}
}

// errOrNil keeps a nil error from becoming a non-nil any.
func errOrNil(err error) any {
	if err == nil {
		return nil
	}
	return err
}

// defaultGlobals returns the suffixed commands and requests every puppet
// answers on the global channel.
func (p *Puppet) defaultGlobals() actions.Group {
	commands := actions.Hash{
		ActionStart: actions.Named(ActionStart),
		ActionStop:  actions.Named(ActionStop),
	}
	if p.opts.Region != nil {
		commands[ActionShow] = actions.Named(ActionShow)
		commands[ActionClose] = actions.Named(ActionClose)
	}
	requests := actions.Hash{
		ActionIsStarted:  actions.Named(ActionIsStarted),
		ActionIsReady:    actions.Named(ActionIsReady),
		ActionIsStopping: actions.Named(ActionIsStopping),
		ActionIsStopped:  actions.Named(ActionIsStopped),
		ActionState:      actions.Named(ActionState),
	}
	return actions.Group{Commands: commands, Reqres: requests}.Suffixed(p.channelName)
}

func (p *Puppet) bindGlobal() {
	group := p.defaultGlobals().
		Merge(p.GlobalEvents).
		Merge(actions.Group{Vent: p.opts.Events, Commands: p.opts.Commands, Reqres: p.opts.Requests})
	normalized := actions.NormalizeGroup(group, p, p.logger)

	subs := make([]dispatch.Subscription, 0, len(normalized.Vent))
	for event, fn := range normalized.Vent {
		subs = append(subs, p.global.Vent.On(event, fn))
	}
	p.global.ConnectCommands(normalized.Commands).ConnectRequests(normalized.Reqres)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.globalSubs = subs
	p.globalCmds = slices.Collect(maps.Keys(normalized.Commands))
	p.globalReqs = slices.Collect(maps.Keys(normalized.Reqres))
}

func (p *Puppet) unbindGlobal() {
	p.mu.Lock()
	subs, cmds, reqs := p.globalSubs, p.globalCmds, p.globalReqs
	p.globalSubs, p.globalCmds, p.globalReqs = nil, nil, nil
	p.mu.Unlock()

	for _, sub := range subs {
		sub.Off()
	}
	for _, name := range cmds {
		p.global.Commands.RemoveHandler(name)
	}
	for _, name := range reqs {
		p.global.Reqres.RemoveHandler(name)
	}
}

// teardown runs after the finalizers added by Definition.Initialize: it
// clears the local channel once and shuts every piece down. A region already
// closed by Stop, Close or itself is not closed again.
func (p *Puppet) teardown() error {
	p.mu.Lock()
	forwards := p.forwards
	pieces := p.pieces
	p.forwards = nil
	p.pieces = make(map[string]any)
	p.bound = false
	if p.regionClosed && p.opts.Region != nil {
		delete(pieces, RegionPieceName)
	}
	p.mu.Unlock()

	p.local.Reset()
	for _, sub := range forwards {
		sub.Off()
	}

	names := slices.Collect(maps.Keys(pieces))
	sort.Strings(names)
	var errs []error
	for _, name := range names {
		if err := shutdownPiece(pieces[name]); err != nil {
			errs = append(errs, fmt.Errorf("close piece %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
