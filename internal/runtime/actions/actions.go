// Package actions turns declarative handler hashes into concrete handlers.
//
// A hash maps an event, command or request name to a Ref. A Ref is either a
// function or the name of an action looked up on a Resolver, typically the
// puppet or piece that declared the hash.
package actions

import (
	"sort"

	"github.com/drblury/puppets/internal/runtime/dispatch"
	perrors "github.com/drblury/puppets/internal/runtime/errors"
	"github.com/drblury/puppets/internal/runtime/logging"
)

// Ref references a handler either directly or by action name.
type Ref struct {
	name string
	fn   dispatch.Handler
}

// Named references the action registered under name on the resolver.
func Named(name string) Ref {
	return Ref{name: name}
}

// Func wraps a handler.
func Func(fn dispatch.Handler) Ref {
	return Ref{fn: fn}
}

// Name returns the action name of a named reference.
func (r Ref) Name() string {
	return r.name
}

// IsFunc reports whether the reference carries its own handler.
func (r Ref) IsFunc() bool {
	return r.fn != nil
}

// Resolve returns the handler the reference points at.
func (r Ref) Resolve(ctx Resolver) (dispatch.Handler, bool) {
	if r.fn != nil {
		return r.fn, true
	}
	if r.name == "" || ctx == nil {
		return nil, false
	}
	return ctx.Action(r.name)
}

// Resolver looks up named actions.
type Resolver interface {
	Action(name string) (dispatch.Handler, bool)
}

// Table is a Resolver backed by a map.
type Table map[string]dispatch.Handler

func (t Table) Action(name string) (dispatch.Handler, bool) {
	fn, ok := t[name]
	return fn, ok && fn != nil
}

// Chain resolves against each resolver in turn. Earlier resolvers win.
type Chain []Resolver

func (c Chain) Action(name string) (dispatch.Handler, bool) {
	for _, r := range c {
		if r == nil {
			continue
		}
		if fn, ok := r.Action(name); ok {
			return fn, true
		}
	}
	return nil, false
}

// Hash maps event, command or request names to handler references.
type Hash map[string]Ref

// Merge returns a new hash with the entries of overrides applied on top of h.
func (h Hash) Merge(overrides Hash) Hash {
	out := make(Hash, len(h)+len(overrides))
	for k, v := range h {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// Suffixed returns a copy with ":"+suffix appended to every key.
func (h Hash) Suffixed(suffix string) Hash {
	out := make(Hash, len(h))
	for k, v := range h {
		out[k+":"+suffix] = v
	}
	return out
}

// Keys returns the hash keys, sorted.
func (h Hash) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Group holds the three hashes bound to one channel.
type Group struct {
	Vent     Hash
	Commands Hash
	Reqres   Hash
}

// Merge applies overrides on top of g per dispatcher.
func (g Group) Merge(overrides Group) Group {
	return Group{
		Vent:     g.Vent.Merge(overrides.Vent),
		Commands: g.Commands.Merge(overrides.Commands),
		Reqres:   g.Reqres.Merge(overrides.Reqres),
	}
}

// Suffixed appends ":"+suffix to every key of every hash.
func (g Group) Suffixed(suffix string) Group {
	return Group{
		Vent:     g.Vent.Suffixed(suffix),
		Commands: g.Commands.Suffixed(suffix),
		Reqres:   g.Reqres.Suffixed(suffix),
	}
}

// Clone returns a deep copy of the group.
func (g Group) Clone() Group {
	return g.Merge(Group{})
}

// Empty reports whether the group holds no entries.
func (g Group) Empty() bool {
	return len(g.Vent) == 0 && len(g.Commands) == 0 && len(g.Reqres) == 0
}

// Normalize resolves every reference of hash against ctx. References that do
// not resolve are dropped and reported to log as warnings wrapping
// ErrUnresolvedHandler; log may be nil.
func Normalize(hash Hash, ctx Resolver, log logging.ServiceLogger) map[string]dispatch.Handler {
	out := make(map[string]dispatch.Handler, len(hash))
	for key, ref := range hash {
		fn, ok := ref.Resolve(ctx)
		if !ok {
			if log != nil {
				log.Warn("Dropping unresolved handler", perrors.ErrUnresolvedHandler, logging.LogFields{
					"key":    key,
					"action": ref.name,
				})
			}
			continue
		}
		out[key] = fn
	}
	return out
}

// Normalized is a Group whose references have been resolved.
type Normalized struct {
	Vent     map[string]dispatch.Handler
	Commands map[string]dispatch.Handler
	Reqres   map[string]dispatch.Handler
}

// NormalizeGroup resolves every hash of g.
func NormalizeGroup(g Group, ctx Resolver, log logging.ServiceLogger) Normalized {
	return Normalized{
		Vent:     Normalize(g.Vent, ctx, log),
		Commands: Normalize(g.Commands, ctx, log),
		Reqres:   Normalize(g.Reqres, ctx, log),
	}
}
