/*
Package runtime implements the puppet coordinator on top of the dispatcher
and channel packages.

# Package Structure

## Application (application.go)

Application owns the channel registry, the global channel and the puppets
built on them. It wires:
  - Lifecycle hooks (logging, metrics and caller supplied hooks)
  - Channel observers feeding Metrics
  - Bridges and their transports
  - HTTP servers for metrics and the inspector

## Puppets (puppet.go, lifecycle.go)

A Puppet binds the hashes of its Definition to its local channel, answers
the suffixed start/stop/show/close commands and the state requests on the
global channel, and drives a lifecycle.Machine from the region events it
receives locally. Finalizers run once the machine reaches stopped; the
first of them resets the local channel and shuts every piece down.

## Pieces (pieces.go, region.go)

Pieces are built by PieceFactory values. Optional interfaces decide how a
piece is wired: Linker, LocalEventer, Emitter, Closer and Remover.
Component is an embeddable base implementing most of them, and
HeadlessRegion is a Region that emits the region events with the timing of
its transition.

## Observability (hooks.go, metrics.go, inspector.go)

LifecycleHooks observe transitions and rejected events. Metrics implements
dispatch.Observer and channel.ResetObserver. The inspector serves puppets,
channels, bridges and metrics as JSON.

# Sub-packages

  - actions/: Handler references, hashes and normalization
  - bridge/: Watermill router relaying a channel between nodes
  - channel/: Named channels and the channel registry
  - config/: Configuration with validation and viper loading
  - dispatch/: Vent, Commands and Reqres
  - errors/: Sentinel errors and error types
  - ids/: ULID generation
  - jsoncodec/: JSON marshaling utilities
  - lifecycle/: Table driven lifecycle state machine
  - logging/: Logger interface and adapters
  - metadata/: Bridge message metadata
*/
package runtime
