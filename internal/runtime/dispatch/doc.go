// Package dispatch implements the three dispatchers every channel owns: a
// synchronous event bus (Vent), a one-handler-per-name command dispatcher
// (Commands) and a one-handler-per-name request/response dispatcher (Reqres).
//
// Delivery is synchronous and reentrant. Subscribers are snapshotted before
// delivery and no lock is held while user code runs, so a handler may
// subscribe, unsubscribe or trigger further events on the same bus.
package dispatch
