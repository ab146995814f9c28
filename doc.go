// Package puppets coordinates self-contained application modules, called
// puppets, over named channels. Every channel bundles an event bus (Vent), a
// command dispatcher and a request/response dispatcher. A puppet owns a local
// channel "puppets.<name>", assembles its pieces (elements, components and an
// optional region) around it and announces its lifecycle on the shared global
// channel as "start:", "ready:", "closing:" and "close:" followed by its
// channel name.
//
// A minimal setup builds an Application, declares a puppet and starts it:
//
//	app, err := puppets.NewApplication(nil, puppets.NopLogger(), puppets.Dependencies{})
//	sidebar, err := app.Puppet("sidebar", puppets.Definition{
//		LocalEvents: puppets.Group{Vent: puppets.Hash{"refresh": puppets.Named("reload")}},
//		Actions:     puppets.Actions{"reload": reload},
//	}, puppets.Options{Region: puppets.Headless(puppets.TransitionFade, 0), View: view})
//	err = sidebar.Start()
//
// Other code talks to the puppet through the global channel only, for
// example app.Global().Commands.Execute("stop:puppets.sidebar").
//
// # Lifecycle
//
// The lifecycle is a table driven state machine fed by the region events
// "open:region", "ready:region", "closing:region" and "close:region".
// DefaultTable accepts every event from every state; StrictTable and
// ParseTable provide stricter machines.
//
// # Bridging
//
// Application.Bridge relays the events of a channel to other processes over
// a Watermill transport selected by Config.Transport: channel, kafka,
// rabbitmq, nats, nats-jetstream, aws or http. Import
// github.com/drblury/puppets/transport/transports to register all of them.
// Events are encoded as JSON or protobuf ListValue payloads and carry their
// event name, channel and origin node in message metadata, so a node never
// receives its own events back.
//
// # Observability
//
// Lifecycle changes are logged through ServiceLogger. With
// Config.MetricsEnabled every dispatch, reset and transition is recorded in
// Prometheus collectors, and Config.InspectorEnabled serves a read-only JSON
// view of puppets, channels and bridges.
package puppets
