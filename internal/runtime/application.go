package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drblury/puppets/internal/runtime/bridge"
	"github.com/drblury/puppets/internal/runtime/channel"
	"github.com/drblury/puppets/internal/runtime/config"
	perrors "github.com/drblury/puppets/internal/runtime/errors"
	"github.com/drblury/puppets/internal/runtime/ids"
	"github.com/drblury/puppets/internal/runtime/logging"
	"github.com/drblury/puppets/transport"
)

// Dependencies holds the optional collaborators of an Application. Leave
// fields nil to use the defaults.
type Dependencies struct {
	// Registry replaces the application's own channel registry. Metrics are
	// only observed on registries the application creates.
	Registry *channel.Registry
	// Transports resolves Config.Transport. Defaults to transport.DefaultRegistry.
	Transports *transport.Registry
	// Registerer receives the Prometheus collectors when metrics are enabled.
	Registerer prometheus.Registerer
	// Hooks run for every puppet, before the puppet's own hooks.
	Hooks LifecycleHooks
}

type bridgeEntry struct {
	bridge    *bridge.Bridge
	transport transport.Transport
}

// Application owns the registry, the global channel and the puppets built on
// them, and optionally bridges channels to other processes.
type Application struct {
	Conf   *config.Config
	Logger logging.ServiceLogger

	registry   *channel.Registry
	global     *channel.Channel
	transports *transport.Registry
	metrics    *Metrics
	registerer prometheus.Registerer
	hooks      LifecycleHooks

	createMu sync.Mutex
	mu       sync.RWMutex
	puppets  map[string]*Puppet

	bridgesMu sync.Mutex
	bridges   []*bridgeEntry
	runCtx    context.Context
	runWG     sync.WaitGroup
	runErrs   []error

	httpServersMu sync.Mutex
	httpServers   map[int]*http.ServeMux
}

// NewApplication builds an application for conf. A nil conf selects the
// defaults; an empty NodeID is generated.
func NewApplication(conf *config.Config, log logging.ServiceLogger, deps Dependencies) (*Application, error) {
	if log == nil {
		return nil, perrors.ErrLoggerRequired
	}
	if conf == nil {
		conf = &config.Config{}
	}
	normalized := conf.WithDefaults()
	if normalized.NodeID == "" {
		normalized.NodeID = ids.NodeID("")
	}
	if err := perrors.NewConfigValidationError(normalized.Validate()); err != nil {
		return nil, err
	}

	log.Info("Creating puppets application", logging.LogFields{
		"transport": normalized.Transport,
		"node_id":   normalized.NodeID,
		"config":    normalized.String(),
	})

	app := &Application{
		Conf:       &normalized,
		Logger:     log,
		transports: deps.Transports,
		registerer: deps.Registerer,
		puppets:    make(map[string]*Puppet),
	}
	if app.transports == nil {
		app.transports = transport.DefaultRegistry
	}
	if app.registerer == nil {
		app.registerer = prometheus.DefaultRegisterer
	}

	hooks := LoggingHooks(log)
	if normalized.MetricsEnabled {
		app.metrics = NewMetrics(app.registerer)
		if err := app.metrics.Register(); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		hooks = hooks.Merge(MetricsHooks(app.metrics))
	}
	app.hooks = hooks.Merge(deps.Hooks)

	app.registry = deps.Registry
	if app.registry == nil {
		var opts []channel.Option
		if app.metrics != nil {
			opts = append(opts,
				channel.WithDispatchObserver(app.metrics),
				channel.WithResetObserver(app.metrics),
			)
		}
		app.registry = channel.NewRegistry(opts...)
	}
	app.global = app.registry.Channel(channel.GlobalChannel)
	return app, nil
}

// NodeID identifies this application on bridges.
func (a *Application) NodeID() string {
	return a.Conf.NodeID
}

// Registry returns the channel registry.
func (a *Application) Registry() *channel.Registry {
	return a.registry
}

// Global returns the channel shared by every puppet.
func (a *Application) Global() *channel.Channel {
	return a.global
}

// Channel returns the named channel of the registry, creating it when needed.
func (a *Application) Channel(name string) *channel.Channel {
	return a.registry.Channel(name)
}

// Metrics returns the metrics collector, or nil when metrics are disabled.
func (a *Application) Metrics() *Metrics {
	return a.metrics
}

// Puppet returns the puppet called name, building it from def and opts when
// it does not exist yet. def and opts are ignored for existing puppets.
// Definition.Initialize must not create other puppets.
func (a *Application) Puppet(name string, def Definition, opts Options) (*Puppet, error) {
	if p, ok := a.Lookup(name); ok {
		return p, nil
	}

	a.createMu.Lock()
	defer a.createMu.Unlock()
	if p, ok := a.Lookup(name); ok {
		return p, nil
	}
	p, err := NewPuppet(name, a, def, opts)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.puppets[name] = p
	a.mu.Unlock()
	return p, nil
}

// Lookup returns the puppet called name.
func (a *Application) Lookup(name string) (*Puppet, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.puppets[name]
	return p, ok
}

// RemovePuppet destroys and forgets the puppet called name. It reports
// whether the puppet existed.
func (a *Application) RemovePuppet(name string) bool {
	a.mu.Lock()
	p, ok := a.puppets[name]
	delete(a.puppets, name)
	a.mu.Unlock()
	if !ok {
		return false
	}
	if err := p.Destroy(); err != nil {
		a.Logger.Warn("Puppet did not stop cleanly", err, logging.LogFields{"puppet": name})
	}
	return true
}

// forget drops p from the puppet registry and the metrics once destroyed.
// A newer puppet registered under the same name is kept.
func (a *Application) forget(p *Puppet) {
	a.mu.Lock()
	if current, ok := a.puppets[p.name]; ok && current == p {
		delete(a.puppets, p.name)
	}
	a.mu.Unlock()
	if a.metrics != nil {
		a.metrics.ForgetPuppet(p.name)
	}
}

// Puppets returns the puppet names, sorted.
func (a *Application) Puppets() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.puppets))
	for name := range a.puppets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartAll starts every puppet in name order.
func (a *Application) StartAll() error {
	var errs []error
	for _, name := range a.Puppets() {
		if p, ok := a.Lookup(name); ok {
			if err := p.Start(); err != nil {
				errs = append(errs, fmt.Errorf("start puppet %q: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// StopAll stops every puppet in reverse name order.
func (a *Application) StopAll() error {
	names := a.Puppets()
	slices.Reverse(names)
	var errs []error
	for _, name := range names {
		if p, ok := a.Lookup(name); ok {
			if err := p.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("stop puppet %q: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Bridge relays the vent of channelName over the configured transport. Empty
// fields of cfg are taken from the configuration. A bridge added while Run is
// active starts immediately.
func (a *Application) Bridge(ctx context.Context, channelName string, cfg bridge.Config) (*bridge.Bridge, error) {
	if a.Conf.Transport == "" {
		return nil, perrors.ErrTransportRequired
	}
	if channelName == "" {
		channelName = a.Conf.BridgeChannel
	}
	cfg, err := a.bridgeConfig(cfg)
	if err != nil {
		return nil, err
	}

	t, err := a.transports.Build(ctx, a.Conf, logging.NewWatermillAdapter(a.Logger))
	if err != nil {
		return nil, err
	}
	cfg.Capabilities = t.Capabilities

	b, err := bridge.New(a.Channel(channelName), t.Publisher, t.Subscriber, cfg, a.Logger)
	if err != nil {
		_ = t.Close()
		return nil, err
	}

	entry := &bridgeEntry{bridge: b, transport: t}
	a.bridgesMu.Lock()
	a.bridges = append(a.bridges, entry)
	runCtx := a.runCtx
	if runCtx != nil {
		a.runBridge(runCtx, entry)
	}
	a.bridgesMu.Unlock()
	return b, nil
}

func (a *Application) bridgeConfig(cfg bridge.Config) (bridge.Config, error) {
	if cfg.NodeID == "" {
		cfg.NodeID = a.Conf.NodeID
	}
	if cfg.Topic == "" {
		cfg.Topic = a.Conf.BridgeTopic
	}
	if len(cfg.Events) == 0 {
		cfg.Events = a.Conf.BridgeEvents
	}
	if cfg.Codec == nil {
		codec, err := bridge.CodecByName(a.Conf.BridgeCodec)
		if err != nil {
			return cfg, err
		}
		cfg.Codec = codec
	}
	if cfg.PoisonQueue == "" {
		cfg.PoisonQueue = a.Conf.PoisonQueue
	}
	if cfg.Retry == (bridge.RetryConfig{}) {
		cfg.Retry = bridge.RetryConfig{
			MaxRetries:      a.Conf.RetryMaxRetries,
			InitialInterval: a.Conf.RetryInitialInterval,
			MaxInterval:     a.Conf.RetryMaxInterval,
		}
	}
	if cfg.Registerer == nil && a.metrics != nil {
		cfg.Registerer = a.registerer
	}
	return cfg, nil
}

// Bridges returns the bridges added so far.
func (a *Application) Bridges() []*bridge.Bridge {
	a.bridgesMu.Lock()
	defer a.bridgesMu.Unlock()
	out := make([]*bridge.Bridge, 0, len(a.bridges))
	for _, entry := range a.bridges {
		out = append(out, entry.bridge)
	}
	return out
}

// runBridge starts entry in the background; callers hold bridgesMu.
func (a *Application) runBridge(ctx context.Context, entry *bridgeEntry) {
	a.runWG.Add(1)
	go func() {
		defer a.runWG.Done()
		if err := entry.bridge.Run(ctx); err != nil {
			a.Logger.Error("Bridge stopped", err, logging.LogFields{"channel": entry.bridge.Channel().Name()})
			a.bridgesMu.Lock()
			a.runErrs = append(a.runErrs, err)
			a.bridgesMu.Unlock()
		}
	}()
}

// Run starts the HTTP servers and bridges and blocks until ctx is done. When
// a transport is configured and no bridge was added, the configured bridge
// channel is bridged. Bridges and transports are closed before Run returns.
func (a *Application) Run(ctx context.Context) error {
	a.bridgesMu.Lock()
	if a.runCtx != nil {
		a.bridgesMu.Unlock()
		return errors.New("puppets: application already running")
	}
	needsDefault := len(a.bridges) == 0 && a.Conf.Transport != ""
	a.bridgesMu.Unlock()

	if needsDefault {
		if _, err := a.Bridge(ctx, a.Conf.BridgeChannel, bridge.Config{}); err != nil {
			return fmt.Errorf("bridge %q: %w", a.Conf.BridgeChannel, err)
		}
	}

	a.registerMetricsHandler()
	a.registerInspector()
	servers := a.startHTTPServers()

	a.bridgesMu.Lock()
	a.runCtx = ctx
	for _, entry := range a.bridges {
		a.runBridge(ctx, entry)
	}
	a.bridgesMu.Unlock()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}
	a.runWG.Wait()
	errs = append(errs, a.Close())

	a.bridgesMu.Lock()
	errs = append(errs, a.runErrs...)
	a.runErrs = nil
	a.runCtx = nil
	a.bridgesMu.Unlock()
	return errors.Join(errs...)
}

// Close stops every bridge and closes its transport.
func (a *Application) Close() error {
	a.bridgesMu.Lock()
	entries := a.bridges
	a.bridges = nil
	a.bridgesMu.Unlock()

	var errs []error
	for _, entry := range entries {
		if err := entry.bridge.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := entry.transport.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *Application) registerMetricsHandler() {
	if a.metrics == nil || a.Conf.MetricsPort <= 0 {
		return
	}
	handler := promhttp.Handler()
	if gatherer, ok := a.registerer.(prometheus.Gatherer); ok {
		handler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	a.RegisterHTTPHandler(a.Conf.MetricsPort, "/metrics", handler)
}

// RegisterHTTPHandler serves handler under pattern on port once Run starts.
func (a *Application) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	a.httpServersMu.Lock()
	defer a.httpServersMu.Unlock()

	if a.httpServers == nil {
		a.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := a.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		a.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (a *Application) startHTTPServers() []*http.Server {
	a.httpServersMu.Lock()
	defer a.httpServersMu.Unlock()

	servers := make([]*http.Server, 0, len(a.httpServers))
	for port, mux := range a.httpServers {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		a.Logger.Info("Starting HTTP server", logging.LogFields{"address": srv.Addr})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.Logger.Error("Failed to start HTTP server", err, logging.LogFields{"address": srv.Addr})
			}
		}()
		servers = append(servers, srv)
	}
	return servers
}
