package runtime

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/puppets/internal/runtime/dispatch"
	"github.com/drblury/puppets/internal/runtime/lifecycle"
)

// Metrics tracks dispatch and lifecycle statistics. It observes every channel
// of a registry and every puppet of an application.
type Metrics struct {
	mu sync.RWMutex

	channels map[string]*ChannelMetrics
	puppets  map[string]*PuppetMetrics

	dispatchTotal    *prometheus.CounterVec
	dispatchFailures *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	resetsTotal      *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	rejectedTotal    *prometheus.CounterVec
	puppetState      *prometheus.GaugeVec

	registerer prometheus.Registerer
	registered bool
}

// ChannelMetrics holds the counters of one channel.
type ChannelMetrics struct {
	Events         uint64    `json:"events"`
	Commands       uint64    `json:"commands"`
	Requests       uint64    `json:"requests"`
	Failures       uint64    `json:"failures"`
	Resets         uint64    `json:"resets"`
	LastDispatchAt time.Time `json:"last_dispatch_at,omitempty"`
}

// PuppetMetrics holds the lifecycle counters of one puppet.
type PuppetMetrics struct {
	State            lifecycle.State `json:"state"`
	Transitions      uint64          `json:"transitions"`
	Rejected         uint64          `json:"rejected"`
	LastTransitionAt time.Time       `json:"last_transition_at,omitempty"`
}

// MetricsSnapshot provides a point-in-time view of the metrics.
type MetricsSnapshot struct {
	TotalDispatches uint64                     `json:"total_dispatches"`
	TotalFailures   uint64                     `json:"total_failures"`
	Channels        map[string]*ChannelMetrics `json:"channels"`
	Puppets         map[string]*PuppetMetrics  `json:"puppets"`
	CollectedAt     time.Time                  `json:"collected_at"`
}

func newCounterVec(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "puppets",
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewMetrics creates a collector. A nil registerer selects the default one.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		channels:         make(map[string]*ChannelMetrics),
		puppets:          make(map[string]*PuppetMetrics),
		registerer:       registerer,
		dispatchTotal:    newCounterVec("dispatch", "total", "Total number of triggers, commands and requests dispatched", []string{"channel", "kind"}),
		dispatchFailures: newCounterVec("dispatch", "failures_total", "Total number of dispatches that failed or had no handler", []string{"channel", "kind"}),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "puppets",
				Subsystem: "dispatch",
				Name:      "duration_seconds",
				Help:      "Time spent running the handlers of one dispatch",
				Buckets:   []float64{.00001, .0001, .001, .01, .1, 1},
			},
			[]string{"kind"},
		),
		resetsTotal:      newCounterVec("channel", "resets_total", "Total number of channel resets", []string{"channel"}),
		transitionsTotal: newCounterVec("lifecycle", "transitions_total", "Total number of accepted lifecycle transitions", []string{"puppet", "from", "to"}),
		rejectedTotal:    newCounterVec("lifecycle", "rejected_total", "Total number of lifecycle events rejected by the table", []string{"puppet"}),
		puppetState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "puppets",
				Subsystem: "lifecycle",
				Name:      "state",
				Help:      "1 for the current lifecycle state of a puppet, 0 otherwise",
			},
			[]string{"puppet", "state"},
		),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.dispatchTotal,
		m.dispatchFailures,
		m.dispatchDuration,
		m.resetsTotal,
		m.transitionsTotal,
		m.rejectedTotal,
		m.puppetState,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// ObserveDispatch implements dispatch.Observer.
func (m *Metrics) ObserveDispatch(d dispatch.Dispatch) {
	kind := string(d.Kind)

	m.mu.Lock()
	metrics := m.channelMetrics(d.Channel)
	switch d.Kind {
	case dispatch.KindEvent:
		metrics.Events++
	case dispatch.KindCommand:
		metrics.Commands++
	case dispatch.KindRequest:
		metrics.Requests++
	}
	if d.Err != nil {
		metrics.Failures++
	}
	metrics.LastDispatchAt = time.Now()
	m.mu.Unlock()

	m.dispatchTotal.WithLabelValues(d.Channel, kind).Inc()
	if d.Err != nil {
		m.dispatchFailures.WithLabelValues(d.Channel, kind).Inc()
	}
	m.dispatchDuration.WithLabelValues(kind).Observe(d.Duration.Seconds())
}

// ObserveReset implements channel.ResetObserver.
func (m *Metrics) ObserveReset(channel string) {
	m.mu.Lock()
	m.channelMetrics(channel).Resets++
	m.mu.Unlock()

	m.resetsTotal.WithLabelValues(channel).Inc()
}

// RecordTransition records puppet moving from one state to another.
func (m *Metrics) RecordTransition(puppet string, from, to lifecycle.State) {
	m.mu.Lock()
	metrics := m.puppetMetrics(puppet)
	metrics.State = to
	metrics.Transitions++
	metrics.LastTransitionAt = time.Now()
	m.mu.Unlock()

	m.transitionsTotal.WithLabelValues(puppet, string(from), string(to)).Inc()
	if from != to {
		m.puppetState.WithLabelValues(puppet, string(from)).Set(0)
	}
	m.puppetState.WithLabelValues(puppet, string(to)).Set(1)
}

// RecordRejected records an event the lifecycle table did not permit.
func (m *Metrics) RecordRejected(puppet string) {
	m.mu.Lock()
	m.puppetMetrics(puppet).Rejected++
	m.mu.Unlock()

	m.rejectedTotal.WithLabelValues(puppet).Inc()
}

// ForgetPuppet drops the state gauge and counters of a removed puppet.
func (m *Metrics) ForgetPuppet(puppet string) {
	m.mu.Lock()
	delete(m.puppets, puppet)
	m.mu.Unlock()

	m.puppetState.DeletePartialMatch(prometheus.Labels{"puppet": puppet})
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := MetricsSnapshot{
		Channels:    make(map[string]*ChannelMetrics, len(m.channels)),
		Puppets:     make(map[string]*PuppetMetrics, len(m.puppets)),
		CollectedAt: time.Now(),
	}
	for name, metrics := range m.channels {
		metricsCopy := *metrics
		snapshot.Channels[name] = &metricsCopy
		snapshot.TotalDispatches += metrics.Events + metrics.Commands + metrics.Requests
		snapshot.TotalFailures += metrics.Failures
	}
	for name, metrics := range m.puppets {
		metricsCopy := *metrics
		snapshot.Puppets[name] = &metricsCopy
	}
	return snapshot
}

// ChannelMetrics returns a copy of the counters of channel, or nil.
func (m *Metrics) ChannelMetrics(channel string) *ChannelMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if metrics, ok := m.channels[channel]; ok {
		metricsCopy := *metrics
		return &metricsCopy
	}
	return nil
}

func (m *Metrics) channelMetrics(channel string) *ChannelMetrics {
	if metrics, ok := m.channels[channel]; ok {
		return metrics
	}
	metrics := &ChannelMetrics{}
	m.channels[channel] = metrics
	return metrics
}

func (m *Metrics) puppetMetrics(puppet string) *PuppetMetrics {
	if metrics, ok := m.puppets[puppet]; ok {
		return metrics
	}
	metrics := &PuppetMetrics{State: lifecycle.Stopped}
	m.puppets[puppet] = metrics
	return metrics
}

// Reset resets all metrics (useful for testing).
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.channels = make(map[string]*ChannelMetrics)
	m.puppets = make(map[string]*PuppetMetrics)
	m.dispatchTotal.Reset()
	m.dispatchFailures.Reset()
	m.dispatchDuration.Reset()
	m.resetsTotal.Reset()
	m.transitionsTotal.Reset()
	m.rejectedTotal.Reset()
	m.puppetState.Reset()
}
