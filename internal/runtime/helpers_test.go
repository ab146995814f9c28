package runtime

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/drblury/puppets/internal/runtime/channel"
	"github.com/drblury/puppets/internal/runtime/config"
	"github.com/drblury/puppets/internal/runtime/logging"
)

type logEntry struct {
	level  string
	msg    string
	err    error
	fields logging.LogFields
}

// recordingLogger keeps every entry in order, including the entries of
// loggers derived with With.
type recordingLogger struct {
	mu      *sync.Mutex
	entries *[]logEntry
	fields  logging.LogFields
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{mu: &sync.Mutex{}, entries: &[]logEntry{}}
}

func (l *recordingLogger) With(fields logging.LogFields) logging.ServiceLogger {
	merged := make(logging.LogFields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &recordingLogger{mu: l.mu, entries: l.entries, fields: merged}
}

func (l *recordingLogger) record(level, msg string, err error, fields logging.LogFields) {
	merged := make(logging.LogFields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, logEntry{level: level, msg: msg, err: err, fields: merged})
}

func (l *recordingLogger) Debug(msg string, fields logging.LogFields) {
	l.record("debug", msg, nil, fields)
}

func (l *recordingLogger) Info(msg string, fields logging.LogFields) {
	l.record("info", msg, nil, fields)
}

func (l *recordingLogger) Warn(msg string, err error, fields logging.LogFields) {
	l.record("warn", msg, err, fields)
}

func (l *recordingLogger) Error(msg string, err error, fields logging.LogFields) {
	l.record("error", msg, err, fields)
}

func (l *recordingLogger) Trace(msg string, fields logging.LogFields) {
	l.record("trace", msg, nil, fields)
}

func (l *recordingLogger) byMessage(msg string) []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logEntry
	for _, e := range *l.entries {
		if e.msg == msg {
			out = append(out, e)
		}
	}
	return out
}

func newTestApp(t *testing.T) *Application {
	t.Helper()
	app, err := NewApplication(&config.Config{NodeID: "test-node"}, logging.NopLogger(), Dependencies{})
	require.NoError(t, err)
	return app
}

func newMetricsApp(t *testing.T) (*Application, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	app, err := NewApplication(
		&config.Config{NodeID: "test-node", MetricsEnabled: true},
		logging.NopLogger(),
		Dependencies{Registerer: reg},
	)
	require.NoError(t, err)
	return app, reg
}

// countResets returns an application whose registry counts resets per
// channel.
func countResets(t *testing.T) (*Application, func(string) int) {
	t.Helper()
	var mu sync.Mutex
	resets := make(map[string]int)
	registry := channel.NewRegistry(channel.WithResetObserver(channel.ResetObserverFunc(func(name string) {
		mu.Lock()
		defer mu.Unlock()
		resets[name]++
	})))
	app, err := NewApplication(&config.Config{NodeID: "test-node"}, logging.NopLogger(), Dependencies{Registry: registry})
	require.NoError(t, err)
	return app, func(name string) int {
		mu.Lock()
		defer mu.Unlock()
		return resets[name]
	}
}

// recorder collects the events triggered on a vent in order.
type recorder struct {
	mu     sync.Mutex
	events []string
	args   map[string][][]any
}

func newRecorder() *recorder {
	return &recorder{args: make(map[string][][]any)}
}

func (r *recorder) handler(event string) func(args ...any) any {
	return func(args ...any) any {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, event)
		r.args[event] = append(r.args[event], args)
		return nil
	}
}

func (r *recorder) all() func(args ...any) any {
	return func(args ...any) any {
		event, _ := args[0].(string)
		return r.handler(event)(args[1:]...)
	}
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) Count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.args[event])
}

func (r *recorder) Args(event string) [][]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]any(nil), r.args[event]...)
}

// countingPiece counts how often the puppet shuts it down.
type countingPiece struct {
	Component
	mu     sync.Mutex
	closed int
}

func (p *countingPiece) Close() error {
	p.mu.Lock()
	p.closed++
	p.mu.Unlock()
	return p.Component.Close()
}

func (p *countingPiece) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// removablePiece only implements Remover.
type removablePiece struct {
	mu      sync.Mutex
	removed int
}

func (p *removablePiece) Remove() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed++
}

func (p *removablePiece) Removed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removed
}

// countingRegion counts how often the region is closed.
type countingRegion struct {
	*HeadlessRegion
	mu     sync.Mutex
	closes int
}

func newCountingRegion() *countingRegion {
	return &countingRegion{HeadlessRegion: NewHeadlessRegion("", 0)}
}

func (r *countingRegion) Close() error {
	r.mu.Lock()
	r.closes++
	r.mu.Unlock()
	return r.HeadlessRegion.Close()
}

func (r *countingRegion) Closes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closes
}
