package runtime

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/puppets/internal/runtime/config"
	"github.com/drblury/puppets/internal/runtime/dispatch"
	"github.com/drblury/puppets/internal/runtime/lifecycle"
)

// manualScheduler holds scheduled functions until Flush runs them.
type manualScheduler struct {
	mu        sync.Mutex
	pending   []*scheduled
	durations []time.Duration
}

type scheduled struct {
	fn        func()
	cancelled bool
}

func (s *manualScheduler) Schedule(d time.Duration, f func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := &scheduled{fn: f}
	s.pending = append(s.pending, job)
	s.durations = append(s.durations, d)
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		was := !job.cancelled
		job.cancelled = true
		return was
	}
}

func (s *manualScheduler) Flush() int {
	s.mu.Lock()
	jobs := s.pending
	s.pending = nil
	s.mu.Unlock()

	ran := 0
	for _, job := range jobs {
		s.mu.Lock()
		cancelled := job.cancelled
		s.mu.Unlock()
		if !cancelled {
			job.fn()
			ran++
		}
	}
	return ran
}

func regionEvents(r *HeadlessRegion) *recorder {
	rec := newRecorder()
	r.Events().On(dispatch.AllEvents, rec.all())
	return rec
}

func TestNewHeadlessRegion_Defaults(t *testing.T) {
	r := NewHeadlessRegion("", 0)
	transition, duration := r.Transition()
	assert.Equal(t, config.TransitionPop, transition)
	assert.Equal(t, config.DefaultDuration, duration)
	assert.Nil(t, r.Current())
}

func TestHeadlessRegion_PopIsSynchronous(t *testing.T) {
	r := NewHeadlessRegion(config.TransitionPop, time.Second)
	rec := regionEvents(r)

	require.NoError(t, r.Show("home"))
	assert.Equal(t, "home", r.Current())
	require.NoError(t, r.Close())
	assert.Nil(t, r.Current())

	assert.Equal(t, []string{"open", "ready", "closing", "close"}, rec.Events())
}

func TestHeadlessRegion_ShowNil(t *testing.T) {
	r := NewHeadlessRegion("", 0)
	assert.Error(t, r.Show(nil))
}

func TestHeadlessRegion_CloseEmpty(t *testing.T) {
	r := NewHeadlessRegion("", 0)
	rec := regionEvents(r)

	require.NoError(t, r.Close())
	assert.Empty(t, rec.Events())
}

func TestHeadlessRegion_TimedTransition(t *testing.T) {
	sched := &manualScheduler{}
	r := NewHeadlessRegion(config.TransitionFade, 250*time.Millisecond)
	r.Schedule = sched.Schedule
	rec := regionEvents(r)

	require.NoError(t, r.Show("home"))
	assert.Equal(t, []string{"open"}, rec.Events())

	assert.Equal(t, 1, sched.Flush())
	assert.Equal(t, []string{"open", "ready"}, rec.Events())
	assert.Equal(t, []time.Duration{250 * time.Millisecond}, sched.durations)
}

func TestHeadlessRegion_ShowCancelsPendingTransition(t *testing.T) {
	sched := &manualScheduler{}
	r := NewHeadlessRegion(config.TransitionSlide, time.Second)
	r.Schedule = sched.Schedule
	rec := regionEvents(r)

	require.NoError(t, r.Show("home"))
	require.NoError(t, r.Show("settings"))

	assert.Equal(t, 1, sched.Flush())
	assert.Equal(t, []string{"open", "open", "ready"}, rec.Events())
	assert.Equal(t, "settings", r.Current())
}

func TestHeadlessRegion_CloseShutsViewDown(t *testing.T) {
	r := NewHeadlessRegion(config.TransitionPop, 0)
	view := &countingPiece{}

	require.NoError(t, r.Show(view))
	require.NoError(t, r.Close())
	assert.Equal(t, 1, view.Closed())
}

func TestPuppet_RegionDrivesLifecycle(t *testing.T) {
	app := newTestApp(t)
	region := NewHeadlessRegion("", 0)
	p, err := app.Puppet("sidebar", Definition{}, Options{Region: region, View: "home"})
	require.NoError(t, err)

	rec := newRecorder()
	app.Global().Vent.On(dispatch.AllEvents, rec.all())
	local := newRecorder()
	p.Local().Vent.On(dispatch.AllEvents, local.all())

	assert.Contains(t, p.PieceNames(), RegionPieceName)
	assert.True(t, app.Global().Commands.HasHandler("show:puppets.sidebar"))
	assert.True(t, app.Global().Commands.HasHandler("close:puppets.sidebar"))

	require.NoError(t, p.Start())
	assert.Equal(t, lifecycle.Ready, p.State())
	assert.Equal(t, "home", region.Current())

	require.NoError(t, p.Stop())
	assert.Equal(t, lifecycle.Stopped, p.State())
	assert.Nil(t, region.Current())

	assert.Equal(t, []string{
		"start:puppets.sidebar",
		"ready:puppets.sidebar",
		"closing:puppets.sidebar",
		"close:puppets.sidebar",
	}, rec.Events())
	assert.Equal(t, []string{
		lifecycle.EventOpen,
		lifecycle.EventReady,
		lifecycle.EventClosing,
		lifecycle.EventClose,
	}, local.Events())
}

func TestPuppet_TimedRegionDefersFinalizers(t *testing.T) {
	app := newTestApp(t)
	sched := &manualScheduler{}
	region := NewHeadlessRegion("", 0)
	region.Schedule = sched.Schedule
	piece := &countingPiece{}

	p, err := app.Puppet("sidebar", Definition{}, Options{
		Region:     region,
		View:       "home",
		Transition: config.TransitionFade,
		Duration:   time.Second,
		Pieces: map[string]PieceFactory{
			"list": func(PieceContext) (any, error) { return piece, nil },
		},
	})
	require.NoError(t, err)

	require.NoError(t, p.Start())
	assert.Equal(t, lifecycle.Started, p.State())
	sched.Flush()
	assert.Equal(t, lifecycle.Ready, p.State())

	require.NoError(t, p.Stop())
	assert.Equal(t, lifecycle.Stopping, p.State())
	assert.Zero(t, piece.Closed())

	sched.Flush()
	assert.Equal(t, lifecycle.Stopped, p.State())
	assert.Equal(t, 1, piece.Closed())
	assert.Equal(t, []time.Duration{time.Second, time.Second}, sched.durations)
}

func TestPuppet_RegionClosingStopsPuppet(t *testing.T) {
	app := newTestApp(t)
	region := NewHeadlessRegion("", 0)
	piece := &countingPiece{}
	finalized := 0
	p, err := app.Puppet("sidebar", Definition{
		Initialize: func(p *Puppet) error {
			p.AddFinalizer(func() error {
				finalized++
				return nil
			})
			return nil
		},
	}, Options{
		Region: region,
		View:   "home",
		Pieces: map[string]PieceFactory{
			"list": func(PieceContext) (any, error) { return piece, nil },
		},
	})
	require.NoError(t, err)
	require.NoError(t, p.Start())

	require.NoError(t, region.Close())

	assert.Equal(t, lifecycle.Stopped, p.State())
	stopped, err := app.Global().Reqres.RequestBool("isStopped:puppets.sidebar")
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.Equal(t, 1, finalized)
	assert.Equal(t, 1, piece.Closed())

	require.NoError(t, app.Global().Commands.Execute("start:puppets.sidebar"))
	assert.Equal(t, lifecycle.Ready, p.State())
	assert.Equal(t, "home", region.Current())
}

func TestPuppet_ShowAndClose(t *testing.T) {
	app := newTestApp(t)
	region := NewHeadlessRegion("", 0)
	p, err := app.Puppet("sidebar", Definition{}, Options{Region: region, View: "home"})
	require.NoError(t, err)

	require.NoError(t, app.Global().Commands.Execute("show:puppets.sidebar"))
	assert.Equal(t, "home", region.Current())
	assert.Equal(t, lifecycle.Ready, p.State())

	require.NoError(t, app.Global().Commands.Execute("close:puppets.sidebar"))
	assert.Nil(t, region.Current())
	assert.Equal(t, lifecycle.Stopped, p.State())
}

func TestPuppet_ShowWithoutRegion(t *testing.T) {
	app := newTestApp(t)
	p, err := app.Puppet("sidebar", Definition{}, Options{})
	require.NoError(t, err)

	assert.NoError(t, p.Show())
	assert.NoError(t, p.Close())
	assert.Equal(t, lifecycle.Stopped, p.State())
}
