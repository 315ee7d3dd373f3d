package activity

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/originsim/origin-server/internal/state"
)

type fakeBroadcaster struct {
	mu              sync.Mutex
	mountBroadcasts int
	imageReadies    int
	errors          []string
}

func (f *fakeBroadcaster) BroadcastMountStatus() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mountBroadcasts++
}

func (f *fakeBroadcaster) BroadcastNewImageReady() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageReadies++
}

func (f *fakeBroadcaster) BroadcastError(code int, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, message)
}

func (f *fakeBroadcaster) counts() (mount, images, errs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mountBroadcasts, f.imageReadies, len(f.errors)
}

func newTestScheduler(out Broadcaster) *Scheduler {
	s := New(state.NewStore(nil, 1), out)
	s.slewTick = time.Millisecond
	s.imagingTick = time.Millisecond
	s.initTick = time.Millisecond
	s.afterFunc = func(_ time.Duration, fn func()) { fn() }
	s.randomPercent = func() float64 { return 99 }
	return s
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestSlewCompletesAfterFiveTicks(t *testing.T) {
	out := &fakeBroadcaster{}
	s := newTestScheduler(out)
	s.store.Update(func(st *state.TelescopeState) {
		st.Mount.TargetRa = 1.23
		st.Mount.TargetDec = 0.5
		st.Mount.IsSlewing = true
		st.Mount.IsGotoOver = false
	})

	s.StartSlew()

	waitFor(t, time.Second, func() bool {
		mount, _, _ := out.counts()
		return mount == 1
	})

	var snap state.TelescopeState
	s.store.View(func(st state.TelescopeState) { snap = st })
	require.False(t, snap.Mount.IsSlewing)
	require.True(t, snap.Mount.IsGotoOver)
	require.InDelta(t, 1.23, snap.Mount.Ra, 1e-9)
	require.InDelta(t, 0.5, snap.Mount.Dec, 1e-9)

	_, images, _ := out.counts()
	require.Equal(t, 1, images)
}

func TestImagingCountsDownAndStops(t *testing.T) {
	out := &fakeBroadcaster{}
	s := newTestScheduler(out)
	s.store.Update(func(st *state.TelescopeState) {
		st.Imaging.IsImaging = true
		st.Imaging.ImagingTimeLeft = 3
	})

	s.StartImaging()

	waitFor(t, time.Second, func() bool {
		var imaging bool
		s.store.View(func(st state.TelescopeState) { imaging = st.Imaging.IsImaging })
		return !imaging
	})

	var snap state.TelescopeState
	s.store.View(func(st state.TelescopeState) { snap = st })
	require.False(t, snap.Imaging.IsImaging)
	require.Equal(t, 0, snap.Imaging.ImagingTimeLeft)

	_, images, _ := out.counts()
	require.Equal(t, 3, images)
}

func TestInitializeSucceedsWhenLucky(t *testing.T) {
	out := &fakeBroadcaster{}
	s := newTestScheduler(out)

	s.StartInitialize(false)

	waitFor(t, 2*time.Second, func() bool {
		var stage state.TaskControllerStage
		var state2 state.TaskControllerState
		s.store.View(func(st state.TelescopeState) { stage = st.Task.Stage; state2 = st.Task.State })
		return stage == state.StageComplete && state2 == state.TaskIdle
	})
}

func TestInitializeFailsWhenRandomDrawIsBelowThreshold(t *testing.T) {
	out := &fakeBroadcaster{}
	s := newTestScheduler(out)
	s.randomPercent = func() float64 { return 0 }

	s.StartInitialize(false)

	waitFor(t, time.Second, func() bool {
		var stage state.TaskControllerStage
		s.store.View(func(st state.TelescopeState) { stage = st.Task.Stage })
		return stage == state.StageStopped
	})

	var snap state.TelescopeState
	s.store.View(func(st state.TelescopeState) { snap = st })
	require.False(t, snap.Task.IsReady)

	_, _, errs := out.counts()
	require.Equal(t, 1, errs)
}

func TestFakeInitializeSkipsTickerAndSucceeds(t *testing.T) {
	out := &fakeBroadcaster{}
	s := newTestScheduler(out)

	s.StartInitialize(true)

	var snap state.TelescopeState
	s.store.View(func(st state.TelescopeState) { snap = st })
	require.Equal(t, state.StageComplete, snap.Task.Stage)
	require.True(t, snap.Task.IsReady)
	require.Equal(t, state.TaskIdle, snap.Task.State)
}
