// Package activity implements the three simulated long-running device
// activities (§4.5): Slew, Imaging and Initialization. Each is a small
// tick-driven state machine running on its own goroutine and ticker,
// mutating the shared state.Store and asking a Broadcaster to push the
// resulting notifications, mirroring the reference device's per-activity
// timer threads (OriginSimulator's slew/imaging/initialization loops).
package activity

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/originsim/origin-server/internal/state"
	"github.com/originsim/origin-server/internal/telemetry"
)

const (
	slewTick  = 500 * time.Millisecond
	slewStep  = 20
	slewDone  = 100

	imagingTick = 1000 * time.Millisecond

	initTick           = 3000 * time.Millisecond
	initFailureChance  = 10.0
	initFocusCounter   = 5
	initPointsCounter  = 10
	initSuccessCounter = 15

	initFailureErrorCode = -78
	initFailureMessage   = "Initialization failed. Please point the scope away from any bright lights; buildings; trees and try again."
)

// Broadcaster is the emitter's narrow surface an activity needs: pushing a
// subsystem status out to every connection, and reporting an asynchronous
// error. Kept as an interface so activity has no import-time dependency on
// the emitter package.
type Broadcaster interface {
	BroadcastMountStatus()
	BroadcastNewImageReady()
	BroadcastError(code int, message string)
}

// Scheduler runs the three activities against a shared state.Store and
// Broadcaster. It satisfies dispatch.Activities.
type Scheduler struct {
	store *state.Store
	out   Broadcaster

	slewTick    time.Duration
	imagingTick time.Duration
	initTick    time.Duration

	// afterFunc is swappable in tests so "after 1s" style continuations
	// don't need a real wall-clock second.
	afterFunc func(time.Duration, func())

	// randomPercent draws the uniform [0,100) value the initialization
	// activity checks against initFailureChance. Defaults to the state
	// store's seeded RNG so a run is reproducible given the same seed.
	randomPercent func() float64
}

// milestone emits a zero-duration span marking a point-in-time activity
// transition (slew complete, imaging complete, init succeeded/failed), since
// the ticker loops themselves are long-running and not worth spanning.
func milestone(name string, attrs ...attribute.KeyValue) {
	_, span := telemetry.Tracer().Start(context.Background(), name)
	span.SetAttributes(attrs...)
	span.End()
}

// New builds a Scheduler. Starting an activity a second time while one of
// the same kind is already running starts a second, independent run with
// its own ticker alongside the first; nothing guards against that, and the
// reference device never guards against it either.
func New(store *state.Store, out Broadcaster) *Scheduler {
	return &Scheduler{
		store:         store,
		out:           out,
		slewTick:      slewTick,
		imagingTick:   imagingTick,
		initTick:      initTick,
		afterFunc:     func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
		randomPercent: store.RandomPercent,
	}
}

// StartSlew runs the slew activity to completion on its own goroutine.
func (s *Scheduler) StartSlew() {
	go s.runSlew()
}

func (s *Scheduler) runSlew() {
	ticker := time.NewTicker(s.slewTick)
	defer ticker.Stop()

	progress := 0
	for range ticker.C {
		progress += slewStep
		if progress < slewDone {
			continue
		}

		var targetRa, targetDec float64
		s.store.Update(func(st *state.TelescopeState) {
			targetRa = st.Mount.TargetRa
			targetDec = st.Mount.TargetDec
			st.Mount.Ra = targetRa
			st.Mount.Dec = targetDec
			st.Mount.IsSlewing = false
			st.Mount.IsGotoOver = true
		})
		s.out.BroadcastMountStatus()
		milestone("activity.slew.complete", attribute.Float64("origin.ra", targetRa), attribute.Float64("origin.dec", targetDec))

		s.afterFunc(100*time.Millisecond, s.out.BroadcastNewImageReady)
		return
	}
}

// StartImaging runs the imaging activity to completion on its own
// goroutine.
func (s *Scheduler) StartImaging() {
	go s.runImaging()
}

func (s *Scheduler) runImaging() {
	ticker := time.NewTicker(s.imagingTick)
	defer ticker.Stop()

	for range ticker.C {
		var timeLeft int
		s.store.Update(func(st *state.TelescopeState) {
			if st.Imaging.ImagingTimeLeft > 0 {
				st.Imaging.ImagingTimeLeft--
			}
			timeLeft = st.Imaging.ImagingTimeLeft
		})

		s.out.BroadcastNewImageReady()

		if timeLeft <= 0 {
			s.store.Update(func(st *state.TelescopeState) { st.Imaging.IsImaging = false })
			milestone("activity.imaging.complete")
			return
		}
	}
}

// StartInitialize runs the initialization activity. When fake is true it
// skips the ticker entirely and succeeds after 1s, matching the reference
// device's "fake initialize" shortcut used by factory test tooling.
func (s *Scheduler) StartInitialize(fake bool) {
	if fake {
		s.afterFunc(time.Second, s.succeedInitialize)
		return
	}
	go s.runInitialize()
}

func (s *Scheduler) runInitialize() {
	ticker := time.NewTicker(s.initTick)
	defer ticker.Stop()

	counter := 0
	for range ticker.C {
		counter++

		if counter < initPointsCounter {
			if s.randomPercent() < initFailureChance {
				s.failInitialize()
				return
			}
		}

		switch {
		case counter == initFocusCounter:
			s.store.Update(func(st *state.TelescopeState) { st.Init.PositionOfFocus = 18617 })
		case counter == initPointsCounter:
			s.store.Update(func(st *state.TelescopeState) {
				st.Init.NumPoints = 1
				st.Init.NumPointsRemaining = 1
				st.Init.PercentComplete = 50
			})
		}

		if counter >= initSuccessCounter {
			s.succeedInitialize()
			return
		}
	}
}

func (s *Scheduler) failInitialize() {
	s.store.Update(func(st *state.TelescopeState) {
		st.Task.Stage = state.StageStopped
		st.Task.IsReady = false
	})
	s.out.BroadcastError(initFailureErrorCode, initFailureMessage)
	milestone("activity.initialize.failed", attribute.Int("origin.error_code", initFailureErrorCode))
}

func (s *Scheduler) succeedInitialize() {
	s.store.Update(func(st *state.TelescopeState) {
		st.Init.NumPoints = 2
		st.Init.PercentComplete = 100
		st.Task.Stage = state.StageComplete
		st.Task.IsReady = true
	})
	milestone("activity.initialize.succeeded")
	s.afterFunc(time.Second, func() {
		s.store.Update(func(st *state.TelescopeState) { st.Task.State = state.TaskIdle })
	})
}
