package state

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Clock abstracts wall-clock reads so ExpiredAt timestamps and simulated
// progress are deterministic in tests (see spec.md §9: "inject a clock for
// deterministic tests").
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Store is the process-wide, mutex-guarded owner of TelescopeState. All
// mutation happens through its methods, which serialize access the way the
// spec's single serial timeline requires without exposing a lock to callers.
type Store struct {
	mu    sync.Mutex
	state TelescopeState
	clock Clock
	rng   *rand.Rand
}

// NewStore creates a Store seeded with the simulator's default telescope
// state.
func NewStore(clock Clock, rngSeed int64) *Store {
	if clock == nil {
		clock = systemClock{}
	}
	return &Store{
		state: *New(),
		clock: clock,
		rng:   rand.New(rand.NewSource(rngSeed)),
	}
}

// Now returns the store's clock reading.
func (s *Store) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Now()
}

// ExpiredAtMillis is the timestamp every outbound JSON message carries:
// wall-clock milliseconds plus 60,000 (one minute in the future).
func (s *Store) ExpiredAtMillis() int64 {
	return s.clock.Now().UnixMilli() + 60_000
}

// View runs fn with a read-only snapshot of the current state.
func (s *Store) View(fn func(TelescopeState)) {
	s.mu.Lock()
	snap := s.state
	s.mu.Unlock()
	fn(snap)
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() TelescopeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Update runs fn with exclusive access to the live state for mutation.
func (s *Store) Update(fn func(*TelescopeState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}

// NextSequenceID returns the next monotonically increasing sequence number;
// every outbound JSON message gets one.
func (s *Store) NextSequenceID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.CurrentSequenceID++
	return s.state.CurrentSequenceID
}

// NextImageFilename cycles the live-preview filename counter 0-9 and
// returns the resulting URL path, mirroring the reference device's
// Images/Temp/<n>.jpg rotation.
func (s *Store) NextImageFilename() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ImageCounter = (s.state.ImageCounter + 1) % 10
	path := fmt.Sprintf("/SmartScope-1.0/dev2/Images/Temp/%d.jpg", s.state.ImageCounter)
	s.state.Image.FileLocation = path
	return path
}

// AdvanceCoordinates simulates sidereal tracking: ra creeps forward and dec
// picks up a small random jitter, exactly like the reference device's
// updateCelestialCoordinates, called once per emitter tick before a Mount
// notification is built.
func (s *Store) AdvanceCoordinates(dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	const siderealRatePerSecond = 0.0000116 * 1000 // approximate, scaled for per-tick dt in seconds
	deltaRA := dt.Seconds() * siderealRatePerSecond / 1000
	deltaDec := (s.rng.Float64()*20 - 10) * 0.0000001
	s.state.Mount.Ra = normalizeRadians(s.state.Mount.Ra + deltaRA)
	s.state.Mount.Dec = clampDec(s.state.Mount.Dec + deltaDec)
	s.state.Image.Orientation += dt.Seconds() * 0.00001
}

// AdvanceEnvironment applies small bounded random jitter to temperatures and
// flips the orientation sensor's reported altitude between 59 and 60,
// mirroring the reference device's updateEnvironmentalSensors.
func (s *Store) AdvanceEnvironment() {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &s.state.Env
	e.AmbientTemperature = clampf(e.AmbientTemperature+(s.rng.Float64()*10-5)/1000, 15.0, 17.0)
	e.CPUTemperature = clampf(e.CPUTemperature+(s.rng.Float64()*20-10)/1000, 42.0, 45.0)
	e.DewPoint += (s.rng.Float64()*6 - 3) / 1000

	s.state.Orientation.Altitude = 59 + s.rng.Intn(2)

	s.state.diskUpdateTicks++
	if s.state.diskUpdateTicks%100 == 0 {
		s.state.Disk.FreeBytes -= int64(s.rng.Intn(1_000_000))
		if s.state.Disk.FreeBytes < s.state.Disk.Capacity/2 {
			s.state.Disk.FreeBytes = s.state.Disk.Capacity - 10_000_000
		}
		if s.state.Disk.FreeBytes < s.state.Disk.Capacity/10 {
			s.state.Disk.Level = "LOW"
		} else {
			s.state.Disk.Level = "OK"
		}
	}
}

// RandomPercent returns a uniform random value in [0,100), used by the
// initialization activity's failure check.
func (s *Store) RandomPercent() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() * 100
}

func normalizeRadians(v float64) float64 {
	twoPi := 2 * math.Pi
	r := math.Mod(v, twoPi)
	if r < 0 {
		r += twoPi
	}
	return r
}

func clampDec(v float64) float64 {
	half := math.Pi / 2
	if v > half {
		return half
	}
	if v < -half {
		return -half
	}
	return v
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
