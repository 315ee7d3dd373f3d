package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

func TestExpiredAtMillisIsOneMinuteAheadOfClock(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewStore(fixedClock{now}, 1)

	got := s.ExpiredAtMillis()
	require.Equal(t, now.UnixMilli()+60_000, got)
}

func TestNextSequenceIDIncrementsMonotonically(t *testing.T) {
	s := NewStore(nil, 1)
	first := s.NextSequenceID()
	second := s.NextSequenceID()

	require.Equal(t, first+1, second)
}

func TestNextImageFilenameCyclesThroughTen(t *testing.T) {
	s := NewStore(nil, 1)
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		seen[s.NextImageFilename()] = true
	}
	require.Len(t, seen, 10)

	eleventh := s.NextImageFilename()
	require.Contains(t, seen, eleventh, "the counter wraps back to an earlier filename after ten calls")

	snap := s.Snapshot()
	require.Equal(t, eleventh, snap.Image.FileLocation)
}

func TestUpdateMutatesLiveStateUnderLock(t *testing.T) {
	s := NewStore(nil, 1)
	s.Update(func(st *TelescopeState) {
		st.Mount.IsAligned = true
	})

	require.True(t, s.Snapshot().Mount.IsAligned)
}

func TestViewSeesACopyNotTheLiveState(t *testing.T) {
	s := NewStore(nil, 1)
	s.View(func(snap TelescopeState) {
		snap.Mount.IsAligned = true
	})

	require.False(t, s.Snapshot().Mount.IsAligned, "mutating the View snapshot must not affect the live state")
}

func TestAdvanceCoordinatesKeepsDecWithinRange(t *testing.T) {
	s := NewStore(nil, 1)
	for i := 0; i < 1000; i++ {
		s.AdvanceCoordinates(500 * time.Millisecond)
	}
	dec := s.Snapshot().Mount.Dec
	require.LessOrEqual(t, dec, 1.5708001)
	require.GreaterOrEqual(t, dec, -1.5708001)
}

func TestRandomPercentStaysWithinZeroToHundred(t *testing.T) {
	s := NewStore(nil, 42)
	for i := 0; i < 1000; i++ {
		v := s.RandomPercent()
		require.GreaterOrEqual(t, v, 0.0)
		require.Less(t, v, 100.0)
	}
}
