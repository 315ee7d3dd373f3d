// Package persist carries the teacher's BuntDB storage layer forward into
// this domain: instead of flight history, it persists the two pieces of
// telescope state that would otherwise reset on every restart, the
// astrophotography directory listing and the live-preview image counter,
// the same "open once, Update/View per operation" shape as the teacher's
// storage.Store.
package persist

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/buntdb"

	"github.com/originsim/origin-server/internal/state"
	"github.com/originsim/origin-server/internal/telemetry"
)

const (
	keyImageCounter = "image:counter"
	keyAstroDirs    = "astro:dirs"

	defaultSyncInterval = 30 * time.Second
)

// Store wraps a BuntDB file. A nil *Store is valid and every method on it
// is a no-op, so callers can leave persistence disabled without branching.
type Store struct {
	db *buntdb.DB
}

// Open opens (creating if missing) a BuntDB file at path. An empty path
// falls back to ./data/origin-sim.buntdb, mirroring the teacher's
// ./data/flight.buntdb default.
func Open(path string) (*Store, error) {
	if path == "" {
		path = filepath.Join(".", "data", "origin-sim.buntdb")
	}
	if dir := filepath.Dir(path); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Restore loads a previously persisted image counter and astrophotography
// directory listing into store, if present. A first run (or a disabled
// Store) leaves the simulator's seeded defaults untouched.
func (s *Store) Restore(store *state.Store) {
	if s == nil || s.db == nil {
		return
	}
	var counter int
	var dirs []state.AstroDir
	haveCounter, haveDirs := false, false

	_ = s.db.View(func(tx *buntdb.Tx) error {
		if v, err := tx.Get(keyImageCounter); err == nil {
			if json.Unmarshal([]byte(v), &counter) == nil {
				haveCounter = true
			}
		}
		if v, err := tx.Get(keyAstroDirs); err == nil {
			if json.Unmarshal([]byte(v), &dirs) == nil {
				haveDirs = true
			}
		}
		return nil
	})

	if !haveCounter && !haveDirs {
		return
	}
	store.Update(func(st *state.TelescopeState) {
		if haveCounter {
			st.ImageCounter = counter
		}
		if haveDirs {
			st.AstroDirs = dirs
		}
	})
	telemetry.Debugf("persist: restored image counter and %d astro directories", len(dirs))
}

// Persist snapshots the image counter and directory listing and writes
// them back to disk.
func (s *Store) Persist(store *state.Store) error {
	if s == nil || s.db == nil {
		return nil
	}
	snap := store.Snapshot()
	counterJSON, err := json.Marshal(snap.ImageCounter)
	if err != nil {
		return err
	}
	dirsJSON, err := json.Marshal(snap.AstroDirs)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		if _, _, err := tx.Set(keyImageCounter, string(counterJSON), nil); err != nil {
			return err
		}
		_, _, err := tx.Set(keyAstroDirs, string(dirsJSON), nil)
		return err
	})
}

// Run persists on a fixed interval until stop is closed, persisting once
// more on the way out so the final state survives a clean shutdown. A
// zero interval falls back to defaultSyncInterval.
func (s *Store) Run(store *state.Store, interval time.Duration, stop <-chan struct{}) {
	if s == nil || s.db == nil {
		return
	}
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			if err := s.Persist(store); err != nil {
				telemetry.Debugf("persist: final save failed: %v", err)
			}
			return
		case <-ticker.C:
			if err := s.Persist(store); err != nil {
				telemetry.Debugf("persist: periodic save failed: %v", err)
			}
		}
	}
}
