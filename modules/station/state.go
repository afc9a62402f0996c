package station

import (
	"sync/atomic"
	"time"
)

// State is the process-wide view of the station. The status is swapped as a
// whole so readers never see a half-applied refresh.
type State struct {
	status    atomic.Pointer[Status]
	updatedAt atomic.Pointer[time.Time]
	playing   atomic.Bool
}

// NewState returns a State holding the startup defaults.
func NewState(stationName string) *State {
	s := &State{}
	s.status.Store(&Status{Title: stationName})
	return s
}

// Status returns the current snapshot.
func (s *State) Status() Status {
	return *s.status.Load()
}

// Replace installs a new snapshot.
func (s *State) Replace(status Status) {
	now := time.Now()
	s.status.Store(&status)
	s.updatedAt.Store(&now)
}

// UpdatedAt returns when the snapshot was last replaced, or nil if it still
// holds the startup defaults.
func (s *State) UpdatedAt() *time.Time {
	return s.updatedAt.Load()
}

func (s *State) Playing() bool {
	return s.playing.Load()
}

func (s *State) SetPlaying(playing bool) {
	s.playing.Store(playing)
}
