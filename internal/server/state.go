package server

import (
	"sync/atomic"
	"time"
)

// State tracks liveness facts the HTTP surface reports.
type State struct {
	ready     atomic.Bool
	startedAt time.Time

	requireWS   bool
	wsConnected atomic.Bool
	lastSignal  atomic.Int64 // unix seconds
}

// NewState returns a not-yet-ready state. With requireWS set, readiness also
// waits for the exchange socket to be open.
func NewState(requireWS bool) *State {
	return &State{startedAt: time.Now(), requireWS: requireWS}
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }

func (s *State) Ready() bool {
	if !s.ready.Load() {
		return false
	}
	return !s.requireWS || s.wsConnected.Load()
}

func (s *State) SetWSConnected(v bool) { s.wsConnected.Store(v) }
func (s *State) WSConnected() bool     { return s.wsConnected.Load() }

func (s *State) TouchSignal(t time.Time) { s.lastSignal.Store(t.Unix()) }
func (s *State) LastSignal() time.Time {
	u := s.lastSignal.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
