// Package gate tracks the gate door contact reported by the cloud feed.
package gate

import (
	"sync"
	"time"
)

// maxPending bounds the changes kept between two reads of the poll loop.
const maxPending = 64

// Change is one transition of the door contact.
type Change struct {
	Open bool
	At   time.Time
}

// State is the latest door contact reading plus the changes not yet taken by
// the poll loop. The feed goroutine writes it and the poll loop reads it.
type State struct {
	mu      sync.Mutex
	now     func() time.Time
	open    bool
	known   bool
	updated time.Time
	pending []Change
}

// NewState creates a state stamping readings with now. The zero State uses
// time.Now.
func NewState(now func() time.Time) *State {
	return &State{now: now}
}

// Set records a new reading. It matches the listener callback signature.
func (s *State) Set(open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := time.Now()
	if s.now != nil {
		at = s.now()
	}
	if !s.known || s.open != open {
		if len(s.pending) == maxPending {
			s.pending = s.pending[1:]
		}
		s.pending = append(s.pending, Change{Open: open, At: at})
	}
	s.open = open
	s.known = true
	s.updated = at
}

// Updated returns when the last reading arrived.
func (s *State) Updated() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updated
}

// Changes returns the transitions since the previous call, oldest first.
func (s *State) Changes() []Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	changes := s.pending
	s.pending = nil
	return changes
}

// Text renders a reading for logs.
func Text(open bool) string {
	if open {
		return "OPEN"
	}
	return "CLOSED"
}
