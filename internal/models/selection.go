package models

import (
	"slices"
	"sync"
)

// Selection tracks the model picked for the session. The current value is
// always one of the offered models.
type Selection struct {
	mu      sync.RWMutex
	offered []string
	current string
}

// NewSelection keeps initial when it is offered and otherwise starts on the
// first offered model. An empty offered list falls back to Default.
func NewSelection(offered []string, initial string) *Selection {
	if len(offered) == 0 {
		offered = []string{Default}
	}
	s := &Selection{offered: slices.Clone(offered), current: offered[0]}
	if slices.Contains(offered, initial) {
		s.current = initial
	}
	return s
}

func (s *Selection) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Selection) Offered() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.offered)
}

// Set switches to candidate if it is offered. It reports whether the
// selection changed hands to candidate.
func (s *Selection) Set(candidate string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.offered, candidate) {
		return false
	}
	s.current = candidate
	return true
}

// Next advances to the following offered model, wrapping around.
func (s *Selection) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.Index(s.offered, s.current)
	s.current = s.offered[(idx+1)%len(s.offered)]
	return s.current
}
