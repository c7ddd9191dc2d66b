// Package badge tracks the per-tab verdict indicator.
//
// A tab judged phishing shows the warning badge ("!" on red). A safe
// verdict clears it. Failed scans never change any badge.
package badge

import (
	"maps"
	"sync"

	"github.com/nao1215/phishguard/internal/model"
)

// Store holds the current badge of every tab. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	badges map[model.TabID]model.Badge
}

// NewStore creates an empty Store. Every tab starts with a cleared badge.
func NewStore() *Store {
	return &Store{badges: make(map[model.TabID]model.Badge)}
}

// Apply updates the badge of the result's tab from its verdict and reports
// whether the badge changed. Failed results leave the badge untouched.
func (s *Store) Apply(result model.ScanResult) (model.Badge, bool) {
	if result.Failed() || !result.TabID.Valid() {
		return s.Get(result.TabID), false
	}
	return s.Set(result.TabID, model.BadgeFor(result.IsPhishing))
}

// Set replaces the badge of tab and reports whether it changed.
func (s *Store) Set(tab model.TabID, b model.Badge) (model.Badge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.badges[tab]
	if b.Cleared() {
		delete(s.badges, tab)
	} else {
		s.badges[tab] = b
	}
	return b, prev != b
}

// Get returns the badge of tab.
func (s *Store) Get(tab model.TabID) model.Badge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.badges[tab]
}

// Forget drops all state for a closed tab.
func (s *Store) Forget(tab model.TabID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.badges, tab)
}

// Snapshot returns a copy of every badge that is currently set.
func (s *Store) Snapshot() map[model.TabID]model.Badge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.badges)
}
