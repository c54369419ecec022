package pactmock

import (
	"sync"
)

// Interactions is the registry of expected interactions for one mock
// server instance. Registration order is preserved and reflected in every
// listing; matched state is tracked per registration identity, so two
// interactions with identical definitions are exercised independently.
type Interactions struct {
	mu            sync.Mutex
	registered    []*Interaction
	matched       map[string]struct{}
	recordHistory bool
}

func NewInteractions() *Interactions {
	return &Interactions{matched: map[string]struct{}{}}
}

// RecordHistory makes subsequently registered interactions keep a full
// request history instead of just the last request and a counter.
func (s *Interactions) RecordHistory(record bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordHistory = record
}

func (s *Interactions) Register(interaction *Interaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	interaction.recordHistory = s.recordHistory
	s.registered = append(s.registered, interaction)
}

// Clear empties the registry and the matched set in one step, returning
// the instance to its initial state.
func (s *Interactions) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registered = nil
	s.matched = map[string]struct{}{}
}

// MarkMatched records that the interaction received a fully matching
// request. Marking twice is idempotent; marking an interaction that was
// cleared in the meantime is a no-op, keeping the matched set a subset of
// the registered set.
func (s *Interactions) MarkMatched(interaction *Interaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, registered := range s.registered {
		if registered.ID == interaction.ID {
			s.matched[interaction.ID] = struct{}{}
			return
		}
	}
}

// Load finds a registered interaction by ID or description. With
// duplicate descriptions the earliest registration wins.
func (s *Interactions) Load(key string) (*Interaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, interaction := range s.registered {
		if interaction.ID == key {
			return interaction, true
		}
	}
	for _, interaction := range s.registered {
		if interaction.Description == key {
			return interaction, true
		}
	}
	return nil, false
}

// All returns a snapshot of the registered interactions in registration
// order.
func (s *Interactions) All() []*Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]*Interaction, len(s.registered))
	copy(all, s.registered)
	return all
}

// Unmatched returns the registered interactions that have not received a
// fully matching request, in registration order.
func (s *Interactions) Unmatched() []*Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	unmatched := make([]*Interaction, 0)
	for _, interaction := range s.registered {
		if _, ok := s.matched[interaction.ID]; !ok {
			unmatched = append(unmatched, interaction)
		}
	}
	return unmatched
}

// AllMatched reports whether every registered interaction received a
// fully matching request. Vacuously true for an empty registry.
func (s *Interactions) AllMatched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, interaction := range s.registered {
		if _, ok := s.matched[interaction.ID]; !ok {
			return false
		}
	}
	return true
}

func (s *Interactions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.registered)
}
