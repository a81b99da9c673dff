package llm

import (
	"fmt"
	"sync"
)

// ErrNoProviderAvailable is returned by Select when no backend in the
// role's priority list is configured and still available.
var ErrNoProviderAvailable = &ProviderError{
	Code:    "no_provider_available",
	Message: "no generation backend available for role",
}

// DefaultPriorities maps each role to its preferred backend order.
// Selection walks the list and picks the first configured backend, so
// changing the fallback behavior is a data change, not a code change.
func DefaultPriorities() map[Role][]string {
	return map[Role][]string{
		RoleAnalyzer:    {"openai", "anthropic", "google", "grok"},
		RoleReviewer:    {"anthropic", "openai", "google", "grok"},
		RoleSynthesizer: {"google", "openai", "anthropic", "grok"},
	}
}

// Selector resolves a Role to a concrete Generator using per-role priority
// lists. Backends can be marked unavailable for the remainder of a run,
// which makes Select fall through to the next backend in the list.
//
// Selection is deterministic: for a fixed set of registered backends and
// unavailability marks, the same role always resolves to the same backend.
type Selector struct {
	mu          sync.RWMutex
	backends    map[string]Generator
	priorities  map[Role][]string
	unavailable map[string]bool
}

// NewSelector creates a Selector over the given backends.
// A nil priorities map falls back to DefaultPriorities.
func NewSelector(backends []Generator, priorities map[Role][]string) *Selector {
	if priorities == nil {
		priorities = DefaultPriorities()
	}

	byName := make(map[string]Generator, len(backends))
	for _, b := range backends {
		byName[b.Name()] = b
	}

	return &Selector{
		backends:    byName,
		priorities:  priorities,
		unavailable: make(map[string]bool),
	}
}

// Select returns the first configured, available backend in the role's
// priority list. Returns ErrNoProviderAvailable when the list is exhausted.
func (s *Selector) Select(role Role) (Generator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.priorities[role]
	if !ok {
		return nil, fmt.Errorf("unknown role %q: %w", role, ErrNoProviderAvailable)
	}

	for _, name := range order {
		if s.unavailable[name] {
			continue
		}
		if backend, ok := s.backends[name]; ok {
			return backend, nil
		}
	}

	return nil, fmt.Errorf("role %q: %w", role, ErrNoProviderAvailable)
}

// MarkUnavailable removes a backend from selection for the remainder of
// the run. Used after repeated transient failures so subsequent stage
// attempts fall back to the next backend in the priority list.
func (s *Selector) MarkUnavailable(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable[name] = true
}

// Available reports whether the named backend is registered and not
// marked unavailable.
func (s *Selector) Available(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.backends[name]
	return ok && !s.unavailable[name]
}

// Names returns the registered backend names in no particular order.
func (s *Selector) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.backends))
	for name := range s.backends {
		names = append(names, name)
	}
	return names
}
