package store

import (
	"sync"

	"taskboard/domain"
)

// FilterState holds the criteria of the current task listing. It is never
// persisted.
type FilterState struct {
	mu     sync.RWMutex
	filter domain.Filter
	subs   subscribers[domain.Filter]
}

func NewFilterState() *FilterState {
	return &FilterState{filter: domain.DefaultFilter()}
}

func (s *FilterState) Current() domain.Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter
}

// SetFilter merges the set fields of p into the current filter. The filter
// is left unchanged when the result is invalid.
func (s *FilterState) SetFilter(p domain.FilterPatch) error {
	s.mu.Lock()
	next := s.filter.Merge(p)
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.filter = next
	s.mu.Unlock()
	s.subs.publish(next)
	return nil
}

// Reset restores the default filter.
func (s *FilterState) Reset() {
	s.mu.Lock()
	s.filter = domain.DefaultFilter()
	next := s.filter
	s.mu.Unlock()
	s.subs.publish(next)
}

// Subscribe registers fn for every filter change.
func (s *FilterState) Subscribe(fn func(domain.Filter)) (cancel func()) {
	return s.subs.add(fn)
}
