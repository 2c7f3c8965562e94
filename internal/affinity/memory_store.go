package affinity

import (
	"context"
	"sort"
	"sync"
)

// CounterAdjuster applies a floored counter change to an establishment and
// reports false when the establishment does not exist.
type CounterAdjuster interface {
	AdjustCounter(establishmentID string, field string, delta int) bool
}

// MemoryStore keeps membership in process. Counters go to the adjuster,
// normally the in-memory catalog.
type MemoryStore struct {
	counters CounterAdjuster

	mu      sync.Mutex
	members map[string]map[Kind]map[string]struct{}
}

func NewMemoryStore(counters CounterAdjuster) *MemoryStore {
	return &MemoryStore{
		counters: counters,
		members:  make(map[string]map[Kind]map[string]struct{}),
	}
}

func (s *MemoryStore) Members(ctx context.Context, userID string, kind Kind) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := []string{}
	for id := range s.members[userID][kind] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Add(ctx context.Context, userID string, kind Kind, establishmentID string) (Outcome, error) {
	return s.mutate(ctx, userID, kind, establishmentID, true)
}

func (s *MemoryStore) Remove(ctx context.Context, userID string, kind Kind, establishmentID string) (Outcome, error) {
	return s.mutate(ctx, userID, kind, establishmentID, false)
}

func (s *MemoryStore) mutate(ctx context.Context, userID string, kind Kind, establishmentID string, add bool) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return OutcomeRefused, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	byKind, ok := s.members[userID]
	if !ok {
		byKind = make(map[Kind]map[string]struct{})
		s.members[userID] = byKind
	}
	set, ok := byKind[kind]
	if !ok {
		set = make(map[string]struct{})
		byKind[kind] = set
	}

	_, present := set[establishmentID]
	if present == add {
		return OutcomeUnchanged, nil
	}

	delta := 1
	if !add {
		delta = -1
	}
	if s.counters != nil && !s.counters.AdjustCounter(establishmentID, kind.CounterField(), delta) && add {
		return OutcomeRefused, nil
	}

	setMember(set, establishmentID, add)
	return OutcomeChanged, nil
}
