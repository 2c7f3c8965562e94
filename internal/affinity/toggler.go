package affinity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"goldenbookAPI/internal/types/user"
)

type Phase string

const (
	PhasePending    Phase = "pending"
	PhaseCommitted  Phase = "committed"
	PhaseRolledBack Phase = "rolled_back"
)

// Toggle is the outcome of one membership change. ReviewDelta is the change a
// committed like makes to the establishment's reviewCount.
type Toggle struct {
	Kind            Kind   `json:"kind"`
	EstablishmentID string `json:"establishment_id"`
	Member          bool   `json:"member"`
	Phase           Phase  `json:"phase"`
	ReviewDelta     int    `json:"review_delta"`
}

type membership struct {
	mu     sync.Mutex
	sets   map[Kind]map[string]struct{}
	loaded map[Kind]bool

	// lastUsed is guarded by Toggler.mu.
	lastUsed time.Time
}

// Toggler runs toggles as Pending -> Committed | RolledBack. The guard keeps
// one toggle per (user, kind, establishment) outstanding; a second one is
// refused with ErrToggleInFlight instead of racing the first.
type Toggler struct {
	store   Store
	guard   Guard
	onPhase func(Kind, Phase)
	now     func() time.Time

	mu    sync.Mutex
	users map[string]*membership
}

type TogglerOption func(*Toggler)

// WithPhaseHook is called on every phase transition.
func WithPhaseHook(fn func(Kind, Phase)) TogglerOption {
	return func(t *Toggler) { t.onPhase = fn }
}

func NewToggler(store Store, guard Guard, opts ...TogglerOption) *Toggler {
	t := &Toggler{
		store:   store,
		guard:   guard,
		onPhase: func(Kind, Phase) {},
		now:     time.Now,
		users:   make(map[string]*membership),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Members returns the user's ids for kind, sorted, loading them on first use.
func (t *Toggler) Members(ctx context.Context, p user.Principal, kind Kind) ([]string, error) {
	if !p.Authenticated() {
		return nil, ErrGuestUser
	}

	m := t.membershipFor(p.UserID)
	m.mu.Lock()
	defer m.mu.Unlock()

	set, err := t.loadLocked(ctx, m, p.UserID, kind)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// IsMember reports the locally known membership, loading it on first use.
func (t *Toggler) IsMember(ctx context.Context, p user.Principal, kind Kind, establishmentID string) (bool, error) {
	if !p.Authenticated() {
		return false, nil
	}

	m := t.membershipFor(p.UserID)
	m.mu.Lock()
	defer m.mu.Unlock()

	set, err := t.loadLocked(ctx, m, p.UserID, kind)
	if err != nil {
		return false, err
	}
	_, ok := set[establishmentID]
	return ok, nil
}

// Flip inverts the current membership.
func (t *Toggler) Flip(ctx context.Context, p user.Principal, kind Kind, establishmentID string) (Toggle, error) {
	return t.run(ctx, p, kind, establishmentID, nil)
}

// Set moves membership to want. When it already holds, nothing is sent.
func (t *Toggler) Set(ctx context.Context, p user.Principal, kind Kind, establishmentID string, want bool) (Toggle, error) {
	return t.run(ctx, p, kind, establishmentID, &want)
}

// Forget drops the cached membership of a user.
func (t *Toggler) Forget(userID string) {
	t.mu.Lock()
	delete(t.users, userID)
	t.mu.Unlock()
}

// Sweep drops cached memberships idle for longer than ttl and returns how
// many were dropped. The next use reloads them from the store.
func (t *Toggler) Sweep(ttl time.Duration) int {
	cutoff := t.now().Add(-ttl)

	t.mu.Lock()
	defer t.mu.Unlock()

	evicted := 0
	for id, m := range t.users {
		if m.lastUsed.Before(cutoff) {
			delete(t.users, id)
			evicted++
		}
	}
	return evicted
}

// RunJanitor sweeps every interval until ctx is done.
func (t *Toggler) RunJanitor(ctx context.Context, interval, ttl time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := t.Sweep(ttl); n > 0 {
				log.Debugf("Affinity: evicted %d cached memberships", n)
			}
		}
	}
}

func (t *Toggler) run(ctx context.Context, p user.Principal, kind Kind, establishmentID string, want *bool) (Toggle, error) {
	if !p.Authenticated() {
		return Toggle{}, ErrGuestUser
	}
	if _, err := ParseKind(string(kind)); err != nil {
		return Toggle{}, err
	}

	key := toggleKey(p.UserID, kind, establishmentID)
	ok, err := t.guard.Acquire(ctx, key)
	if err != nil {
		return Toggle{}, err
	}
	if !ok {
		return Toggle{}, ErrToggleInFlight
	}
	defer func() {
		if err := t.guard.Release(context.WithoutCancel(ctx), key); err != nil {
			log.WithError(err).Warnf("Affinity: failed to release %s", key)
		}
	}()

	m := t.membershipFor(p.UserID)

	m.mu.Lock()
	set, err := t.loadLocked(ctx, m, p.UserID, kind)
	if err != nil {
		m.mu.Unlock()
		return Toggle{}, err
	}
	_, current := set[establishmentID]
	desired := !current
	if want != nil {
		desired = *want
	}
	if desired == current {
		m.mu.Unlock()
		return Toggle{Kind: kind, EstablishmentID: establishmentID, Member: current, Phase: PhaseCommitted}, nil
	}
	setMember(set, establishmentID, desired)
	m.mu.Unlock()

	result := Toggle{Kind: kind, EstablishmentID: establishmentID, Member: desired, Phase: PhasePending}
	t.onPhase(kind, PhasePending)

	var outcome Outcome
	if desired {
		outcome, err = t.store.Add(ctx, p.UserID, kind, establishmentID)
	} else {
		outcome, err = t.store.Remove(ctx, p.UserID, kind, establishmentID)
	}

	if err != nil || outcome == OutcomeRefused {
		m.mu.Lock()
		setMember(m.sets[kind], establishmentID, current)
		m.mu.Unlock()

		result.Member = current
		result.Phase = PhaseRolledBack
		t.onPhase(kind, PhaseRolledBack)

		if err == nil {
			err = ErrMutationRefused
		}
		log.WithError(err).Warnf("Affinity: rolled back %s on %s for user %s", kind, establishmentID, p.UserID)
		return result, fmt.Errorf("%s %s: %w", kind, establishmentID, err)
	}

	// Unchanged means the cache was stale and the store already held desired,
	// so no counter moved.
	result.Phase = PhaseCommitted
	if kind == KindLike && outcome == OutcomeChanged {
		result.ReviewDelta = 1
		if !desired {
			result.ReviewDelta = -1
		}
	}
	t.onPhase(kind, PhaseCommitted)
	return result, nil
}

func (t *Toggler) membershipFor(userID string) *membership {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.users[userID]
	if !ok {
		m = &membership{
			sets:   make(map[Kind]map[string]struct{}),
			loaded: make(map[Kind]bool),
		}
		t.users[userID] = m
	}
	m.lastUsed = t.now()
	return m
}

// loadLocked must be called with m.mu held.
func (t *Toggler) loadLocked(ctx context.Context, m *membership, userID string, kind Kind) (map[string]struct{}, error) {
	if m.loaded[kind] {
		return m.sets[kind], nil
	}

	ids, err := t.store.Members(ctx, userID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s membership: %w", kind, err)
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	m.sets[kind] = set
	m.loaded[kind] = true
	return set, nil
}

func setMember(set map[string]struct{}, id string, member bool) {
	if member {
		set[id] = struct{}{}
		return
	}
	delete(set, id)
}
