package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"goldenbookAPI/internal/types/establishment"
)

var (
	ErrLoadFailed    = errors.New("failed to load establishments")
	ErrSessionClosed = errors.New("discovery session closed")
)

type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Loader is the slice of the remote catalog a Session needs: one equality
// query on location, returning an unordered set.
type Loader interface {
	EstablishmentsByLocation(ctx context.Context, locationID string) ([]establishment.Establishment, error)
}

// Scope is the unit of data loading. CategoryID is applied client side after
// the fetch, never sent to the catalog.
type Scope struct {
	LocationID string `json:"location_id"`
	CategoryID string `json:"category_id,omitempty"`
}

type Selection struct {
	Strategy    Strategy `json:"strategy"`
	Subcategory string   `json:"subcategory,omitempty"`
}

// Snapshot is a consistent read of a session for rendering.
type Snapshot struct {
	ID             string                        `json:"session_id"`
	State          State                         `json:"state"`
	Scope          Scope                         `json:"scope"`
	Query          string                        `json:"query,omitempty"`
	Selection      Selection                     `json:"selection"`
	Establishments []establishment.Establishment `json:"establishments"`
}

// Session loads the full establishment set for a scope once and derives the
// filtered, sorted view locally on every selection change.
//
// States: idle -> loading -> ready | failed. Failed is terminal for the
// session; a new session must be created to retry.
type Session struct {
	ID    string
	Scope Scope
	Query string

	loader Loader
	now    func() time.Time

	mu          sync.Mutex
	state       State
	raw         []establishment.Establishment
	view        []establishment.Establishment
	strategy    Strategy
	subcategory string
	origin      *establishment.Coordinates
	loading     chan struct{}
	closed      bool
	lastUsed    time.Time
}

type Option func(*Session)

func WithID(id string) Option {
	return func(s *Session) { s.ID = id }
}

// WithQuery scopes the session to names matching query, used for the
// "all results" hand-off from search.
func WithQuery(query string) Option {
	return func(s *Session) { s.Query = query }
}

func WithOrigin(origin *establishment.Coordinates) Option {
	return func(s *Session) { s.origin = origin }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func NewSession(loader Loader, scope Scope, opts ...Option) *Session {
	s := &Session{
		Scope:    scope,
		loader:   loader,
		now:      time.Now,
		state:    StateIdle,
		strategy: StrategyRecommended,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastUsed = s.now()
	return s
}

// Load fetches the scoped set and derives the initial view. Concurrent calls
// share one in-flight fetch; once ready, Load is a no-op.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	s.touch()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrSessionClosed
	case s.state == StateReady:
		s.mu.Unlock()
		return nil
	case s.state == StateFailed:
		s.mu.Unlock()
		return ErrLoadFailed
	case s.state == StateLoading:
		wait := s.loading
		s.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		return s.loadResult()
	}

	s.state = StateLoading
	done := make(chan struct{})
	s.loading = done
	s.mu.Unlock()

	raw, err := s.loader.EstablishmentsByLocation(ctx, s.Scope.LocationID)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer close(done)

	if s.closed {
		return ErrSessionClosed
	}
	if err != nil {
		s.state = StateFailed
		log.WithFields(log.Fields{
			"session":  s.ID,
			"location": s.Scope.LocationID,
		}).Warnf("Session: load failed: %v", err)
		return fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	s.raw = clone(raw)
	s.state = StateReady
	s.derive()
	return nil
}

func (s *Session) loadResult() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return ErrSessionClosed
	case s.state == StateFailed:
		return ErrLoadFailed
	}
	return nil
}

// SelectSubcategory toggles the active subcategory: selecting the active one
// clears it. At most one subcategory is active.
func (s *Session) SelectSubcategory(subcategoryID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if subcategoryID == "" || subcategoryID == s.subcategory {
		s.subcategory = ""
	} else {
		s.subcategory = subcategoryID
	}
	s.derive()
}

func (s *Session) SetStrategy(strategy Strategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if strategy == "" {
		strategy = StrategyRecommended
	}
	s.strategy = strategy
	s.derive()
}

// SetOrigin sets the user's position for near_me. Nil means no position
// (permission denied or unavailable) and near_me degrades to input order.
func (s *Session) SetOrigin(origin *establishment.Coordinates) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	s.origin = origin
	s.derive()
}

// ApplyReviewDelta applies a local like delta to one establishment in both
// the raw set and the derived view without refetching. Counts floor at zero.
// The view keeps its order so cards do not jump after a like.
func (s *Session) ApplyReviewDelta(establishmentID string, delta int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if s.state != StateReady {
		return false
	}

	var found bool
	s.raw, found = withReviewDelta(s.raw, establishmentID, delta)
	s.view, _ = withReviewDelta(s.view, establishmentID, delta)
	return found
}

func withReviewDelta(list []establishment.Establishment, id string, delta int) ([]establishment.Establishment, bool) {
	out := clone(list)
	found := false
	for i := range out {
		if out[i].ID != id {
			continue
		}
		out[i].ReviewCount = max(0, out[i].ReviewCount+delta)
		found = true
	}
	return out, found
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Selection() Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Selection{Strategy: s.strategy, Subcategory: s.subcategory}
}

// View returns the current derived list. Empty unless the session is ready.
func (s *Session) View() []establishment.Establishment {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return clone(s.view)
}

// MapView is the derived list restricted to establishments with valid coordinates.
func (s *Session) MapView() []establishment.Establishment {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return ForMap(s.view)
}

// Raw returns a copy of the loaded set, the input for search suggestions.
func (s *Session) Raw() []establishment.Establishment {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return clone(s.raw)
}

func (s *Session) Snapshot(mapOnly bool) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	list := clone(s.view)
	if mapOnly {
		list = ForMap(s.view)
	}
	return Snapshot{
		ID:             s.ID,
		State:          s.state,
		Scope:          s.Scope,
		Query:          s.Query,
		Selection:      Selection{Strategy: s.strategy, Subcategory: s.subcategory},
		Establishments: list,
	}
}

// Close ends the session. A fetch that resolves afterwards is discarded.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.raw = nil
	s.view = nil
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// derive recomputes the view from the loaded set. Only a ready session has a
// raw set to derive from; in any other state the selection is just recorded.
func (s *Session) derive() {
	if s.state != StateReady || s.closed {
		return
	}
	s.view = Apply(s.raw, Criteria{
		CategoryID:  s.Scope.CategoryID,
		Query:       s.Query,
		Subcategory: s.subcategory,
		Strategy:    s.strategy,
		Origin:      s.origin,
	})
}

func (s *Session) touch() {
	s.lastUsed = s.now()
}
