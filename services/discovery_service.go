package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"goldenbookAPI/internal/discovery"
	"goldenbookAPI/internal/types/establishment"
)

var ErrInvalidInput = errors.New("invalid input")

type CreateSessionRequest struct {
	LocationID string   `json:"location_id"`
	CategoryID string   `json:"category_id"`
	Latitude   *float64 `json:"lat"`
	Longitude  *float64 `json:"lon"`
}

// SelectionUpdate changes only the fields that are set. Subcategory toggles:
// sending the active one clears it.
type SelectionUpdate struct {
	Strategy    *string  `json:"strategy"`
	Subcategory *string  `json:"subcategory"`
	Latitude    *float64 `json:"lat"`
	Longitude   *float64 `json:"lon"`
}

type BrowseRequest struct {
	LocationID  string
	CategoryID  string
	Subcategory string
	Strategy    string
	Latitude    *float64
	Longitude   *float64
	MapOnly     bool
}

type SessionView struct {
	SessionID      string                                `json:"session_id"`
	State          discovery.State                       `json:"state"`
	Scope          discovery.Scope                       `json:"scope"`
	Query          string                                `json:"query,omitempty"`
	Selection      discovery.Selection                   `json:"selection"`
	Establishments []establishment.EstablishmentResponse `json:"establishments"`
}

type SuggestionResult struct {
	Query       string                                `json:"query"`
	Suggestions []establishment.EstablishmentResponse `json:"suggestions"`
	Total       int                                   `json:"total"`
}

type SearchSettings struct {
	SuggestionLimit int
	BlurDelay       time.Duration
}

// DiscoveryService owns the live discovery sessions for the API.
type DiscoveryService struct {
	manager *discovery.Manager
	loader  discovery.Loader
	search  SearchSettings
}

func NewDiscoveryService(loader discovery.Loader, search SearchSettings) *DiscoveryService {
	manager := discovery.NewManager(loader)
	manager.OnClose(func(*discovery.Session) {
		discoverySessionsActive.Dec()
	})

	return &DiscoveryService{
		manager: manager,
		loader:  loader,
		search:  search,
	}
}

// Manager exposes the registry for lifecycle wiring and tests.
func (s *DiscoveryService) Manager() *discovery.Manager {
	return s.manager
}

// CreateSession registers a session for the scope and loads it. A failed
// load still returns the view so the caller can report the session state.
func (s *DiscoveryService) CreateSession(ctx context.Context, req CreateSessionRequest) (*SessionView, error) {
	if req.LocationID == "" {
		return nil, fmt.Errorf("%w: location_id is required", ErrInvalidInput)
	}
	origin, err := originFrom(req.Latitude, req.Longitude)
	if err != nil {
		return nil, err
	}

	session := s.manager.Create(
		discovery.Scope{LocationID: req.LocationID, CategoryID: req.CategoryID},
		discovery.WithOrigin(origin),
	)
	discoverySessionsActive.Inc()

	return s.load(ctx, session)
}

func (s *DiscoveryService) GetSession(id string, mapOnly bool) (*SessionView, error) {
	session, err := s.manager.Get(id)
	if err != nil {
		return nil, err
	}
	return viewOf(session.Snapshot(mapOnly)), nil
}

func (s *DiscoveryService) UpdateSelection(id string, upd SelectionUpdate) (*SessionView, error) {
	session, err := s.manager.Get(id)
	if err != nil {
		return nil, err
	}

	if upd.Strategy != nil {
		strategy, err := discovery.ParseStrategy(*upd.Strategy)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		session.SetStrategy(strategy)
	}
	if upd.Latitude != nil || upd.Longitude != nil {
		origin, err := originFrom(upd.Latitude, upd.Longitude)
		if err != nil {
			return nil, err
		}
		session.SetOrigin(origin)
	}
	if upd.Subcategory != nil {
		session.SelectSubcategory(*upd.Subcategory)
	}

	return viewOf(session.Snapshot(false)), nil
}

func (s *DiscoveryService) CloseSession(id string) error {
	return s.manager.Delete(id)
}

// Suggestions narrows the session's loaded set by name, the dropdown list.
func (s *DiscoveryService) Suggestions(ctx context.Context, id, query string) (*SuggestionResult, error) {
	search, _, err := s.NewSearch(ctx, id)
	if err != nil {
		return nil, err
	}
	defer search.Stop()

	suggestions := search.SetQuery(query)
	return &SuggestionResult{
		Query:       query,
		Suggestions: establishment.Responses(suggestions),
		Total:       len(search.Results()),
	}, nil
}

// Search is "show all results": it hands the query off to a new
// query-scoped session that performs its own fetch.
func (s *DiscoveryService) Search(ctx context.Context, id, query string) (*SessionView, error) {
	search, _, err := s.NewSearch(ctx, id)
	if err != nil {
		return nil, err
	}
	defer search.Stop()

	search.SetQuery(query)
	handoff, err := search.ShowAll()
	if err != nil {
		return nil, err
	}
	return s.Handoff(ctx, handoff)
}

func (s *DiscoveryService) Handoff(ctx context.Context, h discovery.Handoff) (*SessionView, error) {
	session := s.manager.Create(h.Scope, discovery.WithQuery(h.Query))
	discoverySessionsActive.Inc()

	log.WithFields(log.Fields{
		"session":  session.ID,
		"location": h.Scope.LocationID,
		"category": h.Scope.CategoryID,
	}).Debugf("Search: handing off %q", h.Query)

	return s.load(ctx, session)
}

// NewSearch builds a search controller over the session's loaded set,
// loading the session first if needed.
func (s *DiscoveryService) NewSearch(ctx context.Context, id string, opts ...discovery.SearchOption) (*discovery.SearchController, *discovery.Session, error) {
	session, err := s.manager.Get(id)
	if err != nil {
		return nil, nil, err
	}
	if err := session.Load(ctx); err != nil {
		return nil, nil, err
	}

	base := []discovery.SearchOption{
		discovery.WithSuggestionLimit(s.search.SuggestionLimit),
		discovery.WithBlurDelay(s.search.BlurDelay),
		discovery.WithDiscrepancyHook(func(int) {
			searchCategoryDiscrepancies.Inc()
		}),
	}
	return discovery.NewSearchController(session.Raw(), session.Scope, append(base, opts...)...), session, nil
}

// Browse is a one-shot session: load, derive, close. Nothing is registered.
func (s *DiscoveryService) Browse(ctx context.Context, req BrowseRequest) (*SessionView, error) {
	if req.LocationID == "" {
		return nil, fmt.Errorf("%w: location id is required", ErrInvalidInput)
	}
	strategy, err := discovery.ParseStrategy(req.Strategy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	origin, err := originFrom(req.Latitude, req.Longitude)
	if err != nil {
		return nil, err
	}

	session := discovery.NewSession(s.loader, discovery.Scope{LocationID: req.LocationID, CategoryID: req.CategoryID},
		discovery.WithOrigin(origin))
	defer session.Close()

	session.SetStrategy(strategy)
	if req.Subcategory != "" {
		session.SelectSubcategory(req.Subcategory)
	}

	if err := session.Load(ctx); err != nil {
		return viewOf(session.Snapshot(req.MapOnly)), err
	}
	return viewOf(session.Snapshot(req.MapOnly)), nil
}

// ApplyReviewDelta forwards a committed like to the session it came from.
func (s *DiscoveryService) ApplyReviewDelta(sessionID, establishmentID string, delta int) error {
	session, err := s.manager.Get(sessionID)
	if err != nil {
		return err
	}
	if !session.ApplyReviewDelta(establishmentID, delta) {
		log.Debugf("Session %s: %s not in loaded set, review delta skipped", sessionID, establishmentID)
	}
	return nil
}

// RunJanitor closes idle sessions until ctx is done.
func (s *DiscoveryService) RunJanitor(ctx context.Context, interval, ttl time.Duration) error {
	log.Infof("Session janitor started (interval %s, idle ttl %s)", interval, ttl)
	return s.manager.RunJanitor(ctx, interval, ttl)
}

func (s *DiscoveryService) Shutdown() {
	s.manager.CloseAll()
}

func (s *DiscoveryService) load(ctx context.Context, session *discovery.Session) (*SessionView, error) {
	err := session.Load(ctx)
	view := viewOf(session.Snapshot(false))
	if err != nil {
		return view, err
	}
	return view, nil
}

func viewOf(snap discovery.Snapshot) *SessionView {
	return &SessionView{
		SessionID:      snap.ID,
		State:          snap.State,
		Scope:          snap.Scope,
		Query:          snap.Query,
		Selection:      snap.Selection,
		Establishments: establishment.Responses(snap.Establishments),
	}
}

// originFrom builds the user's position. Both halves absent means no
// position; a half-set or out-of-range pair is rejected.
func originFrom(lat, lon *float64) (*establishment.Coordinates, error) {
	if lat == nil && lon == nil {
		return nil, nil
	}
	if lat == nil || lon == nil {
		return nil, fmt.Errorf("%w: lat and lon must be sent together", ErrInvalidInput)
	}
	c := establishment.Coordinates{Latitude: *lat, Longitude: *lon}
	if !c.Valid() {
		return nil, fmt.Errorf("%w: coordinates out of range", ErrInvalidInput)
	}
	return &c, nil
}
