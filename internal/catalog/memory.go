package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"goldenbookAPI/internal/types/establishment"
)

// MemorySource serves a catalog held in memory, seeded from a JSON file for
// local development or built directly in tests.
type MemorySource struct {
	mu             sync.RWMutex
	establishments []establishment.Establishment
	locations      map[string]establishment.Location
	categories     []establishment.Category
}

type seedFile struct {
	Establishments []establishment.Establishment `json:"establishments"`
	Locations      []establishment.Location      `json:"locations"`
	Categories     []seedCategory                `json:"categories"`
}

type seedCategory struct {
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	Subcategories map[string]string `json:"subcategories"`
}

func NewMemorySource(establishments []establishment.Establishment, locations []establishment.Location, categories []establishment.Category) *MemorySource {
	s := &MemorySource{locations: make(map[string]establishment.Location)}
	for _, e := range establishments {
		if e.ID == "" {
			log.Warn("Catalog: skipping seeded establishment without id")
			continue
		}
		e = e.Clone()
		e.Normalize()
		s.establishments = append(s.establishments, e)
	}
	for _, l := range locations {
		l.Normalize()
		s.locations[l.ID] = l
	}
	s.categories = append(s.categories, categories...)
	return s
}

// LoadMemorySource reads a seed file with establishments, locations and categories.
func LoadMemorySource(path string) (*MemorySource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog seed %s: %w", path, err)
	}

	var seed seedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse catalog seed %s: %w", path, err)
	}

	categories := make([]establishment.Category, 0, len(seed.Categories))
	for _, c := range seed.Categories {
		categories = append(categories, establishment.Category{ID: c.ID, Title: c.Title, Subcategories: c.Subcategories})
	}

	log.Infof("Catalog: seeded %d establishments, %d locations, %d categories from %s",
		len(seed.Establishments), len(seed.Locations), len(categories), path)

	return NewMemorySource(seed.Establishments, seed.Locations, categories), nil
}

func (s *MemorySource) EstablishmentsByLocation(ctx context.Context, locationID string) ([]establishment.Establishment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []establishment.Establishment{}
	for _, e := range s.establishments {
		if e.City == locationID {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (s *MemorySource) EstablishmentByID(ctx context.Context, id string) (*establishment.Establishment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.establishments {
		if e.ID == id {
			c := e.Clone()
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemorySource) LocationByID(ctx context.Context, id string) (*establishment.Location, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.locations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &l, nil
}

func (s *MemorySource) Categories(ctx context.Context) ([]establishment.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]establishment.Category{}, s.categories...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemorySource) CategoryByID(ctx context.Context, id string) (*establishment.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.categories {
		if c.ID == id {
			c := c
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// AdjustCounter changes a counter on one establishment, floored at zero.
// It backs the in-memory affinity store.
func (s *MemorySource) AdjustCounter(id string, field string, delta int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.establishments {
		if s.establishments[i].ID != id {
			continue
		}
		switch field {
		case "reviewCount":
			s.establishments[i].ReviewCount = max(0, s.establishments[i].ReviewCount+delta)
		case "favoritesCount":
			s.establishments[i].FavoritesCount = max(0, s.establishments[i].FavoritesCount+delta)
		default:
			return false
		}
		return true
	}
	return false
}
