package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"goldenbookAPI/internal/types/establishment"
)

type fakeLoader struct {
	mu    sync.Mutex
	data  map[string][]establishment.Establishment
	err   error
	calls atomic.Int32
	gate  chan struct{}
}

func newFakeLoader(location string, list []establishment.Establishment) *fakeLoader {
	return &fakeLoader{data: map[string][]establishment.Establishment{location: list}}
}

func (f *fakeLoader) EstablishmentsByLocation(ctx context.Context, locationID string) ([]establishment.Establishment, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.data[locationID], nil
}

var errNetwork = errors.New("network unreachable")

func est(id, name string, rating float64, reviews int, categories, subcategories []string) establishment.Establishment {
	e := establishment.Establishment{
		ID:            id,
		Name:          name,
		City:          "porto",
		Rating:        rating,
		ReviewCount:   reviews,
		Categories:    categories,
		Subcategories: subcategories,
	}
	e.Normalize()
	return e
}

func withCoords(e establishment.Establishment, lat, lon float64) establishment.Establishment {
	e.Coordinates = &establishment.Coordinates{Latitude: lat, Longitude: lon}
	return e
}

// portoFixture is ten establishments in porto, three of them gastronomy and
// one of those vegan.
func portoFixture() []establishment.Establishment {
	list := []establishment.Establishment{
		est("g1", "Tasca do Porto", 4.5, 10, []string{"gastronomy"}, []string{"traditional"}),
		est("g2", "Green Table", 4.8, 3, []string{"gastronomy", "nightlife"}, []string{"vegan"}),
		est("g3", "Casa Velha", 4.1, 22, []string{"gastronomy"}, []string{"traditional", "wine"}),
	}
	for i := 0; i < 7; i++ {
		list = append(list, est(fmt.Sprintf("o%d", i), fmt.Sprintf("Shop %d", i), float64(i)/2, i, []string{"shopping"}, nil))
	}
	return list
}

func ids(list []establishment.Establishment) []string {
	out := make([]string, 0, len(list))
	for _, e := range list {
		out = append(out, e.ID)
	}
	return out
}
