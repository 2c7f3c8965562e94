package discovery

import (
	"fmt"
	"math"
	"sort"

	"goldenbookAPI/internal/types/establishment"
)

type Strategy string

const (
	StrategyRecommended Strategy = "recommended"
	StrategyOpenNow     Strategy = "open_now"
	StrategyNearMe      Strategy = "near_me"
	StrategyMostLiked   Strategy = "most_liked"
)

const earthRadiusKm = 6371.0

// ParseStrategy maps an API value onto a Strategy. Empty means recommended.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "":
		return StrategyRecommended, nil
	case StrategyRecommended, StrategyOpenNow, StrategyNearMe, StrategyMostLiked:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown sort strategy %q", s)
}

// Sort returns a new slice ordered by the strategy. The input is never
// mutated and every strategy is stable.
//
// open_now is an identity transform: opening hours are not evaluated yet.
// near_me is an identity transform when origin is nil.
func Sort(list []establishment.Establishment, strategy Strategy, origin *establishment.Coordinates) []establishment.Establishment {
	out := clone(list)

	switch strategy {
	case StrategyRecommended:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Rating > out[j].Rating
		})
	case StrategyMostLiked:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].ReviewCount > out[j].ReviewCount
		})
	case StrategyNearMe:
		if origin == nil || !origin.Valid() {
			return out
		}
		sortByDistance(out, *origin)
	case StrategyOpenNow:
		// TODO: evaluate OpeningHours once the catalog stores them in a parseable form.
	}

	return out
}

func sortByDistance(out []establishment.Establishment, origin establishment.Coordinates) {
	dist := make(map[string]float64, len(out))
	for _, e := range out {
		if e.HasValidCoordinates() {
			dist[e.ID] = Haversine(origin, *e.Coordinates)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		di, iok := dist[out[i].ID]
		dj, jok := dist[out[j].ID]
		switch {
		case iok && jok:
			return di < dj
		case iok:
			return true
		default:
			return false
		}
	})
}

// Haversine is the great-circle distance in kilometres between two points.
func Haversine(a, b establishment.Coordinates) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
