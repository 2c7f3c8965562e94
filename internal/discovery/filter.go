// Package discovery holds the establishment discovery pipeline: the filter and
// sort engines, the load-once Session, and the search-as-you-type controller.
//
// Nothing in this package performs I/O on its own; establishments arrive
// through a Loader and every derived view is a freshly allocated slice.
package discovery

import (
	"strings"

	"github.com/samber/lo"

	"goldenbookAPI/internal/types/establishment"
)

// ByCategory keeps establishments whose categories contain categoryID.
// No match yields an empty, non-nil result.
func ByCategory(list []establishment.Establishment, categoryID string) []establishment.Establishment {
	return lo.Filter(list, func(e establishment.Establishment, _ int) bool {
		return e.HasCategory(categoryID)
	})
}

// BySubcategory keeps establishments tagged with subcategoryID. An empty id
// means no selection and returns a copy of the input.
func BySubcategory(list []establishment.Establishment, subcategoryID string) []establishment.Establishment {
	if subcategoryID == "" {
		return clone(list)
	}
	return lo.Filter(list, func(e establishment.Establishment, _ int) bool {
		return e.HasSubcategory(subcategoryID)
	})
}

// ByNameSubstring is a case-insensitive substring match of the trimmed query
// against the name. An empty or whitespace-only query yields no results.
func ByNameSubstring(list []establishment.Establishment, query string) []establishment.Establishment {
	needle := normalizeQuery(query)
	if needle == "" {
		return []establishment.Establishment{}
	}
	return lo.Filter(list, func(e establishment.Establishment, _ int) bool {
		return strings.Contains(strings.ToLower(e.Name), needle)
	})
}

// ForMap drops establishments without usable coordinates.
func ForMap(list []establishment.Establishment) []establishment.Establishment {
	return lo.Filter(list, func(e establishment.Establishment, _ int) bool {
		return e.HasValidCoordinates()
	})
}

func normalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

func clone(list []establishment.Establishment) []establishment.Establishment {
	out := make([]establishment.Establishment, len(list))
	copy(out, list)
	return out
}
