package discovery

import "goldenbookAPI/internal/types/establishment"

// Criteria is everything a derived view depends on besides the raw set.
type Criteria struct {
	CategoryID  string
	Query       string
	Subcategory string
	Strategy    Strategy
	Origin      *establishment.Coordinates
}

// Apply derives the visible list: category scope, then the name query for
// query-scoped sessions, then the subcategory selection, then the sort.
// The result never aliases raw.
func Apply(raw []establishment.Establishment, c Criteria) []establishment.Establishment {
	list := raw
	if c.CategoryID != "" {
		list = ByCategory(list, c.CategoryID)
	}
	if c.Query != "" {
		list = ByNameSubstring(list, c.Query)
	}
	list = BySubcategory(list, c.Subcategory)

	strategy := c.Strategy
	if strategy == "" {
		strategy = StrategyRecommended
	}
	return Sort(list, strategy, c.Origin)
}
