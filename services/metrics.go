package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"goldenbookAPI/internal/affinity"
)

var (
	catalogFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_fetches_total",
			Help: "Catalog reads by record type and outcome",
		},
		[]string{"source", "outcome"},
	)
	discoverySessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "discovery_sessions_active",
			Help: "Discovery sessions currently held in memory",
		},
	)
	affinityTogglesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affinity_toggles_total",
			Help: "Favorite and like toggle phase transitions",
		},
		[]string{"kind", "phase"},
	)
	searchCategoryDiscrepancies = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "search_category_discrepancies_total",
			Help: "Search results dropped because they fell outside the active category",
		},
	)

	registerOnce sync.Once
)

// InitMetrics registers the domain metrics. Call this from main.go
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(catalogFetchesTotal)
		prometheus.MustRegister(discoverySessionsActive)
		prometheus.MustRegister(affinityTogglesTotal)
		prometheus.MustRegister(searchCategoryDiscrepancies)
	})
}

func observeFetch(source string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	catalogFetchesTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveTogglePhase is the affinity.Toggler phase hook.
func ObserveTogglePhase(kind affinity.Kind, phase affinity.Phase) {
	affinityTogglesTotal.WithLabelValues(string(kind), string(phase)).Inc()
}
