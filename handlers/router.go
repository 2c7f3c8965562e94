package handlers

import (
	"context"
	"net/http"
	"time"

	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"goldenbookAPI/middleware"
)

type RouterConfig struct {
	Catalog   *CatalogHandler
	Discovery *DiscoveryHandler
	Search    *SearchHandler
	Affinity  *AffinityHandler
	Geo       *GeoHandler

	Verifier    middleware.TokenVerifier
	RateLimiter *middleware.IPRateLimiter

	MetricsUser string
	MetricsPass string

	// Health reports whether the catalog backend is reachable.
	Health func(ctx context.Context) error
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	standardRouter := r.PathPrefix("/").Subrouter()
	if cfg.RateLimiter != nil {
		standardRouter.Use(cfg.RateLimiter.Middleware)
	}
	standardRouter.Use(middleware.MonitorMiddleware)

	standardRouter.Handle("/metrics", middleware.BasicAuthMiddleware(cfg.MetricsUser, cfg.MetricsPass)(promhttp.Handler()))

	standardRouter.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if cfg.Health != nil {
			if err := cfg.Health(ctx); err != nil {
				respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  "catalog backend unreachable",
				})
				return
			}
		}

		respondWithJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "goldenbook-api"})
	}).Methods("GET")

	// -------------------------------------------------------------------------
	// API V1 SUBROUTER
	// -------------------------------------------------------------------------
	api := standardRouter.PathPrefix("/api/v1").Subrouter()

	public := api.PathPrefix("").Subrouter()
	public.Use(middleware.OptionalAuth(cfg.Verifier))

	public.HandleFunc("/locations/{locationId}", cfg.Catalog.GetLocation).Methods("GET")
	public.HandleFunc("/locations/{locationId}/establishments", cfg.Discovery.BrowseEstablishments).Methods("GET")
	public.HandleFunc("/categories", cfg.Catalog.GetCategories).Methods("GET")
	public.HandleFunc("/categories/{categoryId}", cfg.Catalog.GetCategory).Methods("GET")
	public.HandleFunc("/establishments/{id}", cfg.Catalog.GetEstablishment).Methods("GET")

	public.HandleFunc("/sessions", cfg.Discovery.CreateSession).Methods("POST")
	public.HandleFunc("/sessions/{sessionId}", cfg.Discovery.GetSession).Methods("GET")
	public.HandleFunc("/sessions/{sessionId}", cfg.Discovery.DeleteSession).Methods("DELETE")
	public.HandleFunc("/sessions/{sessionId}/selection", cfg.Discovery.UpdateSelection).Methods("PUT")
	public.HandleFunc("/sessions/{sessionId}/suggestions", cfg.Discovery.GetSuggestions).Methods("GET")
	public.HandleFunc("/sessions/{sessionId}/search", cfg.Discovery.Search).Methods("POST")
	public.HandleFunc("/sessions/{sessionId}/search/ws", cfg.Search.LiveSearch)

	public.HandleFunc("/geo/reverse", cfg.Geo.ReverseGeocode).Methods("GET")

	// -------------------------------------------------------------------------
	// PROTECTED ROUTES (REQUIRE AUTH HEADER)
	// -------------------------------------------------------------------------
	protected := api.PathPrefix("/me").Subrouter()
	protected.Use(middleware.RequireAuth(cfg.Verifier))

	protected.HandleFunc("/favorites", cfg.Affinity.GetFavorites).Methods("GET")
	protected.HandleFunc("/favorites/{id}", cfg.Affinity.AddFavorite).Methods("POST")
	protected.HandleFunc("/favorites/{id}", cfg.Affinity.RemoveFavorite).Methods("DELETE")
	protected.HandleFunc("/likes", cfg.Affinity.GetLikes).Methods("GET")
	protected.HandleFunc("/likes/{id}", cfg.Affinity.AddLike).Methods("POST")
	protected.HandleFunc("/likes/{id}", cfg.Affinity.RemoveLike).Methods("DELETE")

	corsHandler := gorillaHandlers.CORS(
		gorillaHandlers.AllowedOrigins([]string{"*"}),
		gorillaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorillaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "Accept-Language"}),
		gorillaHandlers.ExposedHeaders([]string{"Content-Length"}),
	)

	return corsHandler(r)
}
