package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"goldenbookAPI/internal/discovery"
	"goldenbookAPI/services"
)

// loadTimeout bounds a catalog fetch made on behalf of a request.
const loadTimeout = 10 * time.Second

type DiscoveryHandler struct {
	discoveryService *services.DiscoveryService
}

func NewDiscoveryHandler(discoveryService *services.DiscoveryService) *DiscoveryHandler {
	return &DiscoveryHandler{
		discoveryService: discoveryService,
	}
}

// BrowseEstablishments serves a one-shot view of a location.
func (h *DiscoveryHandler) BrowseEstablishments(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), loadTimeout)
	defer cancel()

	q := r.URL.Query()
	lat, lon, err := coordinateParams(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.discoveryService.Browse(ctx, services.BrowseRequest{
		LocationID:  mux.Vars(r)["locationId"],
		CategoryID:  q.Get("category"),
		Subcategory: q.Get("subcategory"),
		Strategy:    q.Get("sort"),
		Latitude:    lat,
		Longitude:   lon,
		MapOnly:     q.Get("map") == "true",
	})
	if err != nil {
		respondWithLoadError(w, view, err)
		return
	}

	respondWithJSON(w, http.StatusOK, view)
}

func (h *DiscoveryHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), loadTimeout)
	defer cancel()

	var req services.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	view, err := h.discoveryService.CreateSession(ctx, req)
	if err != nil {
		respondWithLoadError(w, view, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, view)
}

func (h *DiscoveryHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.discoveryService.GetSession(mux.Vars(r)["sessionId"], r.URL.Query().Get("map") == "true")
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, view)
}

func (h *DiscoveryHandler) UpdateSelection(w http.ResponseWriter, r *http.Request) {
	var upd services.SelectionUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	view, err := h.discoveryService.UpdateSelection(mux.Vars(r)["sessionId"], upd)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, view)
}

func (h *DiscoveryHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.discoveryService.CloseSession(mux.Vars(r)["sessionId"]); err != nil {
		respondWithServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *DiscoveryHandler) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), loadTimeout)
	defer cancel()

	result, err := h.discoveryService.Suggestions(ctx, mux.Vars(r)["sessionId"], r.URL.Query().Get("q"))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// Search hands the query off to a new query-scoped session.
func (h *DiscoveryHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), loadTimeout)
	defer cancel()

	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	view, err := h.discoveryService.Search(ctx, mux.Vars(r)["sessionId"], req.Query)
	if err != nil {
		respondWithLoadError(w, view, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, view)
}

// respondWithLoadError reports a failed catalog fetch with the session
// state, and defers everything else to the generic mapping.
func respondWithLoadError(w http.ResponseWriter, view *services.SessionView, err error) {
	if view != nil && errors.Is(err, discovery.ErrLoadFailed) {
		respondWithJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":      "failed to load establishments",
			"session_id": view.SessionID,
			"state":      view.State,
		})
		return
	}
	respondWithServiceError(w, err)
}

func coordinateParams(r *http.Request) (*float64, *float64, error) {
	q := r.URL.Query()
	lat, err := optionalFloat(q.Get("lat"))
	if err != nil {
		return nil, nil, errors.New("invalid lat")
	}
	lon, err := optionalFloat(q.Get("lon"))
	if err != nil {
		return nil, nil, errors.New("invalid lon")
	}
	return lat, lon, nil
}

func optionalFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
