package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"goldenbookAPI/internal/affinity"
	"goldenbookAPI/internal/catalog"
	"goldenbookAPI/internal/discovery"
	"goldenbookAPI/internal/geo"
	"goldenbookAPI/services"
)

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithServiceError maps domain errors to status codes. Anything
// unrecognised is logged and reported as a generic server error.
func respondWithServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, discovery.ErrEmptyQuery),
		errors.Is(err, affinity.ErrUnknownKind),
		errors.Is(err, geo.ErrInvalidCoordinates):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, affinity.ErrGuestUser):
		respondWithError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, catalog.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, discovery.ErrSessionNotFound), errors.Is(err, discovery.ErrSessionClosed):
		respondWithError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, affinity.ErrToggleInFlight):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, discovery.ErrLoadFailed),
		errors.Is(err, affinity.ErrMutationRefused),
		errors.Is(err, geo.ErrUpstream):
		respondWithError(w, http.StatusBadGateway, "Upstream request failed")
	case errors.Is(err, context.DeadlineExceeded):
		respondWithError(w, http.StatusGatewayTimeout, "Request timed out")
	default:
		log.WithError(err).Error("Unhandled service error")
		respondWithError(w, http.StatusInternalServerError, "Server error")
	}
}
