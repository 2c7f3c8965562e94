package handlers

import (
	"context"
	"net/http"
	"time"

	"goldenbookAPI/middleware"
	"goldenbookAPI/services"
)

type GeoHandler struct {
	geoService *services.GeoService
}

func NewGeoHandler(geoService *services.GeoService) *GeoHandler {
	return &GeoHandler{
		geoService: geoService,
	}
}

// ReverseGeocode labels the device position. An unresolvable position is not
// an error; the address is null.
func (h *GeoHandler) ReverseGeocode(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	lat, lon, err := coordinateParams(r)
	if err != nil || lat == nil || lon == nil {
		respondWithError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}

	address, err := h.geoService.ReverseGeocode(ctx, middleware.GetPrincipal(ctx), *lat, *lon)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{"address": address})
}
