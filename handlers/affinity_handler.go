package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"goldenbookAPI/internal/affinity"
	"goldenbookAPI/middleware"
	"goldenbookAPI/services"
)

type AffinityHandler struct {
	affinityService *services.AffinityService
}

func NewAffinityHandler(affinityService *services.AffinityService) *AffinityHandler {
	return &AffinityHandler{
		affinityService: affinityService,
	}
}

func (h *AffinityHandler) GetFavorites(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, affinity.KindFavorite)
}

func (h *AffinityHandler) GetLikes(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, affinity.KindLike)
}

func (h *AffinityHandler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	h.set(w, r, affinity.KindFavorite, true)
}

func (h *AffinityHandler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	h.set(w, r, affinity.KindFavorite, false)
}

func (h *AffinityHandler) AddLike(w http.ResponseWriter, r *http.Request) {
	h.set(w, r, affinity.KindLike, true)
}

func (h *AffinityHandler) RemoveLike(w http.ResponseWriter, r *http.Request) {
	h.set(w, r, affinity.KindLike, false)
}

func (h *AffinityHandler) list(w http.ResponseWriter, r *http.Request, kind affinity.Kind) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	establishments, err := h.affinityService.Hydrate(ctx, middleware.GetPrincipal(ctx), kind)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, establishments)
}

func (h *AffinityHandler) set(w http.ResponseWriter, r *http.Request, kind affinity.Kind, member bool) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	result, err := h.affinityService.SetMembership(ctx,
		middleware.GetPrincipal(ctx),
		kind,
		mux.Vars(r)["id"],
		member,
		r.URL.Query().Get("sessionId"),
	)
	if err != nil {
		if result.Phase == affinity.PhaseRolledBack {
			respondWithJSON(w, http.StatusBadGateway, map[string]interface{}{
				"error":  "Update failed, change reverted",
				"toggle": result,
			})
			return
		}
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}
