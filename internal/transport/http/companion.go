package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type adoptRequest struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

func (h *Handler) handleAdoptCompanion(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	var req adoptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.companion.Adopt(r.Context(), claims.TenantID, claims.UserID, req.Type, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, c)
}

func (h *Handler) handleFeedCompanion(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	companionID := chi.URLParam(r, "id")
	var req struct {
		FoodType string `json:"food_type"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.companion.Feed(r.Context(), claims.TenantID, claims.UserID, companionID, req.FoodType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) handleUseAbility(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	companionID := chi.URLParam(r, "id")
	ability := chi.URLParam(r, "ability")
	res, err := h.companion.UseAbility(r.Context(), claims.TenantID, claims.UserID, companionID, ability)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) handleListCompanions(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	companions, err := h.store.ListCompanions(r.Context(), claims.TenantID, claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, companions)
}
