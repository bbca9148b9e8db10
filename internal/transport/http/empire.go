package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) handlePurchaseFacility(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	facilityType := chi.URLParam(r, "type")
	res, err := h.empire.PurchaseFacility(r.Context(), claims.TenantID, claims.UserID, facilityType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) handleUpgradeFacility(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	facilityType := chi.URLParam(r, "type")
	res, err := h.empire.UpgradeFacility(r.Context(), claims.TenantID, claims.UserID, facilityType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) handleCollectIncome(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	res, err := h.empire.CollectIncome(r.Context(), claims.TenantID, claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) handleStartEvent(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	facilityType := chi.URLParam(r, "type")
	eventType := chi.URLParam(r, "event")
	res, err := h.empire.StartSpecialEvent(r.Context(), claims.TenantID, claims.UserID, facilityType, eventType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) handleListFacilities(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	facilities, err := h.store.ListFacilities(r.Context(), claims.TenantID, claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, facilities)
}
