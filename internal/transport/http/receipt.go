package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mallquest/mallquest/internal/apperr"
	"github.com/mallquest/mallquest/internal/domain"
	"github.com/mallquest/mallquest/internal/progression"
)

type receiptRequest struct {
	Amount         float64 `json:"amount"`
	Store          string  `json:"store"`
	Category       string  `json:"category"`
	Timestamp      string  `json:"timestamp"`
	IdempotencyKey string  `json:"idempotency_key"`
	WifiSSID       string  `json:"wifi_ssid"`
}

func (h *Handler) handleSubmitReceipt(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	claims := claimsFrom(r)

	ts := time.Now()
	if req.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, req.Timestamp); err == nil {
			ts = parsed
		}
	}

	source := domain.SourceMobile
	if claims.Role == string(domain.RoleShopkeeper) {
		source = domain.SourcePOS
	}

	resp, err := h.progression.SubmitReceipt(r.Context(), claims, progression.ReceiptRequest{
		TenantID:       claims.TenantID,
		Amount:         req.Amount,
		Store:          req.Store,
		Category:       req.Category,
		Timestamp:      ts,
		IdempotencyKey: req.IdempotencyKey,
		Source:         source,
		WifiSSID:       req.WifiSSID,
		ClientIP:       r.RemoteAddr,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	userID := chi.URLParam(r, "id")
	if userID != claims.UserID && claims.Role != string(domain.RoleAdmin) {
		writeError(w, apperr.New(apperr.KindAuthorization, "forbidden", "cannot view another user's profile"))
		return
	}
	u, err := h.store.LoadUser(r.Context(), claims.TenantID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, u)
}

func (h *Handler) handleGenerateMissions(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	var req struct {
		Type string `json:"type"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	created, err := h.missions.Generate(r.Context(), claims.TenantID, claims.UserID, domain.MissionType(req.Type))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, created)
}

// handleClaimMission does not read an Idempotency-Key header: a mission can
// only ever be completed once, so the mission id itself is the idempotency
// boundary ClaimMission keys its stored outcome under. A retried claim -
// with or without a repeated header - gets back the same totals.
func (h *Handler) handleClaimMission(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	missionID := chi.URLParam(r, "id")
	totals, err := h.progression.ClaimMission(r.Context(), claims.TenantID, claims.UserID, missionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, totals)
}

func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	kind := chi.URLParam(r, "kind")
	if !domain.ValidLeaderboardKind(kind) {
		writeError(w, apperr.New(apperr.KindValidation, "invalid_kind", "unknown leaderboard kind"))
		return
	}
	limit := 50
	entries, err := h.store.ListTopUsers(r.Context(), claims.TenantID, domain.LeaderboardKind(kind), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, entries)
}
