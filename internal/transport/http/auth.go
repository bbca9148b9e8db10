package http

import (
	"net/http"

	"github.com/mallquest/mallquest/internal/domain"
)

type loginRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	MFACode   string `json:"mfa_code"`
	UserAgent string `json:"-"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    string `json:"expires_at"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tenant := tenantFrom(r)

	pair, _, err := h.gate.Login(r.Context(), tenant.ID, req.Email, req.Password, req.MFACode, r.RemoteAddr, r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt.Format(http.TimeFormat),
	})
}

type registerRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tenant := tenantFrom(r)

	u, err := h.gate.Register(r.Context(), tenant.ID, req.Email, req.DisplayName, req.Password, domain.RolePlayer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]string{"user_id": u.ID})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	pair, err := h.gate.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt.Format(http.TimeFormat),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	if err := h.gate.Revoke(r.Context(), claims.TenantID, claims.UserID, claims.TokenID); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *Handler) handleMFASetup(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	secret, uri, codes, err := h.gate.SetupMFA(r.Context(), claims.TenantID, claims.UserID, req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"secret":           secret,
		"provisioning_uri": uri,
		"backup_codes":     codes,
	})
}

func (h *Handler) handleMFAVerify(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.gate.ConfirmMFA(r.Context(), claims.TenantID, claims.UserID, req.Code); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"status": "enabled"})
}
