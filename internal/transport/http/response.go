// Package http implements the public HTTP surface of spec.md §6.1,
// generalizing the teacher's chi-based Handler/Router (uniform
// APIResponse{Success,Data,Error} envelope, middleware.RequestID/RealIP/
// Logger/Recoverer/Compress plus a CORS middleware) across the full
// receipt/user/mission/leaderboard/empire/companion endpoint table.
package http

import (
	"encoding/json"
	"net/http"

	"github.com/mallquest/mallquest/internal/apperr"
)

// APIResponse is the uniform response envelope, unchanged from the teacher.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, APIResponse{Success: true, Data: data})
}

// writeError classifies err through apperr and writes the matching status
// and error body.
func writeError(w http.ResponseWriter, err error) {
	ae := apperr.Wrap(err)
	writeJSON(w, apperr.HTTPStatus(ae.Kind), APIResponse{
		Success: false,
		Error:   &errorBody{Code: ae.Code, Message: ae.Message},
	})
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return apperr.New(apperr.KindValidation, "invalid_request", "request body required")
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.New(apperr.KindValidation, "invalid_request", "malformed request body")
	}
	return nil
}
