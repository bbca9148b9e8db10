package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/mallquest/mallquest/internal/apperr"
	"github.com/mallquest/mallquest/internal/authgate"
	"github.com/mallquest/mallquest/internal/domain"
)

type ctxKey int

const (
	ctxTenant ctxKey = iota
	ctxClaims
)

// tenantMiddleware resolves Tenant from r.Host against the registry before
// routing, per spec.md §6.1's tenant-resolution rule.
func (h *Handler) tenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		tenant, err := h.tenants.GetByHost(r.Context(), host)
		if err != nil {
			writeError(w, apperr.New(apperr.KindNotFound, "unknown_tenant", "no tenant registered for this host"))
			return
		}
		ctx := context.WithValue(r.Context(), ctxTenant, tenant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tenantFrom(r *http.Request) domain.Tenant {
	t, _ := r.Context().Value(ctxTenant).(domain.Tenant)
	return t
}

// requireAuth verifies the Authorization bearer token and injects its
// claims; it rejects before any handler logic runs.
func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, apperr.New(apperr.KindAuthentication, "missing_token", "authorization token required"))
			return
		}
		claims, err := h.gate.Verify(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxClaims, claims)
		next(w, r.WithContext(ctx))
	}
}

// requireRole wraps requireAuth and additionally checks the caller's role.
func (h *Handler) requireRole(role domain.Role, next http.HandlerFunc) http.HandlerFunc {
	return h.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r)
		if claims.Role != string(role) {
			writeError(w, apperr.New(apperr.KindAuthorization, "forbidden", "insufficient role"))
			return
		}
		next(w, r)
	})
}

func claimsFrom(r *http.Request) *authgate.Claims {
	c, _ := r.Context().Value(ctxClaims).(*authgate.Claims)
	return c
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

// corsMiddleware mirrors the teacher's corsMiddleware exactly.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID, Idempotency-Key")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
