package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mallquest/mallquest/internal/authgate"
	"github.com/mallquest/mallquest/internal/companion"
	"github.com/mallquest/mallquest/internal/domain"
	"github.com/mallquest/mallquest/internal/empire"
	"github.com/mallquest/mallquest/internal/metrics"
	"github.com/mallquest/mallquest/internal/progression"
	"github.com/mallquest/mallquest/internal/transport/ws"
)

// readStore is the narrow, read-only Store surface the HTTP layer needs
// beyond what the coordinators already expose.
type readStore interface {
	LoadUser(ctx context.Context, tenantID, userID string) (domain.User, error)
	ListFacilities(ctx context.Context, tenantID, userID string) ([]domain.Facility, error)
	ListCompanions(ctx context.Context, tenantID, userID string) ([]domain.Companion, error)
	ListTopUsers(ctx context.Context, tenantID string, kind domain.LeaderboardKind, limit int) ([]domain.LeaderboardEntry, error)
}

type tenantRegistry interface {
	Get(ctx context.Context, tenantID string) (domain.Tenant, error)
	GetByHost(ctx context.Context, host string) (domain.Tenant, error)
}

// Handler holds every dependency the HTTP surface dispatches into.
type Handler struct {
	progression *progression.Coordinator
	empire      *empire.Coordinator
	companion   *companion.Coordinator
	gate        *authgate.Gate
	missions    *progression.MissionEvaluator
	tenants     tenantRegistry
	store       readStore
	hub         *ws.Hub
	logger      *slog.Logger
}

// New wires a Handler from its dependencies.
func New(prog *progression.Coordinator, emp *empire.Coordinator, comp *companion.Coordinator, gate *authgate.Gate, missions *progression.MissionEvaluator, tenants tenantRegistry, store readStore, hub *ws.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		progression: prog,
		empire:      emp,
		companion:   comp,
		gate:        gate,
		missions:    missions,
		tenants:     tenants,
		store:       store,
		hub:         hub,
		logger:      logger,
	}
}

// Router assembles the chi mux, generalizing the teacher's middleware chain
// (RequestID/RealIP/Logger/Recoverer/Compress + CORS) with tenant resolution,
// metrics, and the full receipt/user/mission/leaderboard/empire/companion
// endpoint table of spec.md §6.1.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)

	r.Route("/", func(r chi.Router) {
		r.Use(h.tenantMiddleware)

		r.Post("/login", h.handleLogin)
		r.Post("/register", h.handleRegister)
		r.Post("/refresh", h.handleRefresh)
		r.Post("/logout", h.requireAuth(h.handleLogout))
		r.Post("/mfa/setup", h.requireAuth(h.handleMFASetup))
		r.Post("/mfa/verify", h.requireAuth(h.handleMFAVerify))

		r.Route("/api", func(r chi.Router) {
			r.Post("/receipt", h.requireAuth(h.handleSubmitReceipt))
			r.Post("/pos/purchase", h.requireRole(domain.RoleShopkeeper, h.handleSubmitReceipt))

			r.Get("/user/{id}", h.requireAuth(h.handleGetUser))

			r.Post("/mission/generate", h.requireAuth(h.handleGenerateMissions))
			r.Post("/mission/{id}/claim", h.requireAuth(h.handleClaimMission))

			r.Get("/leaderboard/{kind}", h.requireAuth(h.handleLeaderboard))

			r.Post("/empire/facility/{type}/purchase", h.requireAuth(h.handlePurchaseFacility))
			r.Post("/empire/facility/{type}/upgrade", h.requireAuth(h.handleUpgradeFacility))
			r.Post("/empire/income/collect", h.requireAuth(h.handleCollectIncome))
			r.Post("/empire/facility/{type}/event/{event}", h.requireAuth(h.handleStartEvent))
			r.Get("/empire/facilities", h.requireAuth(h.handleListFacilities))

			r.Post("/companion/adopt", h.requireAuth(h.handleAdoptCompanion))
			r.Post("/companion/{id}/feed", h.requireAuth(h.handleFeedCompanion))
			r.Post("/companion/{id}/ability/{ability}", h.requireAuth(h.handleUseAbility))
			r.Get("/companions", h.requireAuth(h.handleListCompanions))

			r.Get("/performance-metrics", h.requireRole(domain.RoleAdmin, h.handleMetrics))
		})

		r.Get("/ws", h.requireAuth(h.handleWebSocket))
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics.Handler().ServeHTTP(w, r)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	ws.Serve(h.hub, claims.TenantID, claims.UserID, h.logger, w, r)
}
