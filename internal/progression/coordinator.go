// Package progression implements the ProgressionCoordinator: the state
// machine that admits a request, loads user state, invokes the reward
// engine, commits atomically, evaluates missions/achievements/streak/VIP,
// and enqueues notifications.
package progression

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mallquest/mallquest/internal/apperr"
	"github.com/mallquest/mallquest/internal/authgate"
	"github.com/mallquest/mallquest/internal/cache"
	"github.com/mallquest/mallquest/internal/domain"
	"github.com/mallquest/mallquest/internal/ratelimit"
	"github.com/mallquest/mallquest/internal/reward"
	"github.com/mallquest/mallquest/internal/store"
)

// storeDeps is the Store surface the coordinator depends on.
type storeDeps interface {
	LoadUser(ctx context.Context, tenantID, userID string) (domain.User, error)
	ApplyUserDelta(ctx context.Context, delta domain.UserDelta, responseBlob json.RawMessage) (domain.CommitResult, error)
	GetIdempotencyRecord(ctx context.Context, tenantID, userID, idemKey string) (*store.IdempotencyRecord, error)
}

// tenantRegistry resolves a tenant by id, exposed by transport middleware.
type tenantRegistry interface {
	Get(ctx context.Context, tenantID string) (domain.Tenant, error)
}

// notifier is the best-effort push dependency (WS hub); failures never fail
// the request.
type notifier interface {
	Push(tenantID, userID string, n domain.Notification)
}

// missionEvaluator evaluates active mission templates against a receipt.
type missionEvaluator interface {
	Evaluate(ctx context.Context, tenantID string, u domain.User, r domain.ReceiptSubmission) ([]domain.MissionProgressUpdate, []domain.Notification, error)
}

const maxMutexWait = 500 * time.Millisecond
const maxVersionRetries = 3

// Coordinator is the sole write path for user state.
type Coordinator struct {
	store        storeDeps
	tenants      tenantRegistry
	cache        *cache.Cache
	limiter      *ratelimit.Limiter
	gate         *authgate.Gate
	missions     missionEvaluator
	missionRepo  MissionStore
	notifier     notifier
	logger       *slog.Logger

	userLocks sync.Map // (tenant,user) -> *sync.Mutex
}

// New wires the coordinator's dependencies.
func New(store storeDeps, tenants tenantRegistry, c *cache.Cache, limiter *ratelimit.Limiter, gate *authgate.Gate, missions *MissionEvaluator, notif notifier, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:       store,
		tenants:     tenants,
		cache:       c,
		limiter:     limiter,
		gate:        gate,
		missions:    missions,
		missionRepo: missions.store,
		notifier:    notif,
		logger:      logger,
	}
}

func lockKey(tenantID, userID string) string { return tenantID + ":" + userID }

// withUserLock serializes all mutating operations on a given user. It
// bounds wait at maxMutexWait and returns domain.ErrBusy past that, per the
// coordinator's tertiary backpressure mechanism.
func (c *Coordinator) withUserLock(tenantID, userID string, fn func() error) error {
	key := lockKey(tenantID, userID)
	lockAny, _ := c.userLocks.LoadOrStore(key, &sync.Mutex{})
	mu := lockAny.(*sync.Mutex)

	acquired := make(chan struct{})
	go func() {
		mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		defer mu.Unlock()
		return fn()
	case <-time.After(maxMutexWait):
		return domain.ErrBusy
	}
}

// ReceiptRequest is the inbound submission.
type ReceiptRequest struct {
	TenantID       string
	Token          string
	Amount         float64
	Store          string
	Category       string
	Timestamp      time.Time
	IdempotencyKey string
	Source         domain.ReceiptSource
	WifiSSID       string
	ClientIP       string
}

// ReceiptResponse mirrors the §6.1 receipt response body.
type ReceiptResponse struct {
	ReceiptID   string                    `json:"receipt_id"`
	Status      domain.VerificationState  `json:"status"`
	Reward      domain.RewardSnapshot     `json:"reward"`
	User        UserTotals                `json:"user"`
	Events      []domain.DerivedEvent     `json:"events"`
}

// UserTotals is the trimmed post-commit snapshot returned to the client.
type UserTotals struct {
	Coins   int64  `json:"coins"`
	XP      int64  `json:"xp"`
	Level   int    `json:"level"`
	VIPTier string `json:"vip_tier"`
	Streak  int64  `json:"streak"`
}

func totalsOf(u domain.User) UserTotals {
	return UserTotals{Coins: u.Coins, XP: u.XP, Level: u.Level, VIPTier: u.VIPTier, Streak: int64(u.Streak.Count)}
}

// SubmitReceipt runs the canonical 11-step receipt flow of spec.md §4.6.
// Step 1 (auth) runs in transport middleware; SubmitReceipt begins with the
// submit_receipt rate-limit check (step 2) and then validates (step 3).
func (c *Coordinator) SubmitReceipt(ctx context.Context, claims *authgate.Claims, req ReceiptRequest) (*ReceiptResponse, error) {
	if err := c.limiterCheck(ctx, req.TenantID, claims.UserID, "submit_receipt"); err != nil {
		return nil, err
	}

	if err := validateReceipt(req); err != nil {
		return nil, err
	}

	tenant, err := c.tenants.Get(ctx, req.TenantID)
	if err != nil {
		return nil, apperr.Wrap(err)
	}

	if rec, err := c.store.GetIdempotencyRecord(ctx, req.TenantID, claims.UserID, req.IdempotencyKey); err == nil && rec != nil {
		var resp ReceiptResponse
		if json.Unmarshal(rec.ResponseBlob, &resp) == nil {
			return &resp, nil
		}
	}

	var result *ReceiptResponse
	err = c.withUserLock(req.TenantID, claims.UserID, func() error {
		var innerErr error
		result, innerErr = c.commitReceipt(ctx, tenant, claims.UserID, req)
		return innerErr
	})
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return result, nil
}

func (c *Coordinator) limiterCheck(ctx context.Context, tenantID, subject, action string) error {
	ok, err := c.limiter.Allow(ctx, tenantID, subject, action)
	if err != nil {
		return apperr.Wrap(err)
	}
	if !ok {
		return apperr.New(apperr.KindRateLimited, "rate_limited", "too many requests")
	}
	return nil
}

func validateReceipt(req ReceiptRequest) error {
	if req.Amount <= 0 {
		return apperr.New(apperr.KindValidation, "invalid_amount", "amount must be positive")
	}
	if utf8.RuneCountInString(req.Store) == 0 || utf8.RuneCountInString(req.Store) > 100 {
		return apperr.New(apperr.KindValidation, "invalid_store", "store name must be 1-100 characters")
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return apperr.New(apperr.KindValidation, "invalid_idempotency_key", "idempotency key is required")
	}
	return nil
}

// commitReceipt executes steps 4-11 under the per-user lock, retrying up to
// maxVersionRetries times on optimistic version conflict.
func (c *Coordinator) commitReceipt(ctx context.Context, tenant domain.Tenant, userID string, req ReceiptRequest) (*ReceiptResponse, error) {
	policy := tenant.Policy

	if req.Amount > policy.MaxReceiptAmount {
		return nil, apperr.New(apperr.KindValidation, "amount_exceeds_limit", "amount exceeds the maximum receipt amount")
	}

	store := sanitizeStore(req.Store)
	category := req.Category
	if category == "" {
		category = "general"
	}

	var lastErr error
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		user, err := c.loadUser(ctx, tenant.ID, userID)
		if err != nil {
			return nil, err
		}

		now := req.Timestamp
		if now.IsZero() {
			now = time.Now()
		}

		firstInCategory := !user.HasVisitedCategory(category)
		storeAllowed := true
		hasAllowList := len(tenant.StoreAllow) > 0
		if hasAllowList {
			storeAllowed = contains(tenant.StoreAllow, store)
		}

		wifiAllowed := true
		hasWifiAllowList := len(tenant.WifiSSIDs) > 0
		if hasWifiAllowList {
			wifiAllowed = contains(tenant.WifiSSIDs, req.WifiSSID)
		}

		in := reward.Input{
			User: user,
			Receipt: domain.ReceiptSubmission{
				TenantID: tenant.ID, UserID: userID, Amount: req.Amount, Store: store,
				Category: category, Timestamp: now, IdempotencyKey: req.IdempotencyKey,
				Source: req.Source, WifiSSID: req.WifiSSID,
			},
			Policy:            policy,
			Now:               now,
			FirstInCategory:   firstInCategory,
			HasStoreAllowList: hasAllowList,
			StoreAllowed:      storeAllowed,
			HasWifiAllowList:  hasWifiAllowList,
			WifiAllowed:       wifiAllowed,
		}
		out, err := reward.Compute(in)
		if err != nil {
			return nil, apperr.Wrap(err)
		}

		result, err := c.applyReceiptCommit(ctx, tenant, user, req, store, category, now, out, firstInCategory)
		if err != nil {
			if err == domain.ErrVersionConflict {
				lastErr = err
				continue
			}
			return nil, err
		}
		return result, nil
	}
	return nil, apperr.New(apperr.KindConflict, "conflict", fmt.Sprintf("version conflict after retries: %v", lastErr))
}

func (c *Coordinator) loadUser(ctx context.Context, tenantID, userID string) (domain.User, error) {
	if u, ok := c.cache.GetUser(ctx, tenantID, userID); ok {
		return u, nil
	}
	u, err := c.store.LoadUser(ctx, tenantID, userID)
	if err != nil {
		return domain.User{}, apperr.Wrap(err)
	}
	c.cache.SetUser(ctx, u)
	return u, nil
}

func sanitizeStore(s string) string {
	s = html.EscapeString(strings.TrimSpace(s))
	if utf8.RuneCountInString(s) > 100 {
		r := []rune(s)
		s = string(r[:100])
	}
	return s
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
