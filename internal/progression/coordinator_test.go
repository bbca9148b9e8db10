package progression

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mallquest/mallquest/internal/authgate"
	"github.com/mallquest/mallquest/internal/cache"
	"github.com/mallquest/mallquest/internal/config"
	"github.com/mallquest/mallquest/internal/domain"
	"github.com/mallquest/mallquest/internal/ratelimit"
	"github.com/mallquest/mallquest/internal/store"
)

type fakeStore struct {
	users       map[string]domain.User
	idempotency map[string]*store.IdempotencyRecord
	missions    map[string]domain.Mission
	applyCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       make(map[string]domain.User),
		idempotency: make(map[string]*store.IdempotencyRecord),
		missions:    make(map[string]domain.Mission),
	}
}

func (f *fakeStore) LoadUser(ctx context.Context, tenantID, userID string) (domain.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeStore) ApplyUserDelta(ctx context.Context, delta domain.UserDelta, responseBlob json.RawMessage) (domain.CommitResult, error) {
	f.applyCalls++
	u, ok := f.users[delta.UserID]
	if !ok {
		return domain.CommitResult{}, domain.ErrUserNotFound
	}
	if delta.ExpectedVersion != u.Version {
		return domain.CommitResult{}, domain.ErrVersionConflict
	}

	u.Coins += delta.CoinsDelta
	u.XP += delta.XPDelta
	u.VIPPoints += delta.VIPPointsDelta
	u.AchievementPts += delta.AchievementPtsDelta
	if delta.NewStreak != nil {
		u.Streak = *delta.NewStreak
	}
	if delta.NewLevel != nil {
		u.Level = *delta.NewLevel
	}
	if delta.NewVIPTier != nil {
		u.VIPTier = *delta.NewVIPTier
	}
	if delta.VisitCategory != "" {
		if u.VisitedCategories == nil {
			u.VisitedCategories = map[string]bool{}
		}
		u.VisitedCategories[delta.VisitCategory] = true
	}
	u.Version++
	f.users[delta.UserID] = u

	for _, mu := range delta.MissionUpdates {
		if m, ok := f.missions[mu.MissionID]; ok {
			m.Progress = mu.Progress
			m.Status = mu.Status
			f.missions[mu.MissionID] = m
		}
	}

	if delta.IdempotencyKey != "" {
		f.idempotency[delta.UserID+":"+delta.IdempotencyKey] = &store.IdempotencyRecord{ResponseBlob: responseBlob}
	}

	return domain.CommitResult{User: u}, nil
}

func (f *fakeStore) GetIdempotencyRecord(ctx context.Context, tenantID, userID, idemKey string) (*store.IdempotencyRecord, error) {
	rec, ok := f.idempotency[userID+":"+idemKey]
	if !ok {
		return nil, nil
	}
	return rec, nil
}

func (f *fakeStore) ListActiveMissions(ctx context.Context, tenantID, userID string) ([]domain.Mission, error) {
	var out []domain.Mission
	for _, m := range f.missions {
		if m.UserID == userID && m.Status == domain.MissionActive {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateMission(ctx context.Context, tenantID string, m domain.Mission) error {
	f.missions[m.ID] = m
	return nil
}

func (f *fakeStore) GetMission(ctx context.Context, tenantID, userID, missionID string) (domain.Mission, error) {
	m, ok := f.missions[missionID]
	if !ok {
		return domain.Mission{}, domain.ErrMissionNotFound
	}
	return m, nil
}

type fakeTenants struct {
	tenant domain.Tenant
}

func (f *fakeTenants) Get(ctx context.Context, tenantID string) (domain.Tenant, error) {
	if tenantID != f.tenant.ID {
		return domain.Tenant{}, domain.ErrTenantNotFound
	}
	return f.tenant, nil
}

type fakeNotifier struct {
	pushed []domain.Notification
}

func (f *fakeNotifier) Push(tenantID, userID string, n domain.Notification) {
	f.pushed = append(f.pushed, n)
}

func testCache(t *testing.T) *cache.Cache {
	t.Helper()
	return cache.New(context.Background(), config.CacheConfig{LocalCapacity: 1000, LocalTTL: time.Minute}, config.RedisConfig{}, testSlog())
}

func testSlog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testLimiter(t *testing.T, fs *fakeStore) *ratelimit.Limiter {
	t.Helper()
	cfg := config.RateLimitConfig{
		FlushInterval: time.Minute,
		FlushMaxCount: 1000,
		Actions: map[string]config.ActionLimit{
			"submit_receipt": {Window: time.Minute, Max: 1000, FailOpen: true},
			"claim_mission":  {Window: time.Minute, Max: 1000, FailOpen: true},
		},
	}
	return ratelimit.New(fs, cfg, testSlog())
}

func (f *fakeStore) RateLimitIncr(ctx context.Context, tenantID, subject, action string, windowStart time.Time, delta int64) (int64, error) {
	return 1, nil
}

func testTenant() domain.Tenant {
	return domain.Tenant{ID: "tenant1", HostDomain: "t1.mallquest.app", Policy: domain.DefaultPolicy()}
}

func testCoordinator(t *testing.T, fs *fakeStore, tenant domain.Tenant, notif *fakeNotifier) *Coordinator {
	t.Helper()
	gate := authgate.New(&noopAuthStore{}, config.AuthConfig{JWTSecret: "s", BcryptCost: 4}, testSlog())
	evaluator := NewMissionEvaluator(fs, config.MissionConfig{})
	return New(fs, &fakeTenants{tenant: tenant}, testCache(t), testLimiter(t, fs), gate, evaluator, notif, testSlog())
}

// noopAuthStore satisfies authgate's storage interface without being exercised
// by progression's tests; the coordinator never calls through c.gate directly.
type noopAuthStore struct{}

func (noopAuthStore) LoadUser(ctx context.Context, tenantID, userID string) (domain.User, error) {
	return domain.User{}, domain.ErrUserNotFound
}
func (noopAuthStore) LoadUserByEmail(ctx context.Context, tenantID, email string, shardCount int) (domain.User, error) {
	return domain.User{}, domain.ErrUserNotFound
}
func (noopAuthStore) CreateUser(ctx context.Context, u domain.User) error { return nil }
func (noopAuthStore) RecordSession(ctx context.Context, sess domain.Session) error { return nil }
func (noopAuthStore) GetSessionByTokenHash(ctx context.Context, tokenHash string) (domain.Session, error) {
	return domain.Session{}, domain.ErrSessionNotFound
}
func (noopAuthStore) GetSessionByID(ctx context.Context, tenantID, userID, sessionID string) (domain.Session, error) {
	return domain.Session{}, domain.ErrSessionNotFound
}
func (noopAuthStore) RevokeSession(ctx context.Context, tenantID, userID, sessionID string) error {
	return nil
}
func (noopAuthStore) UpdateMFA(ctx context.Context, tenantID, userID, secret string, backupCodes []string, enabled bool) error {
	return nil
}
func (noopAuthStore) ShardCount() int { return 1 }

func seedUser(fs *fakeStore, tenantID, userID string) domain.User {
	u := domain.User{ID: userID, TenantID: tenantID, Coins: 0, XP: 0, Level: 1, VIPTier: "bronze"}
	fs.users[userID] = u
	return u
}

func TestSubmitReceiptCreditsCoinsAndXP(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, "tenant1", "user1")
	notif := &fakeNotifier{}
	c := testCoordinator(t, fs, testTenant(), notif)

	claims := &authgate.Claims{UserID: "user1", TenantID: "tenant1"}
	resp, err := c.SubmitReceipt(context.Background(), claims, ReceiptRequest{
		TenantID: "tenant1", Amount: 100, Store: "Zara", Category: "fashion",
		Timestamp: time.Date(2026, 8, 4, 14, 0, 0, 0, time.UTC), IdempotencyKey: "idem-1",
	})
	if err != nil {
		t.Fatalf("SubmitReceipt: %v", err)
	}
	if resp.Status != domain.ReceiptVerified {
		t.Fatalf("expected verified receipt, got %v", resp.Status)
	}
	if resp.User.Coins <= 0 {
		t.Fatalf("expected coins credited, got %+v", resp.User)
	}
	if fs.users["user1"].Version != 1 {
		t.Fatalf("expected user version to advance to 1, got %d", fs.users["user1"].Version)
	}
}

func TestSubmitReceiptRejectsNonPositiveAmount(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, "tenant1", "user1")
	c := testCoordinator(t, fs, testTenant(), &fakeNotifier{})

	claims := &authgate.Claims{UserID: "user1", TenantID: "tenant1"}
	_, err := c.SubmitReceipt(context.Background(), claims, ReceiptRequest{
		TenantID: "tenant1", Amount: 0, Store: "Zara", IdempotencyKey: "idem-1",
	})
	if err == nil {
		t.Fatal("expected validation error for zero amount")
	}
}

func TestSubmitReceiptIsIdempotent(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, "tenant1", "user1")
	c := testCoordinator(t, fs, testTenant(), &fakeNotifier{})

	claims := &authgate.Claims{UserID: "user1", TenantID: "tenant1"}
	req := ReceiptRequest{
		TenantID: "tenant1", Amount: 50, Store: "Carrefour", Category: "grocery",
		Timestamp: time.Date(2026, 8, 4, 10, 0, 0, 0, time.UTC), IdempotencyKey: "idem-repeat",
	}

	first, err := c.SubmitReceipt(context.Background(), claims, req)
	if err != nil {
		t.Fatalf("first SubmitReceipt: %v", err)
	}
	second, err := c.SubmitReceipt(context.Background(), claims, req)
	if err != nil {
		t.Fatalf("second SubmitReceipt: %v", err)
	}
	if first.ReceiptID != second.ReceiptID {
		t.Fatalf("expected the replayed request to return the same receipt, got %q vs %q", first.ReceiptID, second.ReceiptID)
	}
	if fs.applyCalls != 1 {
		t.Fatalf("expected exactly one store write across both submissions, got %d", fs.applyCalls)
	}
}

func TestSubmitReceiptCreditsFirstReceiptAchievementReward(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, "tenant1", "user1")
	c := testCoordinator(t, fs, testTenant(), &fakeNotifier{})

	claims := &authgate.Claims{UserID: "user1", TenantID: "tenant1"}
	resp, err := c.SubmitReceipt(context.Background(), claims, ReceiptRequest{
		TenantID: "tenant1", Amount: 100, Store: "Zara", Category: "fashion",
		Timestamp: time.Date(2026, 8, 4, 14, 0, 0, 0, time.UTC), IdempotencyKey: "idem-first",
	})
	if err != nil {
		t.Fatalf("SubmitReceipt: %v", err)
	}
	// base reward is 10 coins/20 XP (100 * 0.10 / 100 * 0.20); the first-receipt
	// achievement (50 coins/20 XP) must be credited on top of it.
	if resp.User.Coins < 60 {
		t.Fatalf("expected first-receipt achievement coins credited on top of the base reward, got %+v", resp.User)
	}
	if fs.users["user1"].AchievementPts == 0 {
		t.Fatalf("expected achievement_pts to advance after unlocking an achievement, got %d", fs.users["user1"].AchievementPts)
	}
}

func TestSubmitReceiptFlagsSuspiciousAmountAsNoCredit(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, "tenant1", "user1")
	tenant := testTenant()
	c := testCoordinator(t, fs, tenant, &fakeNotifier{})

	claims := &authgate.Claims{UserID: "user1", TenantID: "tenant1"}
	resp, err := c.SubmitReceipt(context.Background(), claims, ReceiptRequest{
		TenantID: "tenant1", Amount: tenant.Policy.SuspiciousAmount + 1, Store: "Zara",
		Timestamp: time.Date(2026, 8, 4, 14, 0, 0, 0, time.UTC), IdempotencyKey: "idem-susp",
	})
	if err != nil {
		t.Fatalf("SubmitReceipt: %v", err)
	}
	if resp.Status != domain.ReceiptSuspicious {
		t.Fatalf("expected suspicious status, got %v", resp.Status)
	}
	if fs.users["user1"].Coins != 0 {
		t.Fatalf("suspicious receipts must not credit coins, got %d", fs.users["user1"].Coins)
	}
}

func TestSubmitReceiptRejectsAmountOverTenantMax(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, "tenant1", "user1")
	tenant := testTenant()
	c := testCoordinator(t, fs, tenant, &fakeNotifier{})

	claims := &authgate.Claims{UserID: "user1", TenantID: "tenant1"}
	_, err := c.SubmitReceipt(context.Background(), claims, ReceiptRequest{
		TenantID: "tenant1", Amount: tenant.Policy.MaxReceiptAmount + 1, Store: "Zara",
		IdempotencyKey: "idem-toolarge",
	})
	if err == nil {
		t.Fatal("expected an error for an amount exceeding the tenant's receipt cap")
	}
}

func TestSubmitReceiptRetriesOnVersionConflict(t *testing.T) {
	fs := newFakeStore()
	u := seedUser(fs, "tenant1", "user1")
	u.Version = 5 // store already ahead of what loadUser/cache would report via a stale cache entry
	fs.users["user1"] = u

	c := testCoordinator(t, fs, testTenant(), &fakeNotifier{})
	// Prime the cache with a stale (lower) version so the first commit attempt conflicts
	// and the coordinator must reload from the store and retry.
	c.cache.SetUser(context.Background(), domain.User{ID: "user1", TenantID: "tenant1", Version: 0})

	claims := &authgate.Claims{UserID: "user1", TenantID: "tenant1"}
	_, err := c.SubmitReceipt(context.Background(), claims, ReceiptRequest{
		TenantID: "tenant1", Amount: 20, Store: "Zara", IdempotencyKey: "idem-retry",
	})
	if err != nil {
		t.Fatalf("expected the coordinator to recover from a stale cache entry via retry, got %v", err)
	}
}

func TestClaimMissionCreditsReward(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, "tenant1", "user1")
	fs.missions["mission1"] = domain.Mission{
		ID: "mission1", UserID: "user1", TenantID: "tenant1", Status: domain.MissionReadyToClaim,
		Reward: domain.MissionReward{Coins: 75, XP: 30},
	}
	c := testCoordinator(t, fs, testTenant(), &fakeNotifier{})

	totals, err := c.ClaimMission(context.Background(), "tenant1", "user1", "mission1")
	if err != nil {
		t.Fatalf("ClaimMission: %v", err)
	}
	if totals.Coins != 75 || totals.XP != 30 {
		t.Fatalf("unexpected totals after claim: %+v", totals)
	}
	if fs.missions["mission1"].Status != domain.MissionCompleted {
		t.Fatalf("expected mission marked completed, got %v", fs.missions["mission1"].Status)
	}
}

func TestClaimMissionRejectsNotReady(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, "tenant1", "user1")
	fs.missions["mission1"] = domain.Mission{ID: "mission1", UserID: "user1", TenantID: "tenant1", Status: domain.MissionActive}
	c := testCoordinator(t, fs, testTenant(), &fakeNotifier{})

	_, err := c.ClaimMission(context.Background(), "tenant1", "user1", "mission1")
	if err != domain.ErrMissionNotClaimable {
		t.Fatalf("expected ErrMissionNotClaimable, got %v", err)
	}
}

func TestClaimMissionTwiceReturnsStoredOutcome(t *testing.T) {
	fs := newFakeStore()
	seedUser(fs, "tenant1", "user1")
	fs.missions["mission1"] = domain.Mission{
		ID: "mission1", UserID: "user1", TenantID: "tenant1", Status: domain.MissionReadyToClaim,
		Reward: domain.MissionReward{Coins: 75, XP: 30},
	}
	c := testCoordinator(t, fs, testTenant(), &fakeNotifier{})

	first, err := c.ClaimMission(context.Background(), "tenant1", "user1", "mission1")
	if err != nil {
		t.Fatalf("first ClaimMission: %v", err)
	}

	second, err := c.ClaimMission(context.Background(), "tenant1", "user1", "mission1")
	if err != nil {
		t.Fatalf("second ClaimMission: %v", err)
	}
	if *second != *first {
		t.Fatalf("expected a repeated claim to return the stored outcome, got %+v vs %+v", second, first)
	}
	if fs.applyCalls != 1 {
		t.Fatalf("expected exactly one store write across both claims, got %d", fs.applyCalls)
	}
}

func TestMissionEvaluatorGeneratesOnePerEmptySlot(t *testing.T) {
	fs := newFakeStore()
	evaluator := NewMissionEvaluator(fs, config.MissionConfig{})

	created, err := evaluator.Generate(context.Background(), "tenant1", "user1", domain.MissionDaily)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("expected 3 daily missions (one per daily slot), got %d", len(created))
	}
}

func TestMissionEvaluatorSkipsOccupiedSlots(t *testing.T) {
	fs := newFakeStore()
	fs.missions["existing"] = domain.Mission{ID: "existing", UserID: "user1", TenantID: "tenant1", Slot: "daily_1", Status: domain.MissionActive}
	evaluator := NewMissionEvaluator(fs, config.MissionConfig{})

	created, err := evaluator.Generate(context.Background(), "tenant1", "user1", domain.MissionDaily)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, m := range created {
		if m.Slot == "daily_1" {
			t.Fatalf("expected daily_1 to stay occupied by the existing mission, got a new mission created for it")
		}
	}
	if len(created) != 2 {
		t.Fatalf("expected the remaining 2 daily slots filled, got %d", len(created))
	}
}
