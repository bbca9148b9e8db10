package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mallquest/mallquest/internal/config"
	"github.com/mallquest/mallquest/internal/domain"
	"github.com/mallquest/mallquest/internal/store"
)

type fakeStore struct {
	facilitiesDue   []store.FacilityDue
	creditedIncome  map[string]int64
	missionsDue     []store.MissionDue
	expiredMissions []string
	inactiveUsers   []domain.User
	resetStreaks    []string
	expiredNotifs   int64
	expiredSessions int64
	companionsDue   []store.CompanionDue
	decayedComps    []domain.Companion
}

func newFakeStore() *fakeStore {
	return &fakeStore{creditedIncome: map[string]int64{}}
}

func (f *fakeStore) ListFacilitiesDueForAccrual(ctx context.Context, accrualMinutes int, cap int) ([]store.FacilityDue, error) {
	return f.facilitiesDue, nil
}

func (f *fakeStore) CreditFacilityIncome(ctx context.Context, tenantID, userID, facilityID string, pendingDelta int64) error {
	f.creditedIncome[facilityID] = pendingDelta
	return nil
}

func (f *fakeStore) ListMissionsDueForExpiry(ctx context.Context, cap int) ([]store.MissionDue, error) {
	return f.missionsDue, nil
}

func (f *fakeStore) ExpireMission(ctx context.Context, tenantID, userID, missionID string) error {
	f.expiredMissions = append(f.expiredMissions, missionID)
	return nil
}

func (f *fakeStore) ListUsersInactiveYesterday(ctx context.Context, cutoff time.Time, cap int) ([]domain.User, error) {
	return f.inactiveUsers, nil
}

func (f *fakeStore) ResetStreak(ctx context.Context, tenantID, userID string) error {
	f.resetStreaks = append(f.resetStreaks, userID)
	return nil
}

func (f *fakeStore) ListExpiredNotifications(ctx context.Context, cap int) ([]string, error) {
	return nil, nil
}

func (f *fakeStore) DeleteExpiredNotifications(ctx context.Context) (int64, error) {
	return f.expiredNotifs, nil
}

func (f *fakeStore) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	return f.expiredSessions, nil
}

func (f *fakeStore) ListCompanionsDueForDecay(ctx context.Context, decayMinutes int, cap int) ([]store.CompanionDue, error) {
	return f.companionsDue, nil
}

func (f *fakeStore) ApplyCompanionDecay(ctx context.Context, tenantID string, c domain.Companion) error {
	f.decayedComps = append(f.decayedComps, c)
	return nil
}

func testScheduler(fs *fakeStore) *Scheduler {
	return New(fs, config.SchedulerConfig{Enabled: true, EmpireAccrual: time.Hour}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAccrueEmpireIncomeSkipsUnderAnHour(t *testing.T) {
	fs := newFakeStore()
	fs.facilitiesDue = []store.FacilityDue{
		{TenantID: "tenant1", Facility: domain.Facility{ID: "f1", LastCollectedAt: time.Now().Add(-30 * time.Minute)}},
	}
	s := testScheduler(fs)
	s.accrueEmpireIncome(context.Background())

	if len(fs.creditedIncome) != 0 {
		t.Fatalf("expected no credit for a facility under an hour stale, got %v", fs.creditedIncome)
	}
}

func TestAccrueEmpireIncomeCreditsDueFacility(t *testing.T) {
	fs := newFakeStore()
	fs.facilitiesDue = []store.FacilityDue{
		{TenantID: "tenant1", Facility: domain.Facility{ID: "f1", UserID: "user1", LastCollectedAt: time.Now().Add(-2 * time.Hour), PendingIncome: 40, EventMultiplier: 1.0}},
	}
	s := testScheduler(fs)
	s.accrueEmpireIncome(context.Background())

	if _, ok := fs.creditedIncome["f1"]; !ok {
		t.Fatal("expected facility f1 to be credited")
	}
}

func TestExpireMissionsExpiresEachDueMission(t *testing.T) {
	fs := newFakeStore()
	fs.missionsDue = []store.MissionDue{
		{TenantID: "tenant1", UserID: "user1", MissionID: "m1"},
		{TenantID: "tenant1", UserID: "user2", MissionID: "m2"},
	}
	s := testScheduler(fs)
	s.expireMissions(context.Background())

	if len(fs.expiredMissions) != 2 {
		t.Fatalf("expected 2 missions expired, got %d", len(fs.expiredMissions))
	}
}

func TestResetStreaksResetsEachInactiveUser(t *testing.T) {
	fs := newFakeStore()
	fs.inactiveUsers = []domain.User{{ID: "user1", TenantID: "tenant1"}, {ID: "user2", TenantID: "tenant1"}}
	s := testScheduler(fs)
	s.resetStreaks(context.Background())

	if len(fs.resetStreaks) != 2 {
		t.Fatalf("expected 2 streaks reset, got %d", len(fs.resetStreaks))
	}
}

func TestDecayCompanionsAppliesBoundedDecay(t *testing.T) {
	fs := newFakeStore()
	fs.companionsDue = []store.CompanionDue{
		{TenantID: "tenant1", Companion: domain.Companion{ID: "c1", Stats: domain.CompanionStats{Happiness: 2, Energy: 100, Health: 100}}},
	}
	s := testScheduler(fs)
	s.decayCompanions(context.Background())

	if len(fs.decayedComps) != 1 {
		t.Fatalf("expected 1 companion decayed, got %d", len(fs.decayedComps))
	}
	decayed := fs.decayedComps[0]
	if decayed.Stats.Happiness != 0 {
		t.Fatalf("expected happiness clamped at 0 after decay from 2, got %d", decayed.Stats.Happiness)
	}
	if decayed.Stats.Energy != 95 {
		t.Fatalf("expected energy 100-5=95, got %d", decayed.Stats.Energy)
	}
}

func TestAccrualMinutesOfDefaultsWhenUnset(t *testing.T) {
	if got := accrualMinutesOf(config.SchedulerConfig{}); got != 60 {
		t.Fatalf("accrualMinutesOf(zero value) = %d, want 60", got)
	}
}

func TestAccrualMinutesOfUsesConfiguredInterval(t *testing.T) {
	if got := accrualMinutesOf(config.SchedulerConfig{EmpireAccrual: 30 * time.Minute}); got != 30 {
		t.Fatalf("accrualMinutesOf(30m) = %d, want 30", got)
	}
}

func TestStartIsNoOpWhenDisabled(t *testing.T) {
	fs := newFakeStore()
	s := New(fs, config.SchedulerConfig{Enabled: false}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Start(context.Background())
	s.Stop() // must not block: no jobs were ever started
}

func TestStartAndStopRunsCleanly(t *testing.T) {
	fs := newFakeStore()
	cfg := config.SchedulerConfig{
		Enabled: true, EmpireAccrual: 10 * time.Millisecond, MissionExpiry: 10 * time.Millisecond,
		StreakReset: 10 * time.Millisecond, NotificationSweep: 10 * time.Millisecond,
		SessionCleanup: 10 * time.Millisecond, CompanionDecay: 10 * time.Millisecond,
	}
	s := New(fs, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Start(context.Background())
	time.Sleep(25 * time.Millisecond)
	s.Stop()
}
