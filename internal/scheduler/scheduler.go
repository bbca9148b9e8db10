// Package scheduler runs the background maintenance jobs: empire income
// accrual, mission expiry, daily streak reset, notification sweep, session
// cleanup, and companion decay. Each job is a ticker-driven goroutine
// modeled on the teacher's SyncWorker (stopCh/doneCh/running-guard), grouped
// under one Scheduler for coordinated startup/shutdown.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mallquest/mallquest/internal/config"
	"github.com/mallquest/mallquest/internal/domain"
	"github.com/mallquest/mallquest/internal/store"
)

// Store is the persistence surface every job depends on.
type Store interface {
	ListFacilitiesDueForAccrual(ctx context.Context, accrualMinutes int, cap int) ([]store.FacilityDue, error)
	CreditFacilityIncome(ctx context.Context, tenantID, userID, facilityID string, pendingDelta int64) error

	ListMissionsDueForExpiry(ctx context.Context, cap int) ([]store.MissionDue, error)
	ExpireMission(ctx context.Context, tenantID, userID, missionID string) error

	ListUsersInactiveYesterday(ctx context.Context, cutoff time.Time, cap int) ([]domain.User, error)
	ResetStreak(ctx context.Context, tenantID, userID string) error

	ListExpiredNotifications(ctx context.Context, cap int) ([]string, error)
	DeleteExpiredNotifications(ctx context.Context) (int64, error)

	DeleteExpiredSessions(ctx context.Context) (int64, error)

	ListCompanionsDueForDecay(ctx context.Context, decayMinutes int, cap int) ([]store.CompanionDue, error)
	ApplyCompanionDecay(ctx context.Context, tenantID string, c domain.Companion) error
}

const batchCap = 500

// job is one ticker-driven maintenance task.
type job struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context)
	stopCh   chan struct{}
	doneCh   chan struct{}
	mu       sync.Mutex
	running  bool
}

func (j *job) start(ctx context.Context, logger *slog.Logger) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	logger.Info("scheduler job started", "job", j.name, "interval", j.interval)
	go j.loop(ctx, logger)
}

func (j *job) loop(ctx context.Context, logger *slog.Logger) {
	defer close(j.doneCh)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stopCh:
			return
		case <-ticker.C:
			j.run(ctx)
		}
	}
}

func (j *job) stop(logger *slog.Logger) {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.mu.Unlock()

	close(j.stopCh)
	<-j.doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
	logger.Info("scheduler job stopped", "job", j.name)
}

// Scheduler owns the full set of background maintenance jobs.
type Scheduler struct {
	store  Store
	cfg    config.SchedulerConfig
	logger *slog.Logger
	jobs   []*job
}

// New builds a Scheduler with one job per maintenance task, each interval
// sourced from config.SchedulerConfig.
func New(store Store, cfg config.SchedulerConfig, logger *slog.Logger) *Scheduler {
	s := &Scheduler{store: store, cfg: cfg, logger: logger}
	s.jobs = []*job{
		{name: "empire_accrual", interval: cfg.EmpireAccrual, run: s.accrueEmpireIncome},
		{name: "mission_expiry", interval: cfg.MissionExpiry, run: s.expireMissions},
		{name: "streak_reset", interval: cfg.StreakReset, run: s.resetStreaks},
		{name: "notification_sweep", interval: cfg.NotificationSweep, run: s.sweepNotifications},
		{name: "session_cleanup", interval: cfg.SessionCleanup, run: s.cleanupSessions},
		{name: "companion_decay", interval: cfg.CompanionDecay, run: s.decayCompanions},
	}
	return s
}

// Start launches every configured job. A no-op when cfg.Enabled is false.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info("scheduler disabled, no background jobs started")
		return
	}
	for _, j := range s.jobs {
		j.start(ctx, s.logger)
	}
}

// Stop halts every job and waits for their loops to exit.
func (s *Scheduler) Stop() {
	for _, j := range s.jobs {
		j.stop(s.logger)
	}
}

func (s *Scheduler) accrueEmpireIncome(ctx context.Context) {
	due, err := s.store.ListFacilitiesDueForAccrual(ctx, accrualMinutesOf(s.cfg), batchCap)
	if err != nil {
		s.logger.Error("empire accrual: list due facilities", "error", err)
		return
	}
	for _, fd := range due {
		hours := time.Since(fd.Facility.LastCollectedAt).Hours()
		if hours < 1 {
			continue
		}
		income := int64(float64(fd.Facility.PendingIncome) + hours*float64(fd.Facility.EventMultiplier))
		if err := s.store.CreditFacilityIncome(ctx, fd.TenantID, fd.Facility.UserID, fd.Facility.ID, income); err != nil {
			s.logger.Error("empire accrual: credit income", "facility_id", fd.Facility.ID, "error", err)
		}
	}
}

func (s *Scheduler) expireMissions(ctx context.Context) {
	due, err := s.store.ListMissionsDueForExpiry(ctx, batchCap)
	if err != nil {
		s.logger.Error("mission expiry: list due missions", "error", err)
		return
	}
	for _, md := range due {
		if err := s.store.ExpireMission(ctx, md.TenantID, md.UserID, md.MissionID); err != nil {
			s.logger.Error("mission expiry: expire", "mission_id", md.MissionID, "error", err)
		}
	}
}

func (s *Scheduler) resetStreaks(ctx context.Context) {
	cutoff := time.Now().Add(-36 * time.Hour)
	users, err := s.store.ListUsersInactiveYesterday(ctx, cutoff, batchCap)
	if err != nil {
		s.logger.Error("streak reset: list inactive users", "error", err)
		return
	}
	for _, u := range users {
		if err := s.store.ResetStreak(ctx, u.TenantID, u.ID); err != nil {
			s.logger.Error("streak reset: reset", "user_id", u.ID, "error", err)
		}
	}
}

func (s *Scheduler) sweepNotifications(ctx context.Context) {
	n, err := s.store.DeleteExpiredNotifications(ctx)
	if err != nil {
		s.logger.Error("notification sweep: delete expired", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("notification sweep: deleted", "count", n)
	}
}

func (s *Scheduler) cleanupSessions(ctx context.Context) {
	n, err := s.store.DeleteExpiredSessions(ctx)
	if err != nil {
		s.logger.Error("session cleanup: delete expired", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("session cleanup: deleted", "count", n)
	}
}

// decayMinutes is the lookback window used to find companions due for a
// decay tick; one tick is applied regardless of how many intervals elapsed,
// since ticks run at least this often while the scheduler is up.
const decayMinutes = 60

func (s *Scheduler) decayCompanions(ctx context.Context) {
	due, err := s.store.ListCompanionsDueForDecay(ctx, decayMinutes, batchCap)
	if err != nil {
		s.logger.Error("companion decay: list due", "error", err)
		return
	}
	for _, cd := range due {
		c := cd.Companion
		c.Stats.Happiness -= 5
		c.Stats.Energy -= 5
		c.Stats.Health -= 3
		c.Stats.Clamp()
		if err := s.store.ApplyCompanionDecay(ctx, cd.TenantID, c); err != nil {
			s.logger.Error("companion decay: apply", "companion_id", c.ID, "error", err)
		}
	}
}

func accrualMinutesOf(cfg config.SchedulerConfig) int {
	if cfg.EmpireAccrual <= 0 {
		return 60
	}
	return int(cfg.EmpireAccrual.Minutes())
}
