package progression

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mallquest/mallquest/internal/config"
	"github.com/mallquest/mallquest/internal/domain"
)

// MissionStore is the Store surface mission generation and evaluation need.
type MissionStore interface {
	ListActiveMissions(ctx context.Context, tenantID, userID string) ([]domain.Mission, error)
	CreateMission(ctx context.Context, tenantID string, m domain.Mission) error
	GetMission(ctx context.Context, tenantID, userID, missionID string) (domain.Mission, error)
}

// templatePredicate decides whether a receipt advances a mission template,
// and by how much.
type templatePredicate func(r domain.ReceiptSubmission, u domain.User) int64

// MissionEvaluator evaluates active mission templates against a receipt and
// generates new personalized missions on request.
type MissionEvaluator struct {
	store     MissionStore
	cfg       config.MissionConfig
	templates []domain.MissionTemplate
}

// NewMissionEvaluator builds the evaluator with a static seasonal/daily/
// weekly template catalog, in the spirit of
// original_source/ai_mission_generator.py's template-driven generator.
func NewMissionEvaluator(store MissionStore, cfg config.MissionConfig) *MissionEvaluator {
	return &MissionEvaluator{store: store, cfg: cfg, templates: defaultTemplates()}
}

func defaultTemplates() []domain.MissionTemplate {
	return []domain.MissionTemplate{
		{ID: "daily_spend_3", Slot: "daily_1", Type: domain.MissionDaily, Target: 3, DurationH: 24, Reward: domain.MissionReward{Coins: 50, XP: 20}},
		{ID: "daily_category_fashion", Slot: "daily_2", Type: domain.MissionDaily, Target: 1, Category: "fashion", DurationH: 24, Reward: domain.MissionReward{Coins: 30, XP: 15}},
		{ID: "daily_amount_200", Slot: "daily_3", Type: domain.MissionDaily, Target: 200, DurationH: 24, Reward: domain.MissionReward{Coins: 40, XP: 20}},
		{ID: "weekly_spend_10", Slot: "weekly_1", Type: domain.MissionWeekly, Target: 10, DurationH: 24 * 7, Reward: domain.MissionReward{Coins: 200, XP: 80}},
		{ID: "weekly_categories_3", Slot: "weekly_2", Type: domain.MissionWeekly, Target: 3, DurationH: 24 * 7, Reward: domain.MissionReward{Coins: 150, XP: 60}},
	}
}

func predicateFor(t domain.MissionTemplate) templatePredicate {
	switch t.ID {
	case "daily_amount_200", "weekly_spend_10":
		return func(r domain.ReceiptSubmission, u domain.User) int64 { return int64(r.Amount) }
	case "daily_category_fashion":
		return func(r domain.ReceiptSubmission, u domain.User) int64 {
			if r.Category == t.Category {
				return 1
			}
			return 0
		}
	default:
		return func(r domain.ReceiptSubmission, u domain.User) int64 { return 1 }
	}
}

// Evaluate advances every active mission's progress against one receipt,
// returning store-level progress updates and any mission_ready notifications.
func (e *MissionEvaluator) Evaluate(ctx context.Context, tenantID string, u domain.User, r domain.ReceiptSubmission) ([]domain.MissionProgressUpdate, []domain.Notification, error) {
	active, err := e.store.ListActiveMissions(ctx, tenantID, u.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("progression: list active missions: %w", err)
	}

	var updates []domain.MissionProgressUpdate
	var notifs []domain.Notification

	templatesByID := map[string]domain.MissionTemplate{}
	for _, t := range e.templates {
		templatesByID[t.ID] = t
	}

	for _, m := range active {
		t, ok := templatesByID[m.TemplateID]
		if !ok {
			continue
		}
		delta := predicateFor(t)(r, u)
		if delta == 0 {
			continue
		}
		m.AdvanceProgress(delta)
		updates = append(updates, domain.MissionProgressUpdate{MissionID: m.ID, Progress: m.Progress, Status: m.Status})
		if m.Status == domain.MissionReadyToClaim {
			notifs = append(notifs, newNotification(u.ID, tenantID, domain.NotifyMissionReady, domain.PriorityNormal, map[string]any{"mission_id": m.ID}, time.Now()))
		}
	}

	return updates, notifs, nil
}

// Generate creates one personalized mission per empty slot for the user,
// favoring slots the user doesn't currently hold an active mission in.
func (e *MissionEvaluator) Generate(ctx context.Context, tenantID, userID string, missionType domain.MissionType) ([]domain.Mission, error) {
	active, err := e.store.ListActiveMissions(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("progression: list active missions: %w", err)
	}
	occupied := map[string]bool{}
	for _, m := range active {
		occupied[m.Slot] = true
	}

	var created []domain.Mission
	now := time.Now()
	for _, t := range e.templates {
		if t.Type != missionType || occupied[t.Slot] {
			continue
		}
		m := domain.Mission{
			ID: uuid.NewString(), UserID: userID, TenantID: tenantID, Type: t.Type, TemplateID: t.ID,
			Slot: t.Slot, Target: t.Target, Category: t.Category, Reward: t.Reward, Status: domain.MissionActive,
			CreatedAt: now, ExpiresAt: now.Add(time.Duration(t.DurationH) * time.Hour),
		}
		if err := e.store.CreateMission(ctx, tenantID, m); err != nil {
			return created, fmt.Errorf("progression: create mission: %w", err)
		}
		created = append(created, m)
	}
	return created, nil
}

// missionClaimIdemKey is the idempotency key a claim's outcome is stored
// and looked up under. A mission can only ever be completed once, so the
// mission id alone is the natural idempotency boundary: unlike a receipt
// submission (many receipts per user, disambiguated by a client-supplied
// key), retrying a claim of the same mission must return the same stored
// outcome regardless of whether the client repeats a header.
func missionClaimIdemKey(missionID string) string { return "mission_claim:" + missionID }

// Claim credits a ready-to-claim mission's reward under the same keyed-mutex
// and transactional machinery as a receipt commit, debiting nothing. A
// second claim of the same mission - whether it arrives before or after the
// first has committed - returns the outcome stored by the first, per the
// claim(mission) idempotence rule.
func (c *Coordinator) ClaimMission(ctx context.Context, tenantID, userID, missionID string) (*UserTotals, error) {
	if err := c.limiterCheck(ctx, tenantID, userID, "claim_mission"); err != nil {
		return nil, err
	}

	idemKey := missionClaimIdemKey(missionID)
	if rec, err := c.store.GetIdempotencyRecord(ctx, tenantID, userID, idemKey); err == nil && rec != nil {
		var totals UserTotals
		if json.Unmarshal(rec.ResponseBlob, &totals) == nil {
			return &totals, nil
		}
	}

	var totals UserTotals
	err := c.withUserLock(tenantID, userID, func() error {
		for attempt := 0; attempt < maxVersionRetries; attempt++ {
			mission, err := c.missionRepo.GetMission(ctx, tenantID, userID, missionID)
			if err != nil {
				return err
			}
			if mission.Status != domain.MissionReadyToClaim {
				// A claim that committed while this one waited on the lock
				// left its outcome under idemKey; return that outcome.
				if rec, err := c.store.GetIdempotencyRecord(ctx, tenantID, userID, idemKey); err == nil && rec != nil && json.Unmarshal(rec.ResponseBlob, &totals) == nil {
					return nil
				}
				return domain.ErrMissionNotClaimable
			}

			user, err := c.loadUser(ctx, tenantID, userID)
			if err != nil {
				return err
			}

			delta := domain.UserDelta{
				TenantID: tenantID, UserID: userID, IdempotencyKey: idemKey, ExpectedVersion: user.Version,
				CoinsDelta: mission.Reward.Coins, XPDelta: mission.Reward.XP,
				MissionUpdates: []domain.MissionProgressUpdate{{MissionID: missionID, Progress: mission.Progress, Status: domain.MissionCompleted}},
			}
			projected := totalsOf(user)
			projected.Coins += mission.Reward.Coins
			projected.XP += mission.Reward.XP
			responseBlob, _ := json.Marshal(projected)
			result, err := c.store.ApplyUserDelta(ctx, delta, responseBlob)
			if err != nil {
				if err == domain.ErrVersionConflict {
					continue
				}
				return err
			}
			c.cache.SetUser(ctx, result.User)
			totals = totalsOf(result.User)
			return nil
		}
		return domain.ErrVersionConflict
	})
	if err != nil {
		return nil, err
	}
	return &totals, nil
}
