package progression

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mallquest/mallquest/internal/domain"
	"github.com/mallquest/mallquest/internal/reward"
)

// applyReceiptCommit executes steps 7-11 of the canonical receipt flow:
// suspicious handling, the atomic Store write, cache refresh, notification
// fan-out, and response assembly.
func (c *Coordinator) applyReceiptCommit(ctx context.Context, tenant domain.Tenant, user domain.User, req ReceiptRequest, store, category string, now time.Time, out reward.Output, firstInCategory bool) (*ReceiptResponse, error) {
	receiptID := uuid.NewString()

	state := domain.ReceiptVerified
	coinsDelta, xpDelta := out.Coins, out.XP
	if out.Suspicious {
		state = domain.ReceiptSuspicious
		coinsDelta, xpDelta = 0, 0
	}

	snapshot := domain.RewardSnapshot{
		Coins:      out.Coins,
		XP:         out.XP,
		BonusCoins: out.BonusCoins,
		Multipliers: out.Multipliers,
	}
	if len(out.EventIDs) > 0 {
		snapshot.EventID = out.EventIDs[0]
	}

	receipt := domain.Receipt{
		ID: receiptID, TenantID: tenant.ID, UserID: user.ID, Store: store, Category: category,
		Amount: req.Amount, Currency: "AED", SubmittedAt: now, IdempotencyKey: req.IdempotencyKey,
		Source: req.Source, State: state, Reward: snapshot,
	}

	xpAfter := user.XP + xpDelta
	coinsAfter := user.Coins + coinsDelta + out.BonusCoins*boolToInt64(!out.Suspicious)
	levelBefore, levelAfter, leveledUp := reward.LevelTransition(user.XP, xpAfter, tenant.Policy.XPPerLevel)

	vipPointsDelta := coinsDelta // VIP points accrue 1:1 with credited coins
	vipPointsAfter := user.VIPPoints + vipPointsDelta
	tierBefore, tierAfter, tierUp := reward.VIPTierTransition(tenant.Policy.VIPThresholds, user.VIPPoints, vipPointsAfter)

	newStreak, streakExtended := reward.StreakTransition(user.Streak, now)

	userAfterForAchievements := user
	userAfterForAchievements.XP = xpAfter
	userAfterForAchievements.Coins = coinsAfter
	userAfterForAchievements.Level = levelAfter
	userAfterForAchievements.Streak = newStreak

	already := map[domain.AchievementType]bool{}
	isFirstReceipt := user.Coins == 0 && user.XP == 0
	var newAchievements []domain.Achievement
	if !out.Suspicious {
		newAchievements = reward.AchievementsForCommit(user, userAfterForAchievements, isFirstReceipt, firstInCategory, already)
	}
	for i := range newAchievements {
		newAchievements[i].ID = uuid.NewString()
		newAchievements[i].UserID = user.ID
		newAchievements[i].EarnedAt = now
	}

	var achievementPtsDelta int64
	for _, a := range newAchievements {
		coinsAfter += a.Reward.Coins
		xpAfter += a.Reward.XP
		achievementPtsDelta += a.Reward.Coins + a.Reward.XP
	}

	missionUpdates, missionNotifs, err := c.missions.Evaluate(ctx, tenant.ID, userAfterForAchievements, domain.ReceiptSubmission{
		TenantID: tenant.ID, UserID: user.ID, Amount: req.Amount, Store: store, Category: category, Timestamp: now,
	})
	if err != nil {
		c.logger.Warn("progression: mission evaluation failed", "error", err)
	}

	var vipBonus int64
	if tierUp {
		vipBonus = tierAfter.UpgradeBonus
		coinsAfter += vipBonus
	}

	var notifications []domain.Notification
	notifications = append(notifications, missionNotifs...)
	if leveledUp {
		notifications = append(notifications, newNotification(user.ID, tenant.ID, domain.NotifyLevelUp, domain.PriorityNormal, map[string]any{"level_before": levelBefore, "level_after": levelAfter}, now))
	}
	if tierUp {
		notifications = append(notifications, newNotification(user.ID, tenant.ID, domain.NotifyVIPTierUp, domain.PriorityNormal, map[string]any{"tier_before": tierBefore.Name, "tier_after": tierAfter.Name}, now))
	}
	if !out.Suspicious {
		notifications = append(notifications, newNotification(user.ID, tenant.ID, domain.NotifyCoinCollected, domain.PriorityLow, map[string]any{"coins": coinsDelta}, now))
	}

	events := append([]domain.DerivedEvent{}, out.Events...)
	if streakExtended {
		events = append(events, domain.DerivedEvent{Type: domain.EventStreakExtended, Data: map[string]any{"streak": newStreak.Count}})
	}
	if leveledUp {
		events = append(events, domain.DerivedEvent{Type: domain.EventLevelUp, Data: map[string]any{"before": levelBefore, "after": levelAfter}})
	}
	if tierUp {
		events = append(events, domain.DerivedEvent{Type: domain.EventVIPTierUp, Data: map[string]any{"before": tierBefore.Name, "after": tierAfter.Name}})
	}
	for _, a := range newAchievements {
		events = append(events, domain.DerivedEvent{Type: domain.EventAchievementUnlock, Data: map[string]any{"name": a.Name}})
	}

	resp := &ReceiptResponse{
		ReceiptID: receiptID,
		Status:    state,
		Reward:    snapshot,
		Events:    events,
	}

	var level *int
	if leveledUp {
		level = &levelAfter
	}
	var vipTier *string
	if tierUp {
		vipTier = &tierAfter.Name
	}

	delta := domain.UserDelta{
		TenantID: tenant.ID, UserID: user.ID, IdempotencyKey: req.IdempotencyKey, ExpectedVersion: user.Version,
		CoinsDelta: coinsAfter - user.Coins, XPDelta: xpAfter - user.XP, VIPPointsDelta: vipPointsDelta,
		AchievementPtsDelta: achievementPtsDelta,
		NewStreak: &newStreak, NewLevel: level, NewVIPTier: vipTier, VisitCategory: category,
		Receipt: &receipt, MissionUpdates: missionUpdates, NewAchievements: newAchievements,
		NewNotifications: notifications,
	}

	resp.User = totalsOf(domain.User{Coins: coinsAfter, XP: xpAfter, Level: levelAfter, VIPTier: tierAfterName(tierUp, tierAfter, user.VIPTier), Streak: newStreak})

	responseBlob, _ := json.Marshal(resp)
	result, err := c.store.ApplyUserDelta(ctx, delta, responseBlob)
	if err != nil {
		if err == domain.ErrVersionConflict {
			c.cache.InvalidateUser(ctx, tenant.ID, user.ID)
		}
		return nil, err
	}

	c.cache.SetUser(ctx, result.User)

	for _, n := range notifications {
		c.notifier.Push(tenant.ID, user.ID, n)
	}

	return resp, nil
}

func tierAfterName(tierUp bool, tierAfter domain.VIPTier, fallback string) string {
	if tierUp {
		return tierAfter.Name
	}
	return fallback
}

func newNotification(userID, tenantID string, kind domain.NotificationKind, priority domain.NotificationPriority, payload map[string]any, now time.Time) domain.Notification {
	return domain.Notification{
		ID: uuid.NewString(), UserID: userID, TenantID: tenantID, Kind: kind, Priority: priority,
		Payload: payload, CreatedAt: now, ExpiresAt: now.Add(domain.DefaultNotificationTTL),
	}
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
