package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mallquest/mallquest/internal/domain"
)

// ApplyUserDelta applies a composite mutation to a user within a single
// shard-local transaction, keyed by idempotency. responseBlob is the
// caller's already-serialized response body, stored verbatim so a retry with
// the same idem_key returns it unchanged.
//
// Returns domain.ErrVersionConflict if delta.ExpectedVersion no longer
// matches the stored row (the caller reloads and retries up to 3 times, per
// the optimistic-concurrency policy owned by the coordinator).
func (s *Store) ApplyUserDelta(ctx context.Context, delta domain.UserDelta, responseBlob json.RawMessage) (domain.CommitResult, error) {
	pool := s.poolFor(delta.TenantID, delta.UserID)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return domain.CommitResult{}, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if delta.IdempotencyKey != "" {
		_, err = tx.Exec(ctx, `
			INSERT INTO idempotency_records (tenant_id, user_id, idem_key, request_hash, response_blob)
			VALUES ($1,$2,$3,$4,$5)`,
			delta.TenantID, delta.UserID, delta.IdempotencyKey, requestHash(delta), responseBlob,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.CommitResult{}, domain.ErrIdempotencyConflict
			}
			return domain.CommitResult{}, fmt.Errorf("store: insert idempotency record: %w", err)
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE users SET
			coins = coins + $1,
			xp = xp + $2,
			vip_points = vip_points + $3,
			achievement_pts = achievement_pts + $4,
			social_score = social_score + $5,
			level = COALESCE($6, level),
			vip_tier = COALESCE($7, vip_tier),
			streak_count = COALESCE($8, streak_count),
			streak_last_day = COALESCE($9, streak_last_day),
			visited_categories = CASE WHEN $10 <> '' THEN visited_categories || jsonb_build_object($10, true) ELSE visited_categories END,
			version = version + 1,
			last_active_at = now()
		WHERE tenant_id = $11 AND id = $12 AND version = $13`,
		delta.CoinsDelta, delta.XPDelta, delta.VIPPointsDelta, delta.AchievementPtsDelta, delta.SocialScoreDelta,
		delta.NewLevel, delta.NewVIPTier,
		streakCountPtr(delta.NewStreak), streakDayPtr(delta.NewStreak),
		delta.VisitCategory,
		delta.TenantID, delta.UserID, delta.ExpectedVersion,
	)
	if err != nil {
		return domain.CommitResult{}, fmt.Errorf("store: update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.CommitResult{}, domain.ErrVersionConflict
	}

	if delta.Receipt != nil {
		if err := insertReceipt(ctx, tx, *delta.Receipt); err != nil {
			return domain.CommitResult{}, err
		}
	}

	for _, mu := range delta.MissionUpdates {
		if err := applyMissionUpdate(ctx, tx, delta.TenantID, mu); err != nil {
			return domain.CommitResult{}, err
		}
	}

	for _, a := range delta.NewAchievements {
		if err := insertAchievement(ctx, tx, delta.TenantID, a); err != nil {
			return domain.CommitResult{}, err
		}
	}

	for _, n := range delta.NewNotifications {
		if err := insertNotification(ctx, tx, delta.TenantID, n); err != nil {
			return domain.CommitResult{}, err
		}
	}

	if delta.FacilityUpsert != nil {
		if err := upsertFacility(ctx, tx, delta.TenantID, *delta.FacilityUpsert); err != nil {
			return domain.CommitResult{}, err
		}
	}

	if delta.CompanionUpsert != nil {
		if err := upsertCompanion(ctx, tx, delta.TenantID, *delta.CompanionUpsert); err != nil {
			return domain.CommitResult{}, err
		}
	}

	row := tx.QueryRow(ctx, `
		SELECT id, tenant_id, display_name, email, language, password_hash, role,
		       mfa_secret, mfa_enabled, backup_codes, coins, xp, level, vip_tier,
		       vip_points, achievement_pts, social_score, streak_count, streak_last_day,
		       visited_categories, friends, team_id, version, created_at, last_active_at
		FROM users WHERE tenant_id = $1 AND id = $2`, delta.TenantID, delta.UserID)
	user, err := scanUser(row)
	if err != nil {
		return domain.CommitResult{}, fmt.Errorf("store: reselect user: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.CommitResult{}, fmt.Errorf("store: commit tx: %w", err)
	}

	return domain.CommitResult{User: user}, nil
}

func requestHash(delta domain.UserDelta) string {
	// Cheap content fingerprint, not a security boundary: detects a client
	// replaying the same idem_key with a materially different payload.
	b, _ := json.Marshal(struct {
		Coins, XP, VIP int64
		Receipt        *domain.Receipt
	}{delta.CoinsDelta, delta.XPDelta, delta.VIPPointsDelta, delta.Receipt})
	return fmt.Sprintf("%x", b)
}

func streakCountPtr(s *domain.Streak) *int {
	if s == nil {
		return nil
	}
	return &s.Count
}

func streakDayPtr(s *domain.Streak) *time.Time {
	if s == nil {
		return nil
	}
	return &s.LastDay
}

func insertReceipt(ctx context.Context, tx pgx.Tx, r domain.Receipt) error {
	rewardRaw, _ := json.Marshal(r.Reward)
	metaRaw, _ := json.Marshal(r.Metadata)
	_, err := tx.Exec(ctx, `
		INSERT INTO receipts (
			id, tenant_id, user_id, store, category, amount, currency,
			submitted_at, idempotency_key, source, state, reward, metadata
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (tenant_id, user_id, idempotency_key) DO NOTHING`,
		r.ID, r.TenantID, r.UserID, r.Store, r.Category, r.Amount, r.Currency,
		r.SubmittedAt, r.IdempotencyKey, r.Source, r.State, rewardRaw, metaRaw,
	)
	if err != nil {
		return fmt.Errorf("store: insert receipt: %w", err)
	}
	return nil
}

func applyMissionUpdate(ctx context.Context, tx pgx.Tx, tenantID string, mu domain.MissionProgressUpdate) error {
	_, err := tx.Exec(ctx, `
		UPDATE missions SET progress = $1, status = $2
		WHERE tenant_id = $3 AND id = $4`,
		mu.Progress, mu.Status, tenantID, mu.MissionID,
	)
	if err != nil {
		return fmt.Errorf("store: apply mission update: %w", err)
	}
	return nil
}

func insertAchievement(ctx context.Context, tx pgx.Tx, tenantID string, a domain.Achievement) error {
	rewardRaw, _ := json.Marshal(a.Reward)
	_, err := tx.Exec(ctx, `
		INSERT INTO achievements (id, tenant_id, user_id, type, name, earned_at, reward)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (tenant_id, user_id, type) DO NOTHING`,
		a.ID, tenantID, a.UserID, a.Type, a.Name, a.EarnedAt, rewardRaw,
	)
	if err != nil {
		return fmt.Errorf("store: insert achievement: %w", err)
	}
	return nil
}

func insertNotification(ctx context.Context, tx pgx.Tx, tenantID string, n domain.Notification) error {
	payloadRaw, _ := json.Marshal(n.Payload)
	_, err := tx.Exec(ctx, `
		INSERT INTO notifications (id, tenant_id, user_id, kind, priority, payload, created_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		n.ID, tenantID, n.UserID, n.Kind, n.Priority, payloadRaw, n.CreatedAt, n.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert notification: %w", err)
	}
	return nil
}

func upsertFacility(ctx context.Context, tx pgx.Tx, tenantID string, f domain.Facility) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO facilities (id, tenant_id, user_id, type, level, last_collected_at, pending_income, event_multiplier, event_until)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (tenant_id, user_id, type) DO UPDATE SET
			level = EXCLUDED.level,
			last_collected_at = EXCLUDED.last_collected_at,
			pending_income = EXCLUDED.pending_income,
			event_multiplier = EXCLUDED.event_multiplier,
			event_until = EXCLUDED.event_until`,
		f.ID, tenantID, f.UserID, f.Type, f.Level, f.LastCollectedAt, f.PendingIncome, f.EventMultiplier, nullableTime(f.EventUntil),
	)
	if err != nil {
		return fmt.Errorf("store: upsert facility: %w", err)
	}
	return nil
}

func upsertCompanion(ctx context.Context, tx pgx.Tx, tenantID string, c domain.Companion) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO companions (id, tenant_id, user_id, type, name, health, happiness, energy, xp, level, abilities_unlocked, last_interaction_at, shelter_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			health = EXCLUDED.health,
			happiness = EXCLUDED.happiness,
			energy = EXCLUDED.energy,
			xp = EXCLUDED.xp,
			level = EXCLUDED.level,
			abilities_unlocked = EXCLUDED.abilities_unlocked,
			last_interaction_at = EXCLUDED.last_interaction_at,
			shelter_id = EXCLUDED.shelter_id`,
		c.ID, tenantID, c.UserID, c.Type, c.Name, c.Stats.Health, c.Stats.Happiness, c.Stats.Energy, c.Stats.XP, c.Stats.Level, c.AbilitiesUnlocked, c.LastInteractionAt, c.ShelterID,
	)
	if err != nil {
		return fmt.Errorf("store: upsert companion: %w", err)
	}
	return nil
}
