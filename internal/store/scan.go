package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mallquest/mallquest/internal/domain"
)

// FacilityDue pairs a facility row with the tenant it belongs to, since the
// scan crosses tenants within a shard.
type FacilityDue struct {
	TenantID string
	Facility domain.Facility
}

// ListFacilitiesDueForAccrual scans every shard for facilities whose accrual
// interval has elapsed, capped per shard per tick.
func (s *Store) ListFacilitiesDueForAccrual(ctx context.Context, accrualMinutes int, cap int) ([]FacilityDue, error) {
	var out []FacilityDue
	err := s.eachShard(ctx, func(ctx context.Context, pool *pgxpool.Pool, shardIdx int) error {
		rows, err := pool.Query(ctx, `
			SELECT tenant_id, id, user_id, type, level, last_collected_at, pending_income, event_multiplier, event_until
			FROM facilities
			WHERE last_collected_at < now() - ($1 || ' minutes')::interval
			LIMIT $2`, accrualMinutes, cap)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var fd FacilityDue
			var eventUntil *time.Time
			if err := rows.Scan(&fd.TenantID, &fd.Facility.ID, &fd.Facility.UserID, &fd.Facility.Type,
				&fd.Facility.Level, &fd.Facility.LastCollectedAt, &fd.Facility.PendingIncome,
				&fd.Facility.EventMultiplier, &eventUntil); err != nil {
				return err
			}
			if eventUntil != nil {
				fd.Facility.EventUntil = *eventUntil
			}
			out = append(out, fd)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("store: list facilities due: %w", err)
	}
	return out, nil
}

// CreditFacilityIncome adds pendingDelta to a facility's pending income and
// advances last_collected_at, used by the empire-accrual job.
func (s *Store) CreditFacilityIncome(ctx context.Context, tenantID, userID, facilityID string, pendingDelta int64) error {
	pool := s.poolFor(tenantID, userID)
	_, err := pool.Exec(ctx, `
		UPDATE facilities SET pending_income = pending_income + $1, last_collected_at = now()
		WHERE tenant_id = $2 AND id = $3`, pendingDelta, tenantID, facilityID)
	if err != nil {
		return fmt.Errorf("store: credit facility income: %w", err)
	}
	return nil
}

// MissionDue pairs a mission id with its owning (tenant, user).
type MissionDue struct {
	TenantID  string
	UserID    string
	MissionID string
}

// ListMissionsDueForExpiry scans for active missions past expires_at.
func (s *Store) ListMissionsDueForExpiry(ctx context.Context, cap int) ([]MissionDue, error) {
	var out []MissionDue
	err := s.eachShard(ctx, func(ctx context.Context, pool *pgxpool.Pool, shardIdx int) error {
		rows, err := pool.Query(ctx, `
			SELECT tenant_id, user_id, id FROM missions
			WHERE status = 'active' AND expires_at < now() LIMIT $1`, cap)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var md MissionDue
			if err := rows.Scan(&md.TenantID, &md.UserID, &md.MissionID); err != nil {
				return err
			}
			out = append(out, md)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("store: list missions due for expiry: %w", err)
	}
	return out, nil
}

// ExpireMission transitions one mission row to expired.
func (s *Store) ExpireMission(ctx context.Context, tenantID, userID, missionID string) error {
	pool := s.poolFor(tenantID, userID)
	_, err := pool.Exec(ctx, `
		UPDATE missions SET status = 'expired' WHERE tenant_id = $1 AND id = $2 AND status = 'active'`,
		tenantID, missionID)
	if err != nil {
		return fmt.Errorf("store: expire mission: %w", err)
	}
	return nil
}

// ListExpiredNotifications scans for notifications past expires_at.
func (s *Store) ListExpiredNotifications(ctx context.Context, cap int) ([]string, error) {
	type key struct{ tenant, id string }
	var ids []string
	err := s.eachShard(ctx, func(ctx context.Context, pool *pgxpool.Pool, shardIdx int) error {
		rows, err := pool.Query(ctx, `SELECT tenant_id, id FROM notifications WHERE expires_at < now() LIMIT $1`, cap)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var k key
			if err := rows.Scan(&k.tenant, &k.id); err != nil {
				return err
			}
			ids = append(ids, k.tenant+":"+k.id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("store: list expired notifications: %w", err)
	}
	return ids, nil
}

// DeleteExpiredNotifications sweeps notifications past expires_at.
func (s *Store) DeleteExpiredNotifications(ctx context.Context) (int64, error) {
	var total int64
	err := s.eachShard(ctx, func(ctx context.Context, pool *pgxpool.Pool, shardIdx int) error {
		tag, err := pool.Exec(ctx, `DELETE FROM notifications WHERE expires_at < now()`)
		if err != nil {
			return err
		}
		total += tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: delete expired notifications: %w", err)
	}
	return total, nil
}

// ListUsersInactiveYesterday returns (tenant, user) pairs whose last_active_at
// predates the given cutoff, for the daily streak-reset job.
func (s *Store) ListUsersInactiveYesterday(ctx context.Context, cutoff time.Time, cap int) ([]domain.User, error) {
	var out []domain.User
	err := s.eachShard(ctx, func(ctx context.Context, pool *pgxpool.Pool, shardIdx int) error {
		rows, err := pool.Query(ctx, `
			SELECT id, tenant_id, display_name, email, language, password_hash, role,
			       mfa_secret, mfa_enabled, backup_codes, coins, xp, level, vip_tier,
			       vip_points, achievement_pts, social_score, streak_count, streak_last_day,
			       visited_categories, friends, team_id, version, created_at, last_active_at
			FROM users WHERE streak_count > 0 AND last_active_at < $1 LIMIT $2`, cutoff, cap)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return err
			}
			out = append(out, u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("store: list inactive users: %w", err)
	}
	return out, nil
}

// ResetStreak zeroes a user's streak counter, used by the daily reset job.
func (s *Store) ResetStreak(ctx context.Context, tenantID, userID string) error {
	pool := s.poolFor(tenantID, userID)
	_, err := pool.Exec(ctx, `UPDATE users SET streak_count = 0, version = version + 1 WHERE tenant_id = $1 AND id = $2`, tenantID, userID)
	if err != nil {
		return fmt.Errorf("store: reset streak: %w", err)
	}
	return nil
}
