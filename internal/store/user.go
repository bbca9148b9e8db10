package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mallquest/mallquest/internal/domain"
)

// LoadUser returns the full user snapshot or domain.ErrUserNotFound.
func (s *Store) LoadUser(ctx context.Context, tenantID, userID string) (domain.User, error) {
	pool := s.poolFor(tenantID, userID)

	row := pool.QueryRow(ctx, `
		SELECT id, tenant_id, display_name, email, language, password_hash, role,
		       mfa_secret, mfa_enabled, backup_codes, coins, xp, level, vip_tier,
		       vip_points, achievement_pts, social_score, streak_count, streak_last_day,
		       visited_categories, friends, team_id, version, created_at, last_active_at
		FROM users WHERE tenant_id = $1 AND id = $2`, tenantID, userID)

	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("store: load user: %w", err)
	}
	return u, nil
}

// LoadUserByEmail is used by login to resolve credentials to a user row.
func (s *Store) LoadUserByEmail(ctx context.Context, tenantID, email string, shardCount int) (domain.User, error) {
	// Email isn't part of the shard key, so scan every shard. Tenants are
	// small enough in practice that this remains within the per-shard cap.
	for i := 0; i < shardCount; i++ {
		row := s.shards[i].QueryRow(ctx, `
			SELECT id, tenant_id, display_name, email, language, password_hash, role,
			       mfa_secret, mfa_enabled, backup_codes, coins, xp, level, vip_tier,
			       vip_points, achievement_pts, social_score, streak_count, streak_last_day,
			       visited_categories, friends, team_id, version, created_at, last_active_at
			FROM users WHERE tenant_id = $1 AND email = $2`, tenantID, email)
		u, err := scanUser(row)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, fmt.Errorf("store: load user by email: %w", err)
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	var visitedRaw []byte
	var streakLastDay *time.Time

	err := row.Scan(
		&u.ID, &u.TenantID, &u.DisplayName, &u.Email, &u.Language, &u.PasswordHash, &u.Role,
		&u.MFASecret, &u.MFAEnabled, &u.BackupCodes, &u.Coins, &u.XP, &u.Level, &u.VIPTier,
		&u.VIPPoints, &u.AchievementPts, &u.SocialScore, &u.Streak.Count, &streakLastDay,
		&visitedRaw, &u.Friends, &u.TeamID, &u.Version, &u.CreatedAt, &u.LastActiveAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	if streakLastDay != nil {
		u.Streak.LastDay = *streakLastDay
	}
	u.VisitedCategories = map[string]bool{}
	if len(visitedRaw) > 0 {
		_ = json.Unmarshal(visitedRaw, &u.VisitedCategories)
	}
	return u, nil
}

// UpdateMFA persists a user's TOTP secret, backup codes and enrollment
// state, used by the MFA setup/verify flow.
func (s *Store) UpdateMFA(ctx context.Context, tenantID, userID, secret string, backupCodes []string, enabled bool) error {
	pool := s.poolFor(tenantID, userID)
	_, err := pool.Exec(ctx, `
		UPDATE users SET mfa_secret = $1, backup_codes = $2, mfa_enabled = $3
		WHERE tenant_id = $4 AND id = $5`, secret, backupCodes, enabled, tenantID, userID)
	if err != nil {
		return fmt.Errorf("store: update mfa: %w", err)
	}
	return nil
}

// CreateUser inserts a new user row with defaults. Used by registration.
func (s *Store) CreateUser(ctx context.Context, u domain.User) error {
	pool := s.poolFor(u.TenantID, u.ID)
	visitedRaw, _ := json.Marshal(u.VisitedCategories)

	_, err := pool.Exec(ctx, `
		INSERT INTO users (
			id, tenant_id, display_name, email, language, password_hash, role,
			mfa_secret, mfa_enabled, backup_codes, coins, xp, level, vip_tier,
			vip_points, achievement_pts, social_score, streak_count, streak_last_day,
			visited_categories, friends, team_id, version, created_at, last_active_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)`,
		u.ID, u.TenantID, u.DisplayName, u.Email, u.Language, u.PasswordHash, u.Role,
		u.MFASecret, u.MFAEnabled, u.BackupCodes, u.Coins, u.XP, u.Level, u.VIPTier,
		u.VIPPoints, u.AchievementPts, u.SocialScore, u.Streak.Count, nullableTime(u.Streak.LastDay),
		visitedRaw, u.Friends, u.TeamID, u.Version, u.CreatedAt, u.LastActiveAt,
	)
	if err != nil {
		return fmt.Errorf("store: create user: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
