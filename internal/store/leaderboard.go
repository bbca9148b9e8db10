package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mallquest/mallquest/internal/domain"
)

var leaderboardColumn = map[domain.LeaderboardKind]string{
	domain.LeaderboardCoins:        "coins",
	domain.LeaderboardXP:           "xp",
	domain.LeaderboardStreak:       "streak_count",
	domain.LeaderboardAchievements: "achievement_pts",
}

// ListTopUsers gathers the top-limit users for kind from every shard and
// merges the per-shard top-K into a single ranked list, since no single
// shard holds the tenant's full ranking.
func (s *Store) ListTopUsers(ctx context.Context, tenantID string, kind domain.LeaderboardKind, limit int) ([]domain.LeaderboardEntry, error) {
	if kind == domain.LeaderboardSpending {
		return s.listTopSpenders(ctx, tenantID, limit)
	}

	col, ok := leaderboardColumn[kind]
	if !ok {
		return nil, fmt.Errorf("store: unknown leaderboard kind %q", kind)
	}

	var merged []domain.LeaderboardEntry
	err := s.eachShard(ctx, func(ctx context.Context, pool *pgxpool.Pool, shardIdx int) error {
		rows, err := pool.Query(ctx, fmt.Sprintf(`
			SELECT id, display_name, %s FROM users
			WHERE tenant_id = $1 ORDER BY %s DESC LIMIT $2`, col, col), tenantID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var e domain.LeaderboardEntry
			if err := rows.Scan(&e.UserID, &e.DisplayName, &e.Score); err != nil {
				return err
			}
			merged = append(merged, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("store: list top users: %w", err)
	}
	return rankAndTruncate(merged, limit), nil
}

func (s *Store) listTopSpenders(ctx context.Context, tenantID string, limit int) ([]domain.LeaderboardEntry, error) {
	var merged []domain.LeaderboardEntry
	err := s.eachShard(ctx, func(ctx context.Context, pool *pgxpool.Pool, shardIdx int) error {
		rows, err := pool.Query(ctx, `
			SELECT u.id, u.display_name, COALESCE(SUM(r.amount), 0)::bigint AS total
			FROM users u JOIN receipts r ON r.tenant_id = u.tenant_id AND r.user_id = u.id
			WHERE u.tenant_id = $1
			GROUP BY u.id, u.display_name
			ORDER BY total DESC LIMIT $2`, tenantID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var e domain.LeaderboardEntry
			if err := rows.Scan(&e.UserID, &e.DisplayName, &e.Score); err != nil {
				return err
			}
			merged = append(merged, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("store: list top spenders: %w", err)
	}
	return rankAndTruncate(merged, limit), nil
}

func rankAndTruncate(entries []domain.LeaderboardEntry, limit int) []domain.LeaderboardEntry {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
