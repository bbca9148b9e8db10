// Package store persists the entity model of the gamification backend across
// a fixed set of PostgreSQL shards, routed by hash(tenant_id, user_id).
package store

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mallquest/mallquest/internal/config"
)

// Store fronts a fixed set of shard pools. All user-keyed operations route
// deterministically to exactly one shard; cross-user scans gather-scatter
// across all shards with a per-shard cap.
type Store struct {
	shards []*pgxpool.Pool
	logger *slog.Logger
}

// New connects one pool per configured shard.
func New(ctx context.Context, cfg config.ShardConfig, logger *slog.Logger) (*Store, error) {
	if len(cfg.Shards) == 0 {
		return nil, fmt.Errorf("store: no shards configured")
	}

	pools := make([]*pgxpool.Pool, 0, len(cfg.Shards))
	for i, dsn := range cfg.Shards {
		poolCfg, err := pgxpool.ParseConfig(dsn.ConnectionString())
		if err != nil {
			return nil, fmt.Errorf("store: parsing shard %d dsn: %w", i, err)
		}
		poolCfg.MaxConns = int32(cfg.MaxConnections)
		poolCfg.MinConns = int32(cfg.MinConnections)
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("store: connecting shard %d: %w", i, err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = pool.Ping(pingCtx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("store: pinging shard %d: %w", i, err)
		}
		pools = append(pools, pool)
	}

	return &Store{shards: pools, logger: logger}, nil
}

// ShardCount returns the number of configured shards.
func (s *Store) ShardCount() int { return len(s.shards) }

// ShardOf deterministically routes (tenantID, userID) to one shard index.
func ShardOf(tenantID, userID string, n int) int {
	if n <= 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(tenantID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(userID))
	return int(h.Sum64() % uint64(n))
}

// poolFor returns the pool owning (tenantID, userID).
func (s *Store) poolFor(tenantID, userID string) *pgxpool.Pool {
	idx := ShardOf(tenantID, userID, len(s.shards))
	return s.shards[idx]
}

// eachShard runs fn against every shard pool, short-circuiting on the first
// error. Used by scans and migrations.
func (s *Store) eachShard(ctx context.Context, fn func(ctx context.Context, pool *pgxpool.Pool, shardIdx int) error) error {
	for i, pool := range s.shards {
		if err := fn(ctx, pool, i); err != nil {
			return fmt.Errorf("shard %d: %w", i, err)
		}
	}
	return nil
}

// Close closes every shard pool.
func (s *Store) Close() {
	for _, pool := range s.shards {
		pool.Close()
	}
}
