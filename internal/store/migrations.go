package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements are applied idempotently to every shard.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		email TEXT NOT NULL,
		language TEXT NOT NULL DEFAULT 'en',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'player',
		mfa_secret TEXT NOT NULL DEFAULT '',
		mfa_enabled BOOLEAN NOT NULL DEFAULT false,
		backup_codes TEXT[] NOT NULL DEFAULT '{}',
		coins BIGINT NOT NULL DEFAULT 0,
		xp BIGINT NOT NULL DEFAULT 0,
		level INT NOT NULL DEFAULT 1,
		vip_tier TEXT NOT NULL DEFAULT 'bronze',
		vip_points BIGINT NOT NULL DEFAULT 0,
		achievement_pts BIGINT NOT NULL DEFAULT 0,
		social_score BIGINT NOT NULL DEFAULT 0,
		streak_count INT NOT NULL DEFAULT 0,
		streak_last_day DATE,
		visited_categories JSONB NOT NULL DEFAULT '{}',
		friends TEXT[] NOT NULL DEFAULT '{}',
		team_id TEXT NOT NULL DEFAULT '',
		version BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_active_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (tenant_id, id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_tenant_email ON users (tenant_id, email)`,

	`CREATE TABLE IF NOT EXISTS receipts (
		id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		store TEXT NOT NULL,
		category TEXT NOT NULL,
		amount NUMERIC(12,2) NOT NULL,
		currency TEXT NOT NULL DEFAULT 'AED',
		submitted_at TIMESTAMPTZ NOT NULL,
		idempotency_key TEXT NOT NULL,
		source TEXT NOT NULL,
		state TEXT NOT NULL,
		reward JSONB NOT NULL DEFAULT '{}',
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (tenant_id, id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_receipts_idem ON receipts (tenant_id, user_id, idempotency_key)`,
	`CREATE INDEX IF NOT EXISTS idx_receipts_user_created ON receipts (tenant_id, user_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS idempotency_records (
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		idem_key TEXT NOT NULL,
		request_hash TEXT NOT NULL,
		response_blob JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (tenant_id, user_id, idem_key)
	)`,

	`CREATE TABLE IF NOT EXISTS missions (
		id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		template_id TEXT NOT NULL,
		slot TEXT NOT NULL,
		target BIGINT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		progress BIGINT NOT NULL DEFAULT 0,
		reward JSONB NOT NULL DEFAULT '{}',
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		expires_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (tenant_id, id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_missions_active_slot ON missions (tenant_id, user_id, slot) WHERE status = 'active'`,
	`CREATE INDEX IF NOT EXISTS idx_missions_user ON missions (tenant_id, user_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_missions_expiry ON missions (status, expires_at)`,

	`CREATE TABLE IF NOT EXISTS achievements (
		id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		name TEXT NOT NULL,
		earned_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		reward JSONB NOT NULL DEFAULT '{}',
		PRIMARY KEY (tenant_id, id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_achievements_unique ON achievements (tenant_id, user_id, type)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		token_hash TEXT NOT NULL,
		issued_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		revoked BOOLEAN NOT NULL DEFAULT false,
		PRIMARY KEY (tenant_id, id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_token_hash ON sessions (token_hash)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON sessions (expires_at) WHERE NOT revoked`,

	`CREATE TABLE IF NOT EXISTS rate_limit_buckets (
		subject TEXT NOT NULL,
		action TEXT NOT NULL,
		window_start TIMESTAMPTZ NOT NULL,
		count BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (subject, action, window_start)
	)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		priority TEXT NOT NULL,
		payload JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		expires_at TIMESTAMPTZ NOT NULL,
		read BOOLEAN NOT NULL DEFAULT false,
		dismissed BOOLEAN NOT NULL DEFAULT false,
		PRIMARY KEY (tenant_id, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications (tenant_id, user_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_expiry ON notifications (expires_at)`,

	`CREATE TABLE IF NOT EXISTS facilities (
		id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		level INT NOT NULL DEFAULT 1,
		last_collected_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		pending_income BIGINT NOT NULL DEFAULT 0,
		event_multiplier DOUBLE PRECISION NOT NULL DEFAULT 1.0,
		event_until TIMESTAMPTZ,
		PRIMARY KEY (tenant_id, id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_facilities_user_type ON facilities (tenant_id, user_id, type)`,
	`CREATE INDEX IF NOT EXISTS idx_facilities_accrual ON facilities (last_collected_at)`,

	`CREATE TABLE IF NOT EXISTS companions (
		id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		health INT NOT NULL DEFAULT 100,
		happiness INT NOT NULL DEFAULT 100,
		energy INT NOT NULL DEFAULT 100,
		xp INT NOT NULL DEFAULT 0,
		level INT NOT NULL DEFAULT 1,
		abilities_unlocked TEXT[] NOT NULL DEFAULT '{}',
		last_interaction_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		shelter_id TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (tenant_id, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_companions_user ON companions (tenant_id, user_id)`,
}

// RunMigrations applies the schema to every shard, statement by statement.
func (s *Store) RunMigrations(ctx context.Context) error {
	return s.eachShard(ctx, func(ctx context.Context, pool *pgxpool.Pool, shardIdx int) error {
		for _, stmt := range schemaStatements {
			if _, err := pool.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}
