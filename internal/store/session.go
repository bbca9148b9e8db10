package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mallquest/mallquest/internal/domain"
)

// RecordSession appends a new session row.
func (s *Store) RecordSession(ctx context.Context, sess domain.Session) error {
	pool := s.poolFor(sess.TenantID, sess.UserID)
	_, err := pool.Exec(ctx, `
		INSERT INTO sessions (id, tenant_id, user_id, token_hash, issued_at, expires_at, ip, user_agent, revoked)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,false)`,
		sess.ID, sess.TenantID, sess.UserID, sess.TokenHash, sess.IssuedAt, sess.ExpiresAt, sess.IP, sess.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("store: record session: %w", err)
	}
	return nil
}

// GetSessionByTokenHash looks up a session by its token hash. Since the
// token hash isn't part of the shard key, every shard is probed; sessions
// table lookups are the one cross-shard point read the design accepts,
// bounded by the small shard count.
func (s *Store) GetSessionByTokenHash(ctx context.Context, tokenHash string) (domain.Session, error) {
	for _, pool := range s.shards {
		row := pool.QueryRow(ctx, `
			SELECT id, tenant_id, user_id, token_hash, issued_at, expires_at, ip, user_agent, revoked
			FROM sessions WHERE token_hash = $1`, tokenHash)
		var sess domain.Session
		err := row.Scan(&sess.ID, &sess.TenantID, &sess.UserID, &sess.TokenHash, &sess.IssuedAt, &sess.ExpiresAt, &sess.IP, &sess.UserAgent, &sess.Revoked)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.Session{}, fmt.Errorf("store: get session: %w", err)
		}
	}
	return domain.Session{}, domain.ErrSessionNotFound
}

// GetSessionByID looks up a session directly by its id, on the shard owning
// (tenantID, userID). Used by token verification, where the session id is
// already known from the token's claims.
func (s *Store) GetSessionByID(ctx context.Context, tenantID, userID, sessionID string) (domain.Session, error) {
	pool := s.poolFor(tenantID, userID)
	row := pool.QueryRow(ctx, `
		SELECT id, tenant_id, user_id, token_hash, issued_at, expires_at, ip, user_agent, revoked
		FROM sessions WHERE tenant_id = $1 AND user_id = $2 AND id = $3`, tenantID, userID, sessionID)
	var sess domain.Session
	err := row.Scan(&sess.ID, &sess.TenantID, &sess.UserID, &sess.TokenHash, &sess.IssuedAt, &sess.ExpiresAt, &sess.IP, &sess.UserAgent, &sess.Revoked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Session{}, domain.ErrSessionNotFound
		}
		return domain.Session{}, fmt.Errorf("store: get session by id: %w", err)
	}
	return sess, nil
}

// RevokeSession marks a session (and everything in its refresh chain, keyed
// by the same session id prefix) as revoked. Final: no un-revoke path.
func (s *Store) RevokeSession(ctx context.Context, tenantID, userID, sessionID string) error {
	pool := s.poolFor(tenantID, userID)
	tag, err := pool.Exec(ctx, `
		UPDATE sessions SET revoked = true
		WHERE tenant_id = $1 AND user_id = $2 AND id = $3`, tenantID, userID, sessionID)
	if err != nil {
		return fmt.Errorf("store: revoke session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// ListExpiredSessions scans every shard for sessions past TTL, capped per shard.
func (s *Store) ListExpiredSessions(ctx context.Context, cap int) ([]domain.Session, error) {
	var out []domain.Session
	err := s.eachShard(ctx, func(ctx context.Context, pool *pgxpool.Pool, shardIdx int) error {
		rows, err := pool.Query(ctx, `
			SELECT id, tenant_id, user_id, token_hash, issued_at, expires_at, ip, user_agent, revoked
			FROM sessions WHERE expires_at < now() AND NOT revoked LIMIT $1`, cap)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var sess domain.Session
			if err := rows.Scan(&sess.ID, &sess.TenantID, &sess.UserID, &sess.TokenHash, &sess.IssuedAt, &sess.ExpiresAt, &sess.IP, &sess.UserAgent, &sess.Revoked); err != nil {
				return err
			}
			out = append(out, sess)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("store: list expired sessions: %w", err)
	}
	return out, nil
}

// DeleteExpiredSessions removes sessions past TTL across every shard.
func (s *Store) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	var total int64
	err := s.eachShard(ctx, func(ctx context.Context, pool *pgxpool.Pool, shardIdx int) error {
		tag, err := pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < now()`)
		if err != nil {
			return err
		}
		total += tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: delete expired sessions: %w", err)
	}
	return total, nil
}
