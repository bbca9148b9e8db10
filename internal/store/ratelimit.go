package store

import (
	"fmt"
	"time"

	"context"
)

// RateLimitIncr atomically increments and returns the bucket count for
// (subject, action) in the window starting at windowStart. windowStart must
// already be floored to the window size by the caller.
func (s *Store) RateLimitIncr(ctx context.Context, tenantID, subject, action string, windowStart time.Time, delta int64) (int64, error) {
	pool := s.poolFor(tenantID, subject)
	var count int64
	err := pool.QueryRow(ctx, `
		INSERT INTO rate_limit_buckets (subject, action, window_start, count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject, action, window_start) DO UPDATE SET count = rate_limit_buckets.count + EXCLUDED.count
		RETURNING count`,
		subject, action, windowStart, delta,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("store: rate limit incr: %w", err)
	}
	return count, nil
}
