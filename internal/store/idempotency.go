package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// IdempotencyRecord is the stored outcome of a prior commit, returned
// unchanged when the same (tenant, user, idem_key) is submitted again.
type IdempotencyRecord struct {
	RequestHash  string
	ResponseBlob json.RawMessage
}

// GetIdempotencyRecord looks up a previously committed outcome. Callers use
// this before invoking RewardEngine so that retries never recompute.
func (s *Store) GetIdempotencyRecord(ctx context.Context, tenantID, userID, idemKey string) (*IdempotencyRecord, error) {
	pool := s.poolFor(tenantID, userID)
	var rec IdempotencyRecord
	err := pool.QueryRow(ctx, `
		SELECT request_hash, response_blob FROM idempotency_records
		WHERE tenant_id = $1 AND user_id = $2 AND idem_key = $3`,
		tenantID, userID, idemKey,
	).Scan(&rec.RequestHash, &rec.ResponseBlob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get idempotency record: %w", err)
	}
	return &rec, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
