package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mallquest/mallquest/internal/domain"
)

// CompanionDue pairs a companion row with the tenant it belongs to, since
// the scan crosses tenants within a shard.
type CompanionDue struct {
	TenantID  string
	Companion domain.Companion
}

// ListFacilities returns every facility a user owns.
func (s *Store) ListFacilities(ctx context.Context, tenantID, userID string) ([]domain.Facility, error) {
	pool := s.poolFor(tenantID, userID)
	rows, err := pool.Query(ctx, `
		SELECT id, user_id, type, level, last_collected_at, pending_income, event_multiplier, event_until
		FROM facilities WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list facilities: %w", err)
	}
	defer rows.Close()

	var out []domain.Facility
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan facility: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetFacility looks up a single facility by type, since a user holds at most
// one instance of each facility type.
func (s *Store) GetFacility(ctx context.Context, tenantID, userID, facilityType string) (domain.Facility, error) {
	pool := s.poolFor(tenantID, userID)
	row := pool.QueryRow(ctx, `
		SELECT id, user_id, type, level, last_collected_at, pending_income, event_multiplier, event_until
		FROM facilities WHERE tenant_id = $1 AND user_id = $2 AND type = $3`, tenantID, userID, facilityType)
	f, err := scanFacility(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Facility{}, domain.ErrFacilityNotFound
	}
	if err != nil {
		return domain.Facility{}, fmt.Errorf("store: get facility: %w", err)
	}
	return f, nil
}

func scanFacility(row pgx.Row) (domain.Facility, error) {
	var f domain.Facility
	var eventUntil *time.Time
	err := row.Scan(&f.ID, &f.UserID, &f.Type, &f.Level, &f.LastCollectedAt, &f.PendingIncome, &f.EventMultiplier, &eventUntil)
	if err != nil {
		return domain.Facility{}, err
	}
	if eventUntil != nil {
		f.EventUntil = *eventUntil
	}
	return f, nil
}

// ListCompanions returns every companion a user owns.
func (s *Store) ListCompanions(ctx context.Context, tenantID, userID string) ([]domain.Companion, error) {
	pool := s.poolFor(tenantID, userID)
	rows, err := pool.Query(ctx, `
		SELECT id, user_id, type, name, health, happiness, energy, xp, level, abilities_unlocked, last_interaction_at, shelter_id
		FROM companions WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list companions: %w", err)
	}
	defer rows.Close()

	var out []domain.Companion
	for rows.Next() {
		c, err := scanCompanion(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan companion: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCompanion looks up a single companion by id.
func (s *Store) GetCompanion(ctx context.Context, tenantID, userID, companionID string) (domain.Companion, error) {
	pool := s.poolFor(tenantID, userID)
	row := pool.QueryRow(ctx, `
		SELECT id, user_id, type, name, health, happiness, energy, xp, level, abilities_unlocked, last_interaction_at, shelter_id
		FROM companions WHERE tenant_id = $1 AND user_id = $2 AND id = $3`, tenantID, userID, companionID)
	c, err := scanCompanion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Companion{}, domain.ErrCompanionNotFound
	}
	if err != nil {
		return domain.Companion{}, fmt.Errorf("store: get companion: %w", err)
	}
	return c, nil
}

func scanCompanion(row pgx.Row) (domain.Companion, error) {
	var c domain.Companion
	err := row.Scan(&c.ID, &c.UserID, &c.Type, &c.Name, &c.Stats.Health, &c.Stats.Happiness, &c.Stats.Energy, &c.Stats.XP, &c.Stats.Level, &c.AbilitiesUnlocked, &c.LastInteractionAt, &c.ShelterID)
	if err != nil {
		return domain.Companion{}, err
	}
	return c, nil
}

// ListCompanionsDueForDecay scans every shard for companions whose stats
// haven't been touched in over decayMinutes, capped per shard per tick.
func (s *Store) ListCompanionsDueForDecay(ctx context.Context, decayMinutes int, cap int) ([]CompanionDue, error) {
	var out []CompanionDue
	err := s.eachShard(ctx, func(ctx context.Context, pool *pgxpool.Pool, shardIdx int) error {
		rows, err := pool.Query(ctx, `
			SELECT tenant_id, id, user_id, type, name, health, happiness, energy, xp, level, abilities_unlocked, last_interaction_at, shelter_id
			FROM companions
			WHERE last_interaction_at < now() - ($1 || ' minutes')::interval
			LIMIT $2`, decayMinutes, cap)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var cd CompanionDue
			if err := rows.Scan(&cd.TenantID, &cd.Companion.ID, &cd.Companion.UserID, &cd.Companion.Type, &cd.Companion.Name,
				&cd.Companion.Stats.Health, &cd.Companion.Stats.Happiness, &cd.Companion.Stats.Energy,
				&cd.Companion.Stats.XP, &cd.Companion.Stats.Level, &cd.Companion.AbilitiesUnlocked, &cd.Companion.LastInteractionAt, &cd.Companion.ShelterID); err != nil {
				return err
			}
			out = append(out, cd)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("store: list companions due for decay: %w", err)
	}
	return out, nil
}

// ApplyCompanionDecay persists one decay tick's worth of stat loss.
func (s *Store) ApplyCompanionDecay(ctx context.Context, tenantID string, c domain.Companion) error {
	pool := s.poolFor(tenantID, c.UserID)
	_, err := pool.Exec(ctx, `
		UPDATE companions SET health = $1, happiness = $2, energy = $3, last_interaction_at = now()
		WHERE tenant_id = $4 AND id = $5`,
		c.Stats.Health, c.Stats.Happiness, c.Stats.Energy, tenantID, c.ID,
	)
	if err != nil {
		return fmt.Errorf("store: apply companion decay: %w", err)
	}
	return nil
}
