package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mallquest/mallquest/internal/domain"
)

// ListActiveMissions returns every active mission for a user.
func (s *Store) ListActiveMissions(ctx context.Context, tenantID, userID string) ([]domain.Mission, error) {
	pool := s.poolFor(tenantID, userID)
	rows, err := pool.Query(ctx, `
		SELECT id, user_id, tenant_id, type, template_id, slot, target, category, progress, reward, status, created_at, expires_at
		FROM missions WHERE tenant_id = $1 AND user_id = $2 AND status = 'active'`, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list active missions: %w", err)
	}
	defer rows.Close()

	var out []domain.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan mission: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMission looks up one mission by id.
func (s *Store) GetMission(ctx context.Context, tenantID, userID, missionID string) (domain.Mission, error) {
	pool := s.poolFor(tenantID, userID)
	row := pool.QueryRow(ctx, `
		SELECT id, user_id, tenant_id, type, template_id, slot, target, category, progress, reward, status, created_at, expires_at
		FROM missions WHERE tenant_id = $1 AND id = $2`, tenantID, missionID)
	m, err := scanMission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Mission{}, domain.ErrMissionNotFound
	}
	if err != nil {
		return domain.Mission{}, fmt.Errorf("store: get mission: %w", err)
	}
	return m, nil
}

// CreateMission inserts a new mission row, enforcing one-active-per-slot.
func (s *Store) CreateMission(ctx context.Context, tenantID string, m domain.Mission) error {
	pool := s.poolFor(tenantID, m.UserID)
	rewardRaw, _ := json.Marshal(m.Reward)
	_, err := pool.Exec(ctx, `
		INSERT INTO missions (id, tenant_id, user_id, type, template_id, slot, target, category, progress, reward, status, created_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,$9,$10,$11,$12)`,
		m.ID, tenantID, m.UserID, m.Type, m.TemplateID, m.Slot, m.Target, m.Category, rewardRaw, m.Status, m.CreatedAt, m.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("store: create mission: %w", err)
	}
	return nil
}

func scanMission(row pgx.Row) (domain.Mission, error) {
	var m domain.Mission
	var rewardRaw []byte
	err := row.Scan(&m.ID, &m.UserID, &m.TenantID, &m.Type, &m.TemplateID, &m.Slot, &m.Target, &m.Category, &m.Progress, &rewardRaw, &m.Status, &m.CreatedAt, &m.ExpiresAt)
	if err != nil {
		return domain.Mission{}, err
	}
	_ = json.Unmarshal(rewardRaw, &m.Reward)
	return m, nil
}
