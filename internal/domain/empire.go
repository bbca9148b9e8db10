package domain

import "time"

// FacilityType describes the static properties of an empire asset type.
type FacilityType struct {
	Name          string  `json:"name"`
	MaxLevel      int     `json:"max_level"`
	UnlockLevel   int     `json:"unlock_level"`
	BaseCost      int64   `json:"base_cost"`
	CostPerLevel  int64   `json:"cost_per_level"`
	BaseIncomeHr  int64   `json:"base_income_per_hour"`
	IncomePerLvl  int64   `json:"income_per_level"`
	AccrualMins   int     `json:"accrual_interval_minutes"`
}

// IncomePerHour derives income-per-hour for a given facility level.
func (t FacilityType) IncomePerHour(level int) int64 {
	return t.BaseIncomeHr + t.IncomePerLvl*int64(level-1)
}

// UpgradeCost derives the coin cost to move from level-1 to level.
func (t FacilityType) UpgradeCost(level int) int64 {
	return t.BaseCost + t.CostPerLevel*int64(level-1)
}

// Facility is a revenue-generating asset owned by a user.
type Facility struct {
	ID              string    `json:"facility_id"`
	UserID          string    `json:"user_id"`
	Type            string    `json:"type"`
	Level           int       `json:"level"`
	LastCollectedAt time.Time `json:"last_collected_at"`
	PendingIncome   int64     `json:"pending_income"`
	EventMultiplier float64   `json:"event_multiplier"`
	EventUntil      time.Time `json:"event_until,omitempty"`
}
