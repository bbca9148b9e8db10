package domain

import "time"

// MissionType is the cadence of a mission.
type MissionType string

const (
	MissionDaily    MissionType = "daily"
	MissionWeekly   MissionType = "weekly"
	MissionSeasonal MissionType = "seasonal"
)

// MissionStatus is the mission lifecycle state.
type MissionStatus string

const (
	MissionActive        MissionStatus = "active"
	MissionReadyToClaim   MissionStatus = "ready_to_claim"
	MissionCompleted      MissionStatus = "completed"
	MissionExpired        MissionStatus = "expired"
)

// MissionReward is what a mission pays out on completion.
type MissionReward struct {
	Coins int64  `json:"coins"`
	XP    int64  `json:"xp"`
	Item  string `json:"item,omitempty"`
}

// MissionTemplate describes a mission type's parameters and predicate; cached
// with a long TTL per spec.md §4.2.
type MissionTemplate struct {
	ID         string        `json:"id"`
	Slot       string        `json:"slot"` // (user, template-slot) uniqueness key
	Type       MissionType   `json:"type"`
	Target     int64         `json:"target"`
	Category   string        `json:"category,omitempty"`
	Reward     MissionReward `json:"reward"`
	DurationH  int           `json:"duration_hours"`
}

// Mission is a time-boxed objective for a user.
type Mission struct {
	ID         string        `json:"mission_id"`
	UserID     string        `json:"user_id"`
	TenantID   string        `json:"tenant_id"`
	Type       MissionType   `json:"type"`
	TemplateID string        `json:"template_id"`
	Slot       string        `json:"-"`
	Target     int64         `json:"target"`
	Category   string        `json:"category,omitempty"`
	Progress   int64         `json:"progress"`
	Reward     MissionReward `json:"reward"`
	Status     MissionStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	ExpiresAt  time.Time     `json:"expires_at"`
}

// AdvanceProgress increments progress and flips status to ready-to-claim once
// the target is met. It never regresses progress or status (monotonicity).
func (m *Mission) AdvanceProgress(delta int64) {
	if m.Status != MissionActive {
		return
	}
	m.Progress += delta
	if m.Progress >= m.Target {
		m.Status = MissionReadyToClaim
	}
}
