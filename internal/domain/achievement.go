package domain

import "time"

// AchievementType names a persistent, non-repeatable unlock.
type AchievementType string

const (
	AchievementFirstReceipt     AchievementType = "first_receipt"
	AchievementFirstInCategory  AchievementType = "first_in_category"
	AchievementLevelMilestone   AchievementType = "level_milestone"
	AchievementStreakMilestone  AchievementType = "streak_milestone"
	AchievementCoinCollector    AchievementType = "coin_collector"
)

// Achievement is a persistent, non-repeatable unlock recorded on the user.
type Achievement struct {
	ID       string          `json:"achievement_id"`
	UserID   string          `json:"user_id"`
	Type     AchievementType `json:"type"`
	Name     string          `json:"name"`
	EarnedAt time.Time       `json:"earned_at"`
	Reward   MissionReward   `json:"reward"`
}
