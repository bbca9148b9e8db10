package domain

import "time"

// Role is the user's role within a tenant.
type Role string

const (
	RolePlayer          Role = "player"
	RoleAdmin           Role = "admin"
	RoleShopkeeper      Role = "shopkeeper"
	RoleCustomerService Role = "customer_service"
	RoleSystem          Role = "system"
)

// Streak tracks consecutive days of qualifying activity.
type Streak struct {
	Count       int       `json:"count"`
	LastDay     time.Time `json:"last_day"` // truncated to tenant-local calendar day
}

// User is a player within a tenant.
type User struct {
	ID               string    `json:"id"`
	TenantID         string    `json:"tenant_id"`
	DisplayName      string    `json:"display_name"`
	Email            string    `json:"email"`
	Language         string    `json:"language"`
	PasswordHash     string    `json:"-"`
	Role             Role      `json:"role"`
	MFASecret        string    `json:"-"`
	MFAEnabled       bool      `json:"mfa_enabled"`
	BackupCodes      []string  `json:"-"`
	Coins            int64     `json:"coins"`
	XP               int64     `json:"xp"`
	Level            int       `json:"level"`
	VIPTier          string    `json:"vip_tier"`
	VIPPoints        int64     `json:"vip_points"`
	AchievementPts   int64     `json:"achievement_points"`
	SocialScore      int64     `json:"social_score"`
	Streak           Streak    `json:"streak"`
	VisitedCategories map[string]bool `json:"visited_categories"`
	Friends          []string  `json:"friends"`
	TeamID           string    `json:"team_id,omitempty"`
	Version          int64     `json:"version"`
	CreatedAt        time.Time `json:"created_at"`
	LastActiveAt     time.Time `json:"last_active_at"`
}

// HasVisitedCategory reports whether this is not the user's first purchase in
// category (used by the reward engine's first-in-category bonus/achievement).
func (u *User) HasVisitedCategory(category string) bool {
	if u.VisitedCategories == nil {
		return false
	}
	return u.VisitedCategories[category]
}

// LevelForXP computes level = 1 + floor(xp / xpPerLevel) per spec.md §4.5.
func LevelForXP(xp, xpPerLevel int64) int {
	if xpPerLevel <= 0 {
		return 1
	}
	return 1 + int(xp/xpPerLevel)
}

// VIPTierForPoints returns the highest tier whose MinPoints <= points.
func VIPTierForPoints(tiers []VIPTier, points int64) VIPTier {
	best := VIPTier{Name: "bronze", CoinMultiplier: 1.0}
	for _, t := range tiers {
		if points >= t.MinPoints && t.MinPoints >= best.MinPoints {
			best = t
		}
	}
	return best
}
