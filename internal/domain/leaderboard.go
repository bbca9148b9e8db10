package domain

// LeaderboardKind enumerates the ranked views of spec.md §6.1.
type LeaderboardKind string

const (
	LeaderboardCoins        LeaderboardKind = "coins"
	LeaderboardXP           LeaderboardKind = "xp"
	LeaderboardStreak       LeaderboardKind = "streak"
	LeaderboardAchievements LeaderboardKind = "achievements"
	LeaderboardSpending     LeaderboardKind = "spending"
)

// ValidLeaderboardKind reports whether kind is one of the five ranked views.
func ValidLeaderboardKind(kind string) bool {
	switch LeaderboardKind(kind) {
	case LeaderboardCoins, LeaderboardXP, LeaderboardStreak, LeaderboardAchievements, LeaderboardSpending:
		return true
	default:
		return false
	}
}

// LeaderboardEntry is one ranked row, merged across shards and truncated to
// the requested top-K.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Score       int64  `json:"score"`
}
