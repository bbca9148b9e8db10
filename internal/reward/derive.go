package reward

import (
	"time"

	"github.com/mallquest/mallquest/internal/domain"
)

// LevelTransition reports the level before/after an XP change, per
// level = 1 + floor(xp / xp_per_level).
func LevelTransition(xpBefore, xpAfter, xpPerLevel int64) (before, after int, leveledUp bool) {
	before = domain.LevelForXP(xpBefore, xpPerLevel)
	after = domain.LevelForXP(xpAfter, xpPerLevel)
	return before, after, after > before
}

// VIPTierTransition reports the VIP tier before/after a VIP-points change.
func VIPTierTransition(tiers []domain.VIPTier, pointsBefore, pointsAfter int64) (before, after domain.VIPTier, upgraded bool) {
	before = domain.VIPTierForPoints(tiers, pointsBefore)
	after = domain.VIPTierForPoints(tiers, pointsAfter)
	return before, after, after.MinPoints > before.MinPoints
}

// StreakTransition implements the day-rollover rule: advances by one if
// today is exactly one day after the last streak day, resets to 1 if more
// than a day has elapsed, and is unchanged if it's the same day.
func StreakTransition(current domain.Streak, today time.Time) (next domain.Streak, extended bool) {
	if current.LastDay.IsZero() {
		return domain.Streak{Count: 1, LastDay: today}, true
	}
	daysSince := daysBetween(current.LastDay, today)
	switch {
	case daysSince == 0:
		return current, false
	case daysSince == 1:
		return domain.Streak{Count: current.Count + 1, LastDay: today}, true
	default:
		return domain.Streak{Count: 1, LastDay: today}, true
	}
}

func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	au := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	bu := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(bu.Sub(au).Hours() / 24)
}
