package reward

import (
	"fmt"

	"github.com/mallquest/mallquest/internal/domain"
)

var levelMilestones = []int{5, 10, 25, 50, 100}
var streakMilestones = []int64{7, 30, 60, 100}
var coinMilestones = []int64{1000, 10000, 100000, 1000000}

// AchievementsForCommit returns every achievement newly unlocked by this
// commit, given the user's state before and after. already is the set of
// achievement types the user has already earned (insertion is idempotent).
func AchievementsForCommit(before, after domain.User, isFirstReceipt, isFirstInCategory bool, already map[domain.AchievementType]bool) []domain.Achievement {
	var out []domain.Achievement
	add := func(t domain.AchievementType, name string, reward domain.MissionReward) {
		if already[t] {
			return
		}
		out = append(out, domain.Achievement{Type: t, Name: name, Reward: reward})
		already[t] = true
	}

	if isFirstReceipt {
		add(domain.AchievementFirstReceipt, "First Receipt", domain.MissionReward{Coins: 50, XP: 20})
	}
	if isFirstInCategory {
		add(domain.AchievementFirstInCategory, "Category Explorer", domain.MissionReward{Coins: 25, XP: 10})
	}
	for _, m := range levelMilestones {
		if after.Level >= m && before.Level < m {
			add(domain.AchievementLevelMilestone, fmt.Sprintf("Level %d Reached", m), domain.MissionReward{Coins: int64(m) * 10})
		}
	}
	for _, m := range streakMilestones {
		if int64(after.Streak.Count) >= m && int64(before.Streak.Count) < m {
			add(domain.AchievementStreakMilestone, fmt.Sprintf("%d-Day Streak", m), domain.MissionReward{Coins: m * 5})
		}
	}
	for _, m := range coinMilestones {
		if after.Coins >= m && before.Coins < m {
			add(domain.AchievementCoinCollector, fmt.Sprintf("%d Coins Collected", m), domain.MissionReward{XP: m / 100})
		}
	}

	return out
}
