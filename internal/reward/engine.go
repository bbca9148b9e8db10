// Package reward computes the deterministic reward for a receipt against a
// user snapshot and tenant policy. It performs no I/O and has no side
// effects: the same inputs always yield the same outputs.
package reward

import (
	"fmt"
	"math"
	"time"

	"github.com/mallquest/mallquest/internal/domain"
)

// Input bundles everything the engine needs to compute a reward.
type Input struct {
	User     domain.User
	Receipt  domain.ReceiptSubmission
	Policy   domain.Policy
	Events   []domain.Event
	Now      time.Time
	// FirstInCategory reports whether this is the user's first receipt in
	// receipt.Category; the coordinator derives it from user.VisitedCategories
	// before calling Compute, since that's a read the engine must not perform.
	FirstInCategory bool
	SameStoreCount  int // count of prior receipts at the same store within policy.SameStoreWindowMins

	// HasStoreAllowList and StoreAllowed let the coordinator pre-resolve the
	// tenant's store allow-list (owned by domain.Tenant, not domain.Policy)
	// without the engine performing its own lookup.
	HasStoreAllowList bool
	StoreAllowed      bool

	// HasWifiAllowList and WifiAllowed do the same for the tenant's Wi-Fi
	// SSID allow-list: the coordinator resolves the receipt's declared SSID
	// against tenant.WifiSSIDs and passes only the verdict through.
	HasWifiAllowList bool
	WifiAllowed      bool
}

// Output is the computed reward plus the ordered derived events.
type Output struct {
	Coins       int64
	XP          int64
	BonusCoins  int64
	Multipliers domain.RewardMultipliers
	EventIDs    []string
	Suspicious  bool
	Events      []domain.DerivedEvent
}

// ErrInvalidPolicy is returned when any multiplier resolves non-positive.
var ErrInvalidPolicy = fmt.Errorf("reward: %w", domain.ErrInvalidPolicy)

// Compute runs the reward formula and fraud heuristics of the spec's reward
// model. It never mutates in.User or in.Receipt.
func Compute(in Input) (Output, error) {
	amount := roundTwoDecimals(in.Receipt.Amount)

	categoryM := lookupMultiplier(in.Policy.CategoryMultiplier, in.Receipt.Category, 1.0)
	timeM := lookupMultiplier(in.Policy.TimeMultiplier, timeBucket(in.Now), 1.0)
	vipM := vipCoinMultiplier(in.Policy.VIPThresholds, in.User.VIPTier)
	eventM, eventIDs := composeEventMultiplier(in.Events, in.Receipt, in.Now, in.Policy.EventMultiplierCap)
	streakM := 1.0 + math.Min(float64(in.User.Streak.Count), 60)*0.01

	for _, m := range []float64{categoryM, timeM, vipM, eventM, streakM} {
		if m <= 0 {
			return Output{}, ErrInvalidPolicy
		}
	}

	baseCoins := amount * in.Policy.BaseRate
	baseXP := amount * in.Policy.XPRate

	coins := roundHalfEven(baseCoins * categoryM * timeM * vipM * eventM * streakM)
	xp := roundHalfEven(baseXP * categoryM * vipM * eventM)
	bonus := bonusCoins(amount, in.FirstInCategory)

	suspicious := isSuspicious(in, amount)

	out := Output{
		Coins:      int64(coins),
		XP:         int64(xp),
		BonusCoins: bonus,
		Multipliers: domain.RewardMultipliers{
			Category: categoryM,
			Time:     timeM,
			VIP:      vipM,
			Event:    eventM,
			Streak:   streakM,
		},
		EventIDs:   eventIDs,
		Suspicious: suspicious,
	}
	out.Events = append(out.Events, domain.DerivedEvent{Type: domain.EventReceiptVerified})
	return out, nil
}

func lookupMultiplier(table map[string]float64, key string, def float64) float64 {
	if table == nil {
		return def
	}
	if v, ok := table[key]; ok {
		return v
	}
	return def
}

// timeBucket classifies `now` into one of the named buckets the policy's
// time_multiplier table indexes by. Weekend takes priority over the
// time-of-day bucket per the spec's enumeration.
func timeBucket(now time.Time) string {
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return "weekend"
	}
	hour := now.Hour()
	switch {
	case hour >= 5 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 17:
		return "afternoon"
	case hour >= 17 && hour < 21:
		return "evening"
	default:
		return "night"
	}
}

func vipCoinMultiplier(tiers []domain.VIPTier, tierName string) float64 {
	for _, t := range tiers {
		if t.Name == tierName {
			return t.CoinMultiplier
		}
	}
	return 1.0
}

// composeEventMultiplier multiplies every eligible event's multiplier,
// clamped to cap, and returns the ids that contributed.
func composeEventMultiplier(events []domain.Event, r domain.ReceiptSubmission, now time.Time, cap float64) (float64, []string) {
	m := 1.0
	var ids []string
	receipt := domain.Receipt{Category: r.Category}
	for _, e := range events {
		if e.Eligible(receipt, now) {
			m *= e.Multiplier
			ids = append(ids, e.ID)
		}
	}
	if cap > 0 && m > cap {
		m = cap
	}
	return m, ids
}

// bonusCoins implements the policy bonus table: a flat first-in-category
// bonus plus a percentage bump for larger receipts.
func bonusCoins(amount float64, firstInCategory bool) int64 {
	var bonus float64
	if firstInCategory {
		bonus += 10
	}
	switch {
	case amount >= 1000:
		bonus += amount * 0.01
	case amount >= 500:
		bonus += amount * 0.005
	}
	return int64(roundHalfEven(bonus))
}

func isSuspicious(in Input, amount float64) bool {
	if amount > in.Policy.SuspiciousAmount {
		return true
	}
	if in.Policy.SameStoreMaxCount > 0 && in.SameStoreCount >= in.Policy.SameStoreMaxCount {
		return true
	}
	if in.HasStoreAllowList && !in.StoreAllowed {
		return true
	}
	if in.Policy.EnforceWifiPresence && in.Receipt.WifiSSID != "" && in.HasWifiAllowList && !in.WifiAllowed {
		// Wi-Fi SSID mismatch is a fraud signal only, never a hard reject
		// (open question resolved in favor of leniency: roaming visitors on
		// guest networks still get credited, just flagged for review).
		return true
	}
	return false
}

func roundTwoDecimals(v float64) float64 {
	return math.Round(v*100) / 100
}

// roundHalfEven implements banker's rounding, applied once at the very end
// of the multiplier chain per the spec's tie-break rule.
func roundHalfEven(v float64) float64 {
	return math.RoundToEven(v)
}
