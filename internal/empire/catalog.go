// Package empire implements the facility-empire subsystem: purchase,
// upgrade, income accrual, and limited-time special events, grounded on
// original_source/empire_management_system.py's EmpireManagementSystem.
package empire

import "github.com/mallquest/mallquest/internal/domain"

// UnlockRequirement gates a facility type behind a minimum level and coin
// balance, mirroring the Python catalog's unlock_requirements.
type UnlockRequirement struct {
	Level int
	Coins int64
}

// catalogEntry pairs a FacilityType with its unlock gate and the special
// events it supports.
type catalogEntry struct {
	domain.FacilityType
	Unlock        UnlockRequirement
	SpecialEvents []string
}

// facilityCatalog is the static set of facility types a user can purchase.
// Costs and income are carried over from the source catalog; CostPerLevel is
// derived from base_cost and upgrade_cost_multiplier so the linear
// domain.FacilityType.UpgradeCost formula tracks the original's growth at
// low levels without reintroducing a compounding-cost field.
var facilityCatalog = map[string]catalogEntry{
	"food_court": {
		FacilityType: domain.FacilityType{
			Name: "Food Court", MaxLevel: 10, UnlockLevel: 5,
			BaseCost: 1000, CostPerLevel: 500, BaseIncomeHr: 50, IncomePerLvl: 15,
		},
		Unlock:        UnlockRequirement{Level: 5, Coins: 500},
		SpecialEvents: []string{"food_festival", "chef_competition", "taste_testing"},
	},
	"entertainment_center": {
		FacilityType: domain.FacilityType{
			Name: "Entertainment Center", MaxLevel: 8, UnlockLevel: 8,
			BaseCost: 2000, CostPerLevel: 1600, BaseIncomeHr: 80, IncomePerLvl: 24,
		},
		Unlock:        UnlockRequirement{Level: 8, Coins: 1000},
		SpecialEvents: []string{"gaming_tournament", "arcade_night", "vr_experience"},
	},
	"luxury_boutique": {
		FacilityType: domain.FacilityType{
			Name: "Luxury Boutique", MaxLevel: 6, UnlockLevel: 12,
			BaseCost: 3000, CostPerLevel: 3000, BaseIncomeHr: 120, IncomePerLvl: 36,
		},
		Unlock:        UnlockRequirement{Level: 12, Coins: 2000},
		SpecialEvents: []string{"fashion_show", "designer_meet", "exclusive_sale"},
	},
	"tech_store": {
		FacilityType: domain.FacilityType{
			Name: "Tech Store", MaxLevel: 7, UnlockLevel: 10,
			BaseCost: 2500, CostPerLevel: 1750, BaseIncomeHr: 100, IncomePerLvl: 30,
		},
		Unlock:        UnlockRequirement{Level: 10, Coins: 1500},
		SpecialEvents: []string{"tech_launch", "product_demo", "gadget_fair"},
	},
	"spa_wellness": {
		FacilityType: domain.FacilityType{
			Name: "Spa & Wellness", MaxLevel: 5, UnlockLevel: 15,
			BaseCost: 3500, CostPerLevel: 3500, BaseIncomeHr: 90, IncomePerLvl: 27,
		},
		Unlock:        UnlockRequirement{Level: 15, Coins: 3000},
		SpecialEvents: []string{"wellness_retreat", "massage_day", "meditation_session"},
	},
	"cinema": {
		FacilityType: domain.FacilityType{
			Name: "Cinema Complex", MaxLevel: 4, UnlockLevel: 18,
			BaseCost: 5000, CostPerLevel: 7500, BaseIncomeHr: 200, IncomePerLvl: 60,
		},
		Unlock:        UnlockRequirement{Level: 18, Coins: 4000},
		SpecialEvents: []string{"movie_premiere", "film_festival", "classic_movie_night"},
	},
}

// specialEvent is a limited-time income boost a user can trigger at a
// facility, mirroring the Python catalog's special_events table.
type specialEvent struct {
	Name             string
	DurationHours    int
	IncomeMultiplier float64
	Cost             int64
}

var specialEventCatalog = map[string]specialEvent{
	"food_festival":        {Name: "Food Festival", DurationHours: 24, IncomeMultiplier: 2.0, Cost: 500},
	"chef_competition":     {Name: "Chef Competition", DurationHours: 12, IncomeMultiplier: 1.8, Cost: 400},
	"taste_testing":        {Name: "Taste Testing", DurationHours: 6, IncomeMultiplier: 1.4, Cost: 200},
	"gaming_tournament":    {Name: "Gaming Tournament", DurationHours: 12, IncomeMultiplier: 2.2, Cost: 600},
	"arcade_night":         {Name: "Arcade Night", DurationHours: 6, IncomeMultiplier: 1.6, Cost: 300},
	"vr_experience":        {Name: "VR Experience", DurationHours: 8, IncomeMultiplier: 1.9, Cost: 450},
	"fashion_show":         {Name: "Fashion Show", DurationHours: 6, IncomeMultiplier: 3.0, Cost: 1000},
	"designer_meet":        {Name: "Designer Meet & Greet", DurationHours: 4, IncomeMultiplier: 2.0, Cost: 700},
	"exclusive_sale":       {Name: "Exclusive Sale", DurationHours: 24, IncomeMultiplier: 1.5, Cost: 500},
	"tech_launch":          {Name: "Tech Launch Event", DurationHours: 12, IncomeMultiplier: 2.5, Cost: 800},
	"product_demo":         {Name: "Product Demo", DurationHours: 6, IncomeMultiplier: 1.6, Cost: 350},
	"gadget_fair":          {Name: "Gadget Fair", DurationHours: 24, IncomeMultiplier: 1.8, Cost: 600},
	"wellness_retreat":     {Name: "Wellness Retreat", DurationHours: 48, IncomeMultiplier: 1.8, Cost: 600},
	"massage_day":          {Name: "Massage Day", DurationHours: 8, IncomeMultiplier: 1.5, Cost: 350},
	"meditation_session":   {Name: "Meditation Session", DurationHours: 4, IncomeMultiplier: 1.3, Cost: 200},
	"movie_premiere":       {Name: "Movie Premiere", DurationHours: 6, IncomeMultiplier: 2.8, Cost: 900},
	"film_festival":        {Name: "Film Festival", DurationHours: 48, IncomeMultiplier: 2.0, Cost: 1200},
	"classic_movie_night":  {Name: "Classic Movie Night", DurationHours: 6, IncomeMultiplier: 1.4, Cost: 300},
}

// facilityCountBonus maps the number of facilities a user owns to an income
// multiplier, mirroring the Python catalog's empire_bonuses.facility_count
// thresholds. Thresholds are checked from highest to lowest.
var facilityCountBonus = []struct {
	Count      int
	Multiplier float64
}{
	{15, 2.0}, {12, 1.5}, {8, 1.3}, {5, 1.2}, {3, 1.1},
}

// incomeMultiplierFor returns the empire-wide income bonus for owning n
// facilities.
func incomeMultiplierFor(n int) float64 {
	for _, b := range facilityCountBonus {
		if n >= b.Count {
			return b.Multiplier
		}
	}
	return 1.0
}

// AvailableFacilities lists every facility type a user at the given level and
// coin balance can currently purchase.
func AvailableFacilities(userLevel int, userCoins int64, owned map[string]bool) []string {
	var out []string
	for facilityType, entry := range facilityCatalog {
		if owned[facilityType] {
			continue
		}
		if userLevel < entry.Unlock.Level || userCoins < entry.Unlock.Coins {
			continue
		}
		out = append(out, facilityType)
	}
	return out
}
