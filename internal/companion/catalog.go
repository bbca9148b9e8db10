// Package companion implements the companion-pet subsystem: feeding,
// leveling, and ability use, grounded on
// original_source/companion_system.py's CompanionSystem.
package companion

// companionTypeEntry is the static catalog of companion breeds a user can
// adopt, each with its own ability set.
type companionTypeEntry struct {
	Name      string
	MaxLevel  int
	Abilities []string
}

var companionCatalog = map[string]companionTypeEntry{
	"falcon_drone": {Name: "Falcon Drone", MaxLevel: 50, Abilities: []string{"hover", "camera_feed", "light_effects", "falcon_vision"}},
	"pet_cat":      {Name: "Mall Cat", MaxLevel: 40, Abilities: []string{"stealth", "quick_movement", "curiosity", "playful"}},
	"flying_camera": {Name: "Flying Camera", MaxLevel: 60, Abilities: []string{"aerial_view", "recording", "scanning", "mapping"}},
	"desert_fox":   {Name: "Desert Fox", MaxLevel: 45, Abilities: []string{"desert_navigation", "resource_finding", "stealth", "adaptation"}},
}

// feedingEffect is the happiness/energy/health gain from one food type.
type feedingEffect struct {
	Happiness int
	Energy    int
	Health    int
}

var feedingCatalog = map[string]feedingEffect{
	"regular": {Happiness: 10, Energy: 15, Health: 10},
	"premium": {Happiness: 20, Energy: 25, Health: 15},
	"luxury":  {Happiness: 30, Energy: 35, Health: 20},
	"special": {Happiness: 25, Energy: 30, Health: 18},
}

// abilityEnergyCost is the per-use energy price of a companion ability.
var abilityEnergyCost = map[string]int{
	"hover": 5, "camera_feed": 10, "light_effects": 3, "falcon_vision": 15,
	"stealth": 8, "quick_movement": 12, "curiosity": 2, "playful": 4,
	"aerial_view": 20, "recording": 15, "scanning": 25, "mapping": 30,
	"desert_navigation": 10, "resource_finding": 15, "adaptation": 8,
}

// abilityEffect is the XP/happiness gain from using an ability, before the
// companion's level-derived bonus.
type abilityEffect struct {
	XP        int
	Happiness int
}

var abilityEffectCatalog = map[string]abilityEffect{
	"hover": {5, 2}, "falcon_vision": {5, 2}, "aerial_view": {5, 2},
	"camera_feed": {8, 3}, "recording": {8, 3}, "scanning": {8, 3},
	"playful": {3, 5}, "curiosity": {3, 5},
	"stealth": {6, 2}, "quick_movement": {6, 2},
	"desert_navigation": {10, 4}, "resource_finding": {10, 4},
}

// abilityEnergyCostFor returns the energy cost of an ability, defaulting to
// 10 for abilities the catalog doesn't list explicitly.
func abilityEnergyCostFor(ability string) int {
	if cost, ok := abilityEnergyCost[ability]; ok {
		return cost
	}
	return 10
}

// xpForLevel is the XP threshold to advance past the given level, mirroring
// the original's `current_level * 100`.
func xpForLevel(level int) int {
	return level * 100
}

// growthStage labels a companion's maturity band by level.
func growthStage(level int) string {
	switch {
	case level <= 5:
		return "baby"
	case level <= 15:
		return "young"
	case level <= 30:
		return "adult"
	case level <= 45:
		return "mature"
	default:
		return "elder"
	}
}
