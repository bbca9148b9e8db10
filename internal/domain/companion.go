package domain

import "time"

// CompanionStats are the decaying attributes of a companion. Health,
// Happiness and Energy stay in [0,100]; XP and Level are unbounded counters.
type CompanionStats struct {
	Health    int `json:"health"`
	Happiness int `json:"happiness"`
	Energy    int `json:"energy"`
	XP        int `json:"xp"`
	Level     int `json:"level"`
}

// Clamp keeps Health, Happiness and Energy within [0, 100]; XP and Level are
// left as they are.
func (s *CompanionStats) Clamp() {
	clamp := func(v *int) {
		if *v < 0 {
			*v = 0
		}
		if *v > 100 {
			*v = 100
		}
	}
	clamp(&s.Health)
	clamp(&s.Happiness)
	clamp(&s.Energy)
}

// Companion is a user-owned pet with decaying stats.
type Companion struct {
	ID                 string         `json:"companion_id"`
	UserID             string         `json:"user_id"`
	Type               string         `json:"type"`
	Name               string         `json:"name"`
	Stats              CompanionStats `json:"stats"`
	AbilitiesUnlocked  []string       `json:"abilities_unlocked"`
	LastInteractionAt  time.Time      `json:"last_interaction_at"`
	ShelterID          string         `json:"shelter_id,omitempty"`
}

// HasAbility reports whether the companion has unlocked the named ability.
func (c Companion) HasAbility(name string) bool {
	for _, a := range c.AbilitiesUnlocked {
		if a == name {
			return true
		}
	}
	return false
}
