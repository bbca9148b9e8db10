package companion

import "testing"

func TestAbilityEnergyCostForKnownAbility(t *testing.T) {
	if got := abilityEnergyCostFor("scanning"); got != 25 {
		t.Fatalf("abilityEnergyCostFor(scanning) = %d, want 25", got)
	}
}

func TestAbilityEnergyCostForUnknownAbilityDefaults(t *testing.T) {
	if got := abilityEnergyCostFor("made_up_ability"); got != 10 {
		t.Fatalf("abilityEnergyCostFor(unknown) = %d, want default 10", got)
	}
}

func TestXPForLevel(t *testing.T) {
	if got := xpForLevel(3); got != 300 {
		t.Fatalf("xpForLevel(3) = %d, want 300", got)
	}
}

func TestGrowthStageBands(t *testing.T) {
	cases := []struct {
		level int
		want  string
	}{
		{1, "baby"},
		{5, "baby"},
		{6, "young"},
		{15, "young"},
		{16, "adult"},
		{30, "adult"},
		{31, "mature"},
		{45, "mature"},
		{46, "elder"},
		{60, "elder"},
	}
	for _, tc := range cases {
		if got := growthStage(tc.level); got != tc.want {
			t.Errorf("growthStage(%d) = %q, want %q", tc.level, got, tc.want)
		}
	}
}

func TestEveryCompanionAbilityHasACatalogEntry(t *testing.T) {
	for typeID, entry := range companionCatalog {
		for _, ability := range entry.Abilities {
			if _, ok := abilityEnergyCost[ability]; !ok {
				t.Errorf("companion %q ability %q has no energy cost entry", typeID, ability)
			}
		}
	}
}
