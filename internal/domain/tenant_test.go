package domain

import "testing"

func TestDefaultPolicyVIPThresholdsAreOrdered(t *testing.T) {
	p := DefaultPolicy()

	if len(p.VIPThresholds) == 0 {
		t.Fatal("expected at least one VIP tier")
	}
	for i := 1; i < len(p.VIPThresholds); i++ {
		prev, cur := p.VIPThresholds[i-1], p.VIPThresholds[i]
		if cur.MinPoints <= prev.MinPoints {
			t.Fatalf("VIP tiers must be strictly increasing by MinPoints: %s (%d) before %s (%d)",
				prev.Name, prev.MinPoints, cur.Name, cur.MinPoints)
		}
		if cur.CoinMultiplier <= prev.CoinMultiplier {
			t.Fatalf("VIP tiers must have strictly increasing coin multipliers: %s (%v) before %s (%v)",
				prev.Name, prev.CoinMultiplier, cur.Name, cur.CoinMultiplier)
		}
	}
	if p.VIPThresholds[0].MinPoints != 0 {
		t.Fatalf("lowest VIP tier must start at 0 points, got %d", p.VIPThresholds[0].MinPoints)
	}
}

func TestDefaultPolicyCategoryMultipliersArePositive(t *testing.T) {
	p := DefaultPolicy()
	for category, mult := range p.CategoryMultiplier {
		if mult <= 0 {
			t.Errorf("category %q has non-positive multiplier %v", category, mult)
		}
	}
}
