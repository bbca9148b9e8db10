package domain

import "time"

// Tenant is a mall instance with its own user base, branding, and policy.
type Tenant struct {
	ID          string    `json:"id"`
	HostDomain  string    `json:"host_domain"`
	ShardKey    string    `json:"shard_key"`
	BrandName   string    `json:"brand_name"`
	Timezone    string    `json:"timezone"`
	Policy      Policy    `json:"policy"`
	WifiSSIDs   []string  `json:"wifi_ssids"`
	StoreAllow  []string  `json:"store_allow_list"`
	CreatedAt   time.Time `json:"created_at"`
}

// Policy is the tenant's reward/fraud policy snapshot. Receipts store a copy of
// the policy in effect at submission time for auditability.
type Policy struct {
	BaseRate             float64            `json:"base_rate"`
	XPRate               float64            `json:"xp_rate"`
	XPPerLevel           int64              `json:"xp_per_level"`
	CategoryMultiplier   map[string]float64 `json:"category_multiplier"`
	TimeMultiplier       map[string]float64 `json:"time_multiplier"`
	EventMultiplierCap   float64            `json:"event_multiplier_cap"`
	MaxReceiptAmount     float64            `json:"max_receipt_amount"`
	SuspiciousAmount     float64            `json:"suspicious_amount"`
	SameStoreWindowMins  int                `json:"same_store_window_minutes"`
	SameStoreMaxCount    int                `json:"same_store_max_count"`
	EnforceWifiPresence  bool               `json:"enforce_wifi_presence"`
	VIPThresholds        []VIPTier          `json:"vip_thresholds"`
}

// VIPTier is a step of the VIP-points step function.
type VIPTier struct {
	Name           string  `json:"name"`
	MinPoints      int64   `json:"min_points"`
	CoinMultiplier float64 `json:"coin_multiplier"`
	UpgradeBonus   int64   `json:"upgrade_bonus_coins"`
}

// DefaultPolicy returns the policy defaults named in spec.md §4.5/§6.4.
func DefaultPolicy() Policy {
	return Policy{
		BaseRate:            0.10,
		XPRate:              0.20,
		XPPerLevel:          100,
		CategoryMultiplier: map[string]float64{
			"fashion":     1.3,
			"electronics": 1.2,
			"dining":      1.1,
			"grocery":     1.05,
			"entertainment": 1.15,
		},
		TimeMultiplier: map[string]float64{
			"morning":   1.0,
			"afternoon": 1.0,
			"evening":   1.0,
			"night":     1.0,
			"weekend":   1.0,
		},
		EventMultiplierCap:  3.0,
		MaxReceiptAmount:    10000,
		SuspiciousAmount:    5000,
		SameStoreWindowMins: 30,
		SameStoreMaxCount:   3,
		EnforceWifiPresence: false,
		VIPThresholds: []VIPTier{
			{Name: "bronze", MinPoints: 0, CoinMultiplier: 1.0, UpgradeBonus: 0},
			{Name: "silver", MinPoints: 500, CoinMultiplier: 1.1, UpgradeBonus: 200},
			{Name: "gold", MinPoints: 2000, CoinMultiplier: 1.25, UpgradeBonus: 500},
			{Name: "platinum", MinPoints: 10000, CoinMultiplier: 1.5, UpgradeBonus: 2000},
		},
	}
}
