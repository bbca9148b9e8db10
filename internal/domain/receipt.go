package domain

import "time"

// VerificationState is the lifecycle state of a receipt.
type VerificationState string

const (
	ReceiptPending    VerificationState = "pending"
	ReceiptVerified   VerificationState = "verified"
	ReceiptRejected   VerificationState = "rejected"
	ReceiptSuspicious VerificationState = "suspicious"
)

// ReceiptSource identifies where a receipt was submitted from.
type ReceiptSource string

const (
	SourceMobile ReceiptSource = "mobile"
	SourcePOS    ReceiptSource = "pos"
	SourceManual ReceiptSource = "manual"
)

// RewardSnapshot is the computed reward, persisted on the receipt for audit
// even when credit is withheld (suspicious receipts).
type RewardSnapshot struct {
	Coins        int64              `json:"coins"`
	XP           int64              `json:"xp"`
	BonusCoins   int64              `json:"bonus_coins"`
	Multipliers  RewardMultipliers  `json:"multipliers"`
	EventID      string             `json:"event_id,omitempty"`
}

// RewardMultipliers is the multiplier breakdown returned to the client.
type RewardMultipliers struct {
	Category float64 `json:"category"`
	Time     float64 `json:"time"`
	VIP      float64 `json:"vip"`
	Event    float64 `json:"event"`
	Streak   float64 `json:"streak"`
}

// Receipt is a customer's proof of purchase.
type Receipt struct {
	ID             string            `json:"receipt_id"`
	TenantID       string            `json:"tenant_id"`
	UserID         string            `json:"user_id"`
	Store          string            `json:"store"`
	Category       string            `json:"category"`
	Amount         float64           `json:"amount"`
	Currency       string            `json:"currency"`
	SubmittedAt    time.Time         `json:"submitted_at"`
	IdempotencyKey string            `json:"idempotency_key"`
	Source         ReceiptSource     `json:"source"`
	State          VerificationState `json:"status"`
	Reward         RewardSnapshot    `json:"reward"`
	Metadata       map[string]any    `json:"metadata,omitempty"`
	WifiSSID       string            `json:"-"`
}

// ScoreSubmission-equivalent input DTO, kept distinct from the persisted Receipt
// so handlers can validate before a Receipt ever exists.
type ReceiptSubmission struct {
	TenantID       string
	UserID         string
	Amount         float64
	Store          string
	Category       string
	Timestamp      time.Time
	IdempotencyKey string
	Source         ReceiptSource
	WifiSSID       string
}
