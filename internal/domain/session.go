package domain

import "time"

// Session is a live authenticated session.
type Session struct {
	ID        string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id"`
	TokenHash string    `json:"-"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Revoked   bool      `json:"revoked"`
}

// RateLimitBucket is the persisted fixed-window counter state.
type RateLimitBucket struct {
	Subject     string    `json:"subject"`
	Action      string    `json:"action"`
	WindowStart time.Time `json:"window_start"`
	Count       int64     `json:"count"`
}
