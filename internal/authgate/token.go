package authgate

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/mallquest/mallquest/internal/domain"
)

// Claims is the JWT claim set carried by access and refresh tokens.
type Claims struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	TokenID  string `json:"token_id"`
	Refresh  bool   `json:"refresh"`
	jwt.RegisteredClaims
}

// issueToken signs a claim set with secret, expiring in ttl.
func issueToken(userID, tenantID, role, tokenID string, refresh bool, ttl time.Duration, secret string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
		TokenID:  tokenID,
		Refresh:  refresh,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("authgate: sign token: %w", err)
	}
	return signed, nil
}

// parseToken verifies signature and expiry against each candidate secret in
// turn. Gate passes only the current secret (see Gate.secrets).
func parseToken(tokenStr string, secrets []string) (*Claims, error) {
	var lastErr error
	for _, secret := range secrets {
		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return []byte(secret), nil
		})
		if err == nil && token.Valid {
			return claims, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = domain.ErrTokenExpired
	}
	return nil, lastErr
}
