package authgate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mallquest/mallquest/internal/config"
	"github.com/mallquest/mallquest/internal/domain"
)

// sessionStore is the Store dependency, narrowed to session persistence.
type sessionStore interface {
	LoadUser(ctx context.Context, tenantID, userID string) (domain.User, error)
	LoadUserByEmail(ctx context.Context, tenantID, email string, shardCount int) (domain.User, error)
	CreateUser(ctx context.Context, u domain.User) error
	RecordSession(ctx context.Context, sess domain.Session) error
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (domain.Session, error)
	GetSessionByID(ctx context.Context, tenantID, userID, sessionID string) (domain.Session, error)
	RevokeSession(ctx context.Context, tenantID, userID, sessionID string) error
	UpdateMFA(ctx context.Context, tenantID, userID, secret string, backupCodes []string, enabled bool) error
	ShardCount() int
}

type failureLog struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	lockedAt map[string]time.Time
}

// Gate is the identity-proofing and session-lifecycle component.
type Gate struct {
	store  sessionStore
	cfg    config.AuthConfig
	logger *slog.Logger

	failures *failureLog
}

// New constructs a Gate bound to Store.
func New(store sessionStore, cfg config.AuthConfig, logger *slog.Logger) *Gate {
	return &Gate{
		store:  store,
		cfg:    cfg,
		logger: logger,
		failures: &failureLog{
			attempts: make(map[string][]time.Time),
			lockedAt: make(map[string]time.Time),
		},
	}
}

// TokenPair is issued on successful login or refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
	ExpiresAt    time.Time
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Register validates password strength, hashes it, and stores a new user.
func (g *Gate) Register(ctx context.Context, tenantID, email, displayName, password string, role domain.Role) (domain.User, error) {
	if err := ValidatePasswordStrength(password); err != nil {
		return domain.User{}, err
	}
	hash, err := HashPassword(password, g.cfg.BcryptCost)
	if err != nil {
		return domain.User{}, err
	}

	u := domain.User{
		ID:                uuid.NewString(),
		TenantID:          tenantID,
		DisplayName:       displayName,
		Email:             email,
		Language:          "en",
		PasswordHash:      hash,
		Role:              role,
		VIPTier:           "bronze",
		Level:             1,
		Version:           1,
		VisitedCategories: map[string]bool{},
		CreatedAt:         time.Now(),
		LastActiveAt:      time.Now(),
	}
	if err := g.store.CreateUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func lockKey(tenantID, email string) string { return tenantID + ":" + email }

// isLocked reports whether the account is under an active lockout.
func (g *Gate) isLocked(key string) bool {
	g.failures.mu.Lock()
	defer g.failures.mu.Unlock()
	lockedAt, ok := g.failures.lockedAt[key]
	if !ok {
		return false
	}
	if time.Since(lockedAt) > g.cfg.LockoutDuration {
		delete(g.failures.lockedAt, key)
		delete(g.failures.attempts, key)
		return false
	}
	return true
}

// recordFailure appends a failed attempt and locks the account if the
// configured threshold is crossed within the configured window.
func (g *Gate) recordFailure(key string) {
	g.failures.mu.Lock()
	defer g.failures.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-g.cfg.LockoutWindow)
	attempts := g.failures.attempts[key]
	pruned := attempts[:0]
	for _, t := range attempts {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}
	pruned = append(pruned, now)
	g.failures.attempts[key] = pruned

	if len(pruned) >= g.cfg.MaxFailedAttempts {
		g.failures.lockedAt[key] = now
		g.logger.Warn("authgate: account locked after repeated failures", "key", key, "attempts", len(pruned))
	}
}

func (g *Gate) clearFailures(key string) {
	g.failures.mu.Lock()
	defer g.failures.mu.Unlock()
	delete(g.failures.attempts, key)
	delete(g.failures.lockedAt, key)
}

// Login verifies credentials and, if MFA is enabled, a TOTP code or backup
// code. On success it issues an access/refresh token pair and records a
// session row.
func (g *Gate) Login(ctx context.Context, tenantID, email, password, mfaCode, ip, userAgent string) (TokenPair, domain.User, error) {
	key := lockKey(tenantID, email)
	if g.isLocked(key) {
		return TokenPair{}, domain.User{}, domain.ErrAccountLocked
	}

	u, err := g.store.LoadUserByEmail(ctx, tenantID, email, g.store.ShardCount())
	if err != nil {
		// Don't disclose whether the account exists.
		g.recordFailure(key)
		return TokenPair{}, domain.User{}, domain.ErrInvalidCredentials
	}

	if !VerifyPassword(u.PasswordHash, password) {
		g.recordFailure(key)
		return TokenPair{}, domain.User{}, domain.ErrInvalidCredentials
	}

	if u.MFAEnabled {
		if mfaCode == "" {
			return TokenPair{}, domain.User{}, domain.ErrMFARequired
		}
		if !VerifyTOTP(u.MFASecret, mfaCode, time.Now()) {
			remaining, ok := ConsumeBackupCode(u.BackupCodes, mfaCode)
			if !ok {
				g.recordFailure(key)
				return TokenPair{}, domain.User{}, domain.ErrMFAInvalid
			}
			u.BackupCodes = remaining
		}
	}

	g.clearFailures(key)

	pair, err := g.issuePair(ctx, u, ip, userAgent)
	if err != nil {
		return TokenPair{}, domain.User{}, err
	}
	return pair, u, nil
}

func (g *Gate) issuePair(ctx context.Context, u domain.User, ip, userAgent string) (TokenPair, error) {
	sessionID := uuid.NewString()
	now := time.Now()

	access, err := issueToken(u.ID, u.TenantID, string(u.Role), sessionID, false, g.cfg.AccessTokenTTL, g.cfg.JWTSecret)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := issueToken(u.ID, u.TenantID, string(u.Role), sessionID, true, g.cfg.RefreshTokenTTL, g.cfg.JWTSecret)
	if err != nil {
		return TokenPair{}, err
	}

	sess := domain.Session{
		ID:        sessionID,
		UserID:    u.ID,
		TenantID:  u.TenantID,
		TokenHash: hashToken(refresh),
		IssuedAt:  now,
		ExpiresAt: now.Add(g.cfg.RefreshTokenTTL),
		IP:        ip,
		UserAgent: userAgent,
	}
	if err := g.store.RecordSession(ctx, sess); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		SessionID:    sessionID,
		ExpiresAt:    now.Add(g.cfg.AccessTokenTTL),
	}, nil
}

// secrets returns the signing secrets parseToken accepts. Only the current
// JWTSecret is configured; no previous secret is kept, so a token signed
// with a secret that has since been replaced no longer verifies.
func (g *Gate) secrets() []string {
	if g.cfg.JWTSecret == "" {
		return nil
	}
	return []string{g.cfg.JWTSecret}
}

// Verify checks signature, expiry, and revocation-set membership. Revocation
// is keyed by the session id carried in the token's claims, not by the
// token's own hash: only refresh tokens are persisted under their hash, but
// every access token issued for a session shares that session's id, so
// revoking the session must be checked the same way for both token types.
func (g *Gate) Verify(ctx context.Context, token string) (*Claims, error) {
	claims, err := parseToken(token, g.secrets())
	if err != nil {
		return nil, domain.ErrTokenExpired
	}

	sess, err := g.store.GetSessionByID(ctx, claims.TenantID, claims.UserID, claims.TokenID)
	if err != nil {
		return nil, domain.ErrTokenExpired
	}
	if sess.Revoked {
		return nil, domain.ErrTokenRevoked
	}
	return claims, nil
}

// Refresh verifies a refresh token and issues a new access token. Refreshing
// a revoked token's session fails, per the "revoking a token revokes the
// chain" rule: the refresh token shares the session row with the access
// token it originally paired with.
func (g *Gate) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := parseToken(refreshToken, g.secrets())
	if err != nil || !claims.Refresh {
		return TokenPair{}, domain.ErrTokenExpired
	}

	sess, err := g.store.GetSessionByTokenHash(ctx, hashToken(refreshToken))
	if err != nil {
		return TokenPair{}, domain.ErrTokenExpired
	}
	if sess.Revoked {
		return TokenPair{}, domain.ErrTokenRevoked
	}

	access, err := issueToken(claims.UserID, claims.TenantID, claims.Role, sess.ID, false, g.cfg.AccessTokenTTL, g.cfg.JWTSecret)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refreshToken,
		SessionID:    sess.ID,
		ExpiresAt:    time.Now().Add(g.cfg.AccessTokenTTL),
	}, nil
}

// Revoke marks the session behind token as revoked; subsequent Verify calls
// against it fail.
func (g *Gate) Revoke(ctx context.Context, tenantID, userID, sessionID string) error {
	return g.store.RevokeSession(ctx, tenantID, userID, sessionID)
}

// SetupMFA generates a TOTP secret and backup codes for a user and persists
// them in a not-yet-enabled state; enrollment isn't active until ConfirmMFA
// verifies the client holds a working copy of the secret.
func (g *Gate) SetupMFA(ctx context.Context, tenantID, userID, email string) (secret, provisioningURI string, backupCodes []string, err error) {
	secret, provisioningURI, err = GenerateTOTPSecret(tenantID, email)
	if err != nil {
		return "", "", nil, err
	}
	backupCodes, err = GenerateBackupCodes(g.cfg.TOTPBackupCodes)
	if err != nil {
		return "", "", nil, err
	}
	if err := g.store.UpdateMFA(ctx, tenantID, userID, secret, backupCodes, false); err != nil {
		return "", "", nil, err
	}
	return secret, provisioningURI, backupCodes, nil
}

// ConfirmMFA verifies code against the pending secret set up by SetupMFA and
// flips enrollment on.
func (g *Gate) ConfirmMFA(ctx context.Context, tenantID, userID, code string) error {
	u, err := g.store.LoadUser(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	if u.MFASecret == "" {
		return domain.ErrMFAInvalid
	}
	if !VerifyTOTP(u.MFASecret, code, time.Now()) {
		return domain.ErrMFAInvalid
	}
	return g.store.UpdateMFA(ctx, tenantID, userID, u.MFASecret, u.BackupCodes, true)
}
