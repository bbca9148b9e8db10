package authgate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mallquest/mallquest/internal/config"
	"github.com/mallquest/mallquest/internal/domain"
)

type fakeStore struct {
	usersByID    map[string]domain.User
	usersByEmail map[string]domain.User
	sessions     map[string]domain.Session // by token hash
	shardCount   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		usersByID:    make(map[string]domain.User),
		usersByEmail: make(map[string]domain.User),
		sessions:     make(map[string]domain.Session),
		shardCount:   4,
	}
}

func (f *fakeStore) LoadUser(ctx context.Context, tenantID, userID string) (domain.User, error) {
	u, ok := f.usersByID[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeStore) LoadUserByEmail(ctx context.Context, tenantID, email string, shardCount int) (domain.User, error) {
	u, ok := f.usersByEmail[email]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeStore) CreateUser(ctx context.Context, u domain.User) error {
	f.usersByID[u.ID] = u
	f.usersByEmail[u.Email] = u
	return nil
}

func (f *fakeStore) RecordSession(ctx context.Context, sess domain.Session) error {
	f.sessions[sess.TokenHash] = sess
	return nil
}

func (f *fakeStore) GetSessionByTokenHash(ctx context.Context, tokenHash string) (domain.Session, error) {
	s, ok := f.sessions[tokenHash]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeStore) GetSessionByID(ctx context.Context, tenantID, userID, sessionID string) (domain.Session, error) {
	for _, s := range f.sessions {
		if s.ID == sessionID {
			return s, nil
		}
	}
	return domain.Session{}, domain.ErrSessionNotFound
}

func (f *fakeStore) RevokeSession(ctx context.Context, tenantID, userID, sessionID string) error {
	for hash, s := range f.sessions {
		if s.ID == sessionID {
			s.Revoked = true
			f.sessions[hash] = s
			return nil
		}
	}
	return domain.ErrSessionNotFound
}

func (f *fakeStore) UpdateMFA(ctx context.Context, tenantID, userID, secret string, backupCodes []string, enabled bool) error {
	u, ok := f.usersByID[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.MFASecret = secret
	u.BackupCodes = backupCodes
	u.MFAEnabled = enabled
	f.usersByID[userID] = u
	f.usersByEmail[u.Email] = u
	return nil
}

func (f *fakeStore) ShardCount() int { return f.shardCount }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:         "test-secret",
		AccessTokenTTL:    15 * time.Minute,
		RefreshTokenTTL:   24 * time.Hour,
		BcryptCost:        4, // cheapest valid bcrypt cost, keeps tests fast
		MaxFailedAttempts: 3,
		LockoutWindow:     time.Minute,
		LockoutDuration:   time.Minute,
		TOTPBackupCodes:   5,
	}
}

func registerTestUser(t *testing.T, g *Gate, store *fakeStore, tenantID, email, password string) domain.User {
	t.Helper()
	u, err := g.Register(context.Background(), tenantID, email, "Test User", password, domain.RolePlayer)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return u
}

func TestRegisterAndLoginRoundTrip(t *testing.T) {
	store := newFakeStore()
	g := New(store, testAuthConfig(), testLogger())

	registerTestUser(t, g, store, "tenant1", "arwa@example.com", "S3cure!Passw0rd")

	pair, user, err := g.Login(context.Background(), "tenant1", "arwa@example.com", "S3cure!Passw0rd", "", "1.2.3.4", "test-agent")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens to be issued")
	}
	if user.Email != "arwa@example.com" {
		t.Fatalf("unexpected user returned: %+v", user)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	store := newFakeStore()
	g := New(store, testAuthConfig(), testLogger())
	registerTestUser(t, g, store, "tenant1", "arwa@example.com", "S3cure!Passw0rd")

	_, _, err := g.Login(context.Background(), "tenant1", "arwa@example.com", "wrong-password", "", "", "")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginLocksAccountAfterRepeatedFailures(t *testing.T) {
	store := newFakeStore()
	cfg := testAuthConfig()
	cfg.MaxFailedAttempts = 2
	g := New(store, cfg, testLogger())
	registerTestUser(t, g, store, "tenant1", "arwa@example.com", "S3cure!Passw0rd")

	for i := 0; i < 2; i++ {
		g.Login(context.Background(), "tenant1", "arwa@example.com", "wrong", "", "", "")
	}

	_, _, err := g.Login(context.Background(), "tenant1", "arwa@example.com", "S3cure!Passw0rd", "", "", "")
	if !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("expected account locked after 2 failures, got %v", err)
	}
}

func TestVerifyRoundTripsAccessToken(t *testing.T) {
	store := newFakeStore()
	g := New(store, testAuthConfig(), testLogger())
	registerTestUser(t, g, store, "tenant1", "arwa@example.com", "S3cure!Passw0rd")

	pair, user, err := g.Login(context.Background(), "tenant1", "arwa@example.com", "S3cure!Passw0rd", "", "", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	claims, err := g.Verify(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != user.ID || claims.TenantID != "tenant1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsGarbageToken(t *testing.T) {
	store := newFakeStore()
	g := New(store, testAuthConfig(), testLogger())

	_, err := g.Verify(context.Background(), "not-a-real-token")
	if !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired for an unparseable token, got %v", err)
	}
}

func TestRevokeInvalidatesSession(t *testing.T) {
	store := newFakeStore()
	g := New(store, testAuthConfig(), testLogger())
	registerTestUser(t, g, store, "tenant1", "arwa@example.com", "S3cure!Passw0rd")

	pair, _, err := g.Login(context.Background(), "tenant1", "arwa@example.com", "S3cure!Passw0rd", "", "", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := g.Revoke(context.Background(), "tenant1", "", pair.SessionID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	_, err = g.Refresh(context.Background(), pair.RefreshToken)
	if !errors.Is(err, domain.ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked after revoking the session, got %v", err)
	}

	_, err = g.Verify(context.Background(), pair.AccessToken)
	if !errors.Is(err, domain.ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked when verifying an access token whose session was revoked, got %v", err)
	}
}

func TestRefreshIssuesNewAccessToken(t *testing.T) {
	store := newFakeStore()
	g := New(store, testAuthConfig(), testLogger())
	registerTestUser(t, g, store, "tenant1", "arwa@example.com", "S3cure!Passw0rd")

	pair, _, err := g.Login(context.Background(), "tenant1", "arwa@example.com", "S3cure!Passw0rd", "", "", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	refreshed, err := g.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.AccessToken == "" {
		t.Fatal("expected a new access token")
	}
}

func TestLoginRequiresMFAWhenEnabled(t *testing.T) {
	store := newFakeStore()
	g := New(store, testAuthConfig(), testLogger())
	u := registerTestUser(t, g, store, "tenant1", "arwa@example.com", "S3cure!Passw0rd")

	secret, _, codes, err := g.SetupMFA(context.Background(), "tenant1", u.ID, u.Email)
	if err != nil {
		t.Fatalf("SetupMFA: %v", err)
	}
	if secret == "" || len(codes) != 5 {
		t.Fatalf("expected a secret and 5 backup codes, got secret=%q codes=%v", secret, codes)
	}

	code, err := totpCode(secret, time.Now())
	if err != nil {
		t.Fatalf("totpCode: %v", err)
	}
	if err := g.ConfirmMFA(context.Background(), "tenant1", u.ID, code); err != nil {
		t.Fatalf("ConfirmMFA: %v", err)
	}

	_, _, err = g.Login(context.Background(), "tenant1", "arwa@example.com", "S3cure!Passw0rd", "", "", "")
	if !errors.Is(err, domain.ErrMFARequired) {
		t.Fatalf("expected ErrMFARequired once MFA is enabled, got %v", err)
	}

	freshCode, err := totpCode(secret, time.Now())
	if err != nil {
		t.Fatalf("totpCode: %v", err)
	}
	_, _, err = g.Login(context.Background(), "tenant1", "arwa@example.com", "S3cure!Passw0rd", freshCode, "", "")
	if err != nil {
		t.Fatalf("Login with valid MFA code: %v", err)
	}
}
