package authgate

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"fmt"
	"math"
	"strings"
	"time"
)

const totpStep = 30 * time.Second
const totpDigits = 6

// GenerateTOTPSecret returns a random base32-encoded secret suitable for
// enrollment, and the provisioning URI for an authenticator app.
func GenerateTOTPSecret(issuer, account string) (secret, provisioningURI string, err error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("authgate: generate totp secret: %w", err)
	}
	secret = base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)
	uri := fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s&digits=%d&period=30",
		issuer, account, secret, issuer, totpDigits)
	return secret, uri, nil
}

// totpCode computes the RFC 6238 code for secret at time t.
func totpCode(secret string, t time.Time) (string, error) {
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(secret))
	if err != nil {
		return "", fmt.Errorf("authgate: decode totp secret: %w", err)
	}

	counter := uint64(t.Unix() / int64(totpStep.Seconds()))
	var buf [8]byte
	for i := 7; i >= 0; i-- {
		buf[i] = byte(counter & 0xff)
		counter >>= 8
	}

	mac := hmac.New(sha1.New, key)
	mac.Write(buf[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	truncated := (uint32(sum[offset])&0x7f)<<24 |
		uint32(sum[offset+1])<<16 |
		uint32(sum[offset+2])<<8 |
		uint32(sum[offset+3])

	code := truncated % uint32(math.Pow10(totpDigits))
	return fmt.Sprintf("%0*d", totpDigits, code), nil
}

// VerifyTOTP checks code against secret allowing a ±1 step window to absorb
// clock drift between client and server.
func VerifyTOTP(secret, code string, now time.Time) bool {
	for _, shift := range []int{0, -1, 1} {
		want, err := totpCode(secret, now.Add(time.Duration(shift)*totpStep))
		if err != nil {
			return false
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return true
		}
	}
	return false
}

// GenerateBackupCodes returns n single-use recovery codes.
func GenerateBackupCodes(n int) ([]string, error) {
	codes := make([]string, n)
	for i := range codes {
		raw := make([]byte, 5)
		if _, err := rand.Read(raw); err != nil {
			return nil, fmt.Errorf("authgate: generate backup codes: %w", err)
		}
		codes[i] = base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)
	}
	return codes, nil
}

// ConsumeBackupCode finds code in codes (constant-time per entry) and
// returns the remaining set with it removed, or ok=false if not present.
func ConsumeBackupCode(codes []string, code string) (remaining []string, ok bool) {
	found := false
	remaining = make([]string, 0, len(codes))
	for _, c := range codes {
		if !found && subtle.ConstantTimeCompare([]byte(c), []byte(code)) == 1 {
			found = true
			continue
		}
		remaining = append(remaining, c)
	}
	return remaining, found
}
