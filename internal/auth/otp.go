package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// GeneratedOTP is the result of a single passcode issuance. Code is the
// plaintext sent to the user; only CodeHash may be persisted.
type GeneratedOTP struct {
	Code      string
	CodeHash  string
	ExpiresAt time.Time
}

// GenerateOTP produces a uniformly random, zero-padded decimal code of the
// given length together with its storage digest.
func GenerateOTP(length int, ttl time.Duration) (*GeneratedOTP, error) {
	if length <= 0 || length > 10 {
		return nil, fmt.Errorf("invalid otp length %d", length)
	}

	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return nil, fmt.Errorf("failed to generate otp: %w", err)
	}

	code := fmt.Sprintf("%0*d", length, n)
	return &GeneratedOTP{
		Code:      code,
		CodeHash:  HashToken(code),
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

// HashToken returns the deterministic one-way digest used for storing OTP
// codes, refresh tokens and reset tokens.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// VerifyHashedToken re-hashes the plaintext and compares it to the stored
// digest in constant time.
func VerifyHashedToken(value, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(HashToken(value)), []byte(digest)) == 1
}

// ResetCapability derives the password-reset capability for an account: the
// account id and expiry bound together under an HMAC of the process secret.
// The value is opaque to the client and verifiable without storage.
func ResetCapability(accountID, secret string, expiresAt time.Time) string {
	payload := fmt.Sprintf("%s.%d", accountID, expiresAt.Unix())
	return payload + "." + signPayload(payload, secret)
}

// VerifyResetCapability checks a capability's signature and expiry and
// returns the account id it grants a reset for.
func VerifyResetCapability(token, secret string, now time.Time) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("malformed reset token")
	}
	accountID, expStr, sig := parts[0], parts[1], parts[2]

	payload := accountID + "." + expStr
	expected := signPayload(payload, secret)
	if subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) != 1 {
		return "", fmt.Errorf("invalid reset token signature")
	}

	expUnix, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil || now.After(time.Unix(expUnix, 0)) {
		return "", fmt.Errorf("reset token expired")
	}

	return accountID, nil
}

func signPayload(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
