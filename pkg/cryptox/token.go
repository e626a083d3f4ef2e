package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Token size constants (in bytes before encoding).
const (
	// TokenSize128 provides 128 bits of entropy (22 chars base64url).
	TokenSize128 = 16
	// TokenSize256 provides 256 bits of entropy (43 chars base64url).
	TokenSize256 = 32
)

// GenerateToken returns size random bytes encoded as base64url without padding.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewNonce returns a value suitable for the OAuth nonce parameter and the
// token broker's replay protection.
func NewNonce() (string, error) {
	return GenerateToken(TokenSize128)
}

// NewState returns an opaque value for the OAuth state parameter. The
// redirect flow compares it against the value echoed back in the callback.
func NewState() (string, error) {
	return GenerateToken(TokenSize256)
}
