package jwtx

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed    = errors.New("jwtx: malformed token")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrAudience     = errors.New("jwtx: audience mismatch")
	ErrNoExpiration = errors.New("jwtx: token has no exp claim")
)

// Claims are the claims the SDK reads out of provider and broker tokens.
// The SDK never holds verification keys; the APIs verify signatures.
type Claims struct {
	jwt.RegisteredClaims

	// Space separated scopes, as issued by the identity provider.
	Scope string `json:"scope,omitempty"`

	// Authorized party: the client the token was issued to.
	AuthorizedParty string `json:"azp,omitempty"`

	// Grant type, "client-credentials" for machine tokens.
	GrantType string `json:"gty,omitempty"`
}

// Inspect decodes a JWT without verifying its signature. It exists so a
// client can learn when its own token expires.
func Inspect(token string) (*Claims, error) {
	if strings.Count(token, ".") != 2 {
		return nil, ErrMalformed
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return claims, nil
}

// ExpiresAt returns the exp claim of token.
func ExpiresAt(token string) (time.Time, error) {
	claims, err := Inspect(token)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiration
	}
	return claims.ExpiresAt.Time, nil
}

// Scopes splits the scope claim.
func (c *Claims) Scopes() []string {
	return strings.Fields(c.Scope)
}

// HasAudience reports whether want is among the token audiences.
func (c *Claims) HasAudience(want string) bool {
	return slices.Contains(c.Audience, want)
}

// ValidateAudience checks if at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil // nothing to enforce
	}

	for _, want := range expected {
		if c.HasAudience(want) {
			return nil
		}
	}

	return ErrAudience
}

// ValidateExpiryWithLeeway adds a small grace period for clock skew.
func (c *Claims) ValidateExpiryWithLeeway(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}

	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}

	return nil
}
