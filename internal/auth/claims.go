package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer is written to the iss claim of every token the bridge signs.
const Issuer = "venusbridge"

const defaultTTL = time.Hour

// Claims is the JWT payload: registered claims plus the caller's role.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// Validate is called by the jwt parser after the registered claims have
// been checked.
func (c Claims) Validate() error {
	if c.Subject == "" {
		return fmt.Errorf("missing subject")
	}
	if !IsValidRole(c.Role) {
		return fmt.Errorf("unknown role %q", c.Role)
	}
	return nil
}

var signingMethod = jwt.SigningMethodHS256

// GenerateAccessToken signs an HS256 token for subject.
//
// Parameters:
//   - subject: Caller name, e.g. "home-assistant"
//   - role: RoleViewer or RoleOperator
//   - secret: HMAC key
//   - ttlMinutes: Lifetime; zero or negative means one hour
//
// Returns:
//   - string: Compact token
//   - error: ErrSecretRequired, or ErrTokenInvalid for a bad subject or role
func GenerateAccessToken(subject string, role Role, secret string, ttlMinutes int) (string, error) {
	if secret == "" {
		return "", ErrSecretRequired
	}

	ttl := defaultTTL
	if ttlMinutes > 0 {
		ttl = time.Duration(ttlMinutes) * time.Minute
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}
	if err := claims.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies the signature (HS256 only), expiry, subject and role
// of raw and returns its claims. Every failure wraps ErrTokenInvalid.
func ParseToken(raw, secret string) (*Claims, error) {
	claims := &Claims{}
	keyFunc := func(*jwt.Token) (any, error) { return []byte(secret), nil }

	if _, err := jwt.ParseWithClaims(raw, claims, keyFunc,
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
	); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	return claims, nil
}
