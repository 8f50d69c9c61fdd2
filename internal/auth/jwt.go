package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"bullmeter/pkg/types"
)

const DefaultTokenTTL = 12 * time.Hour

var (
	ErrAuthDisabled   = errors.New("host authentication is disabled")
	ErrMissingHostID  = errors.New("host id is required")
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrMissingSubject = errors.New("token has no host id")
)

// Claims identifies the host allowed to run rounds
type Claims struct {
	HostID string `json:"host_id"`
	jwt.RegisteredClaims
}

// Authenticator issues and checks HS256 host tokens. With an empty secret
// it is disabled and every caller acts as the default host.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Authenticator{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Enabled reports whether a signing secret is configured
func (a *Authenticator) Enabled() bool {
	return a != nil && len(a.secret) > 0
}

// GenerateToken signs a host token valid for the configured TTL
func (a *Authenticator) GenerateToken(hostID string) (string, error) {
	if !a.Enabled() {
		return "", ErrAuthDisabled
	}
	if hostID == "" {
		return "", ErrMissingHostID
	}

	now := a.now()
	claims := &Claims{
		HostID: hostID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   hostID,
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a host token
func (a *Authenticator) ValidateToken(tokenString string) (*Claims, error) {
	if !a.Enabled() {
		return nil, ErrAuthDisabled
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.HostID == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

// hostOrDefault returns the default host id when auth is off
func hostOrDefault(hostID string) string {
	if hostID == "" {
		return types.DefaultHostID
	}
	return hostID
}
