// Package jwt mints the short-lived HS256 bearer tokens the remote completion
// API expects and caches the current one until it nears expiry.
package jwt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token has expired")
	ErrMissingKeyPair = errors.New("access key id and secret access key are required")
)

// Claims are the registered claims carried by an API token. The issuer is the
// access key id.
type Claims struct {
	jwt.RegisteredClaims
}

// Signer issues tokens for one access key pair
type Signer struct {
	accessKeyID     string
	secretAccessKey []byte
	ttl             time.Duration
	notBeforeSkew   time.Duration
}

// NewSigner creates a signer. ttl defaults to 30 minutes and the not-before
// skew to 5 seconds.
func NewSigner(accessKeyID, secretAccessKey string, ttl, notBeforeSkew time.Duration) (*Signer, error) {
	if accessKeyID == "" || secretAccessKey == "" {
		return nil, ErrMissingKeyPair
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if notBeforeSkew <= 0 {
		notBeforeSkew = 5 * time.Second
	}
	return &Signer{
		accessKeyID:     accessKeyID,
		secretAccessKey: []byte(secretAccessKey),
		ttl:             ttl,
		notBeforeSkew:   notBeforeSkew,
	}, nil
}

// Sign issues a token valid from now-skew until now+ttl and returns its expiry
func (s *Signer) Sign(now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(s.ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.accessKeyID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now.Add(-s.notBeforeSkew)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretAccessKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify parses a token signed with secret and returns its claims. It is
// what the remote side does with our tokens.
func Verify(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return []byte(secret), nil
		},
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TokenCache holds the current token for a signer. It is safe for concurrent use.
type TokenCache struct {
	signer *Signer
	// margin is the remaining validity below which the token is reissued
	margin time.Duration

	mu        sync.Mutex
	token     string
	issuedAt  time.Time
	expiresAt time.Time
}

// NewTokenCache creates an empty cache. margin defaults to 5 minutes.
func NewTokenCache(signer *Signer, margin time.Duration) *TokenCache {
	if margin <= 0 {
		margin = 5 * time.Minute
	}
	return &TokenCache{signer: signer, margin: margin}
}

// NeedsRefresh reports whether there is no token or its remaining validity
// at now is below the refresh margin
func (c *TokenCache) NeedsRefresh(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.needsRefresh(now)
}

func (c *TokenCache) needsRefresh(now time.Time) bool {
	return c.token == "" || c.expiresAt.Sub(now) < c.margin
}

// Token returns the cached token, signing a fresh one when needed
func (c *TokenCache) Token(now time.Time) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.needsRefresh(now) {
		return c.token, nil
	}

	token, expiresAt, err := c.signer.Sign(now)
	if err != nil {
		return "", err
	}
	c.token = token
	c.issuedAt = now
	c.expiresAt = expiresAt
	return c.token, nil
}

// IssuedAt is when the cached token was minted; zero if none
func (c *TokenCache) IssuedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.issuedAt
}
