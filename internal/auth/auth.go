// Package auth resolves the owner of a request from its bearer token.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Velsaravanan-kafka/Second-brain/internal/models"
)

// Provider maps a bearer token to an owner id. A missing or invalid token
// yields models.ErrUnauthenticated.
type Provider interface {
	Identify(ctx context.Context, token string) (string, error)
}

// StaticProvider treats every request as the same local owner.
type StaticProvider struct {
	OwnerID string
}

func (p StaticProvider) Identify(ctx context.Context, token string) (string, error) {
	if p.OwnerID == "" {
		return "", fmt.Errorf("no local owner configured: %w", models.ErrUnauthenticated)
	}
	return p.OwnerID, nil
}

// JWTProvider validates HS256 tokens whose subject is the owner id.
type JWTProvider struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewJWTProvider(secret, issuer string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret), issuer: issuer, now: time.Now}
}

func (p *JWTProvider) Identify(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("missing bearer token: %w", models.ErrUnauthenticated)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("invalid token: %v: %w", err, models.ErrUnauthenticated)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("token has no subject: %w", models.ErrUnauthenticated)
	}
	return claims.Subject, nil
}

// Issue signs a token for ownerID. A zero ttl never expires.
func (p *JWTProvider) Issue(ownerID string, ttl time.Duration) (string, error) {
	now := p.now()
	claims := jwt.RegisteredClaims{
		Subject:  ownerID,
		Issuer:   p.issuer,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("error signing token: %w", err)
	}
	return signed, nil
}
