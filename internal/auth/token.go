// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

// DefaultTokenTTL is the lifetime of an access token.
const DefaultTokenTTL = 2 * time.Hour

// MinSecretLength is the shortest signing secret NewJWTIssuer accepts.
const MinSecretLength = 16

// Identity is the subject of an access token.
type Identity struct {
	Email         string
	WalletAddress string
}

// Claims are the JWT claims carried by an access token.
type Claims struct {
	WalletAddress string `json:"walletAddress,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer mints bearer tokens.
type TokenIssuer interface {
	Issue(id Identity, ttl time.Duration) (string, error)
}

// JWTIssuer signs and verifies HS256 access tokens with a process-wide secret.
type JWTIssuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// IssuerOption configures a JWTIssuer.
type IssuerOption func(*JWTIssuer)

// WithIssuerClock overrides the clock used for iat, exp and expiry checks.
func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(j *JWTIssuer) { j.now = now }
}

// NewJWTIssuer creates a JWTIssuer. The secret is copied and never changes
// for the lifetime of the issuer.
func NewJWTIssuer(secret, issuer string, opts ...IssuerOption) (*JWTIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, oops.Code("TOKEN_SECRET_INVALID").
			With("min_length", MinSecretLength).
			Errorf("token signing secret must be at least %d bytes", MinSecretLength)
	}
	j := &JWTIssuer{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Issue signs a token for id that expires after ttl.
func (j *JWTIssuer) Issue(id Identity, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := j.now()
	claims := Claims{
		WalletAddress: id.WalletAddress,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    j.issuer,
			Subject:   id.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

// Verify parses a token, checking its signature, algorithm and expiry.
func (j *JWTIssuer) Verify(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return j.secret, nil
	}, opts...)
	if err != nil {
		return nil, oops.Code("TOKEN_INVALID").Wrap(err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, oops.Code("TOKEN_INVALID").Errorf("token has no subject")
	}
	return claims, nil
}
