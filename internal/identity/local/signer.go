// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package local

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinSecretLength is the minimum HS256 secret length in bytes.
const MinSecretLength = 32

// AccessClaims are the claims of an access token. Subject is the user ID and
// ID (jti) identifies the token for revocation.
type AccessClaims struct {
	SessionID string `json:"sid"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// TokenSigner issues and verifies HS256 access tokens.
type TokenSigner struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenSigner creates a TokenSigner.
func NewTokenSigner(secret, issuer string, ttl time.Duration, now func() time.Time) (*TokenSigner, error) {
	if len(secret) < MinSecretLength {
		return nil, oops.Code("SIGNER_INVALID_CONFIG").
			With("min_length", MinSecretLength).
			Errorf("jwt secret is too short")
	}
	if ttl <= 0 {
		return nil, oops.Code("SIGNER_INVALID_CONFIG").Errorf("access token ttl must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &TokenSigner{secret: []byte(secret), issuer: issuer, ttl: ttl, now: now}, nil
}

// Issue signs an access token for a session. It returns the token and its expiry.
func (s *TokenSigner) Issue(user *User, session *Session) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		SessionID: session.ID.String(),
		Email:     user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        ulid.Make().String(),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("SIGNER_SIGN_FAILED").Wrap(err)
	}
	return signed, expiresAt, nil
}

// Parse verifies an access token. Expired tokens fail with errSessionExpired,
// anything else unverifiable with errBadJWT.
func (s *TokenSigner) Parse(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errSessionExpired
		}
		return nil, errBadJWT
	}
	if claims.ID == "" || claims.SessionID == "" || claims.Subject == "" {
		return nil, errBadJWT
	}
	return claims, nil
}

// TTL returns the access token lifetime.
func (s *TokenSigner) TTL() time.Duration { return s.ttl }
