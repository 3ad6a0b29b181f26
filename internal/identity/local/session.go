// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package local

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TokenBytes is the entropy of refresh and one-time tokens (64 hex chars).
const TokenBytes = 32

// Session is a stored sign-in. The refresh token is kept only as a hash.
type Session struct {
	ID               ulid.ULID
	UserID           ulid.ULID
	RefreshTokenHash string
	ExpiresAt        time.Time
	CreatedAt        time.Time
	RefreshedAt      time.Time
}

// NewSession creates a validated Session.
func NewSession(userID ulid.ULID, refreshTokenHash string, now, expiresAt time.Time) (*Session, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if refreshTokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("refresh token hash cannot be empty")
	}
	if !expiresAt.After(now) {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry must be in the future")
	}
	return &Session{
		ID:               ulid.Make(),
		UserID:           userID,
		RefreshTokenHash: refreshTokenHash,
		ExpiresAt:        expiresAt,
		CreatedAt:        now,
		RefreshedAt:      now,
	}, nil
}

// IsExpiredAt returns true if the session is expired at t.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// GenerateToken creates a random token and its sha256 hash.
// The plaintext goes to the client; only the hash is stored.
func GenerateToken() (token, hash string, err error) {
	b := make([]byte, TokenBytes)
	if _, err = rand.Read(b); err != nil {
		return "", "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", TokenBytes).
			Wrap(err)
	}
	token = hex.EncodeToString(b)
	return token, HashToken(token), nil
}

// HashToken returns the hex sha256 of token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifyToken compares token against a stored hash in constant time.
func VerifyToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(hash)) == 1
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	GetByID(ctx context.Context, id ulid.ULID) (*Session, error)
	GetByRefreshTokenHash(ctx context.Context, hash string) (*Session, error)
	// Rotate swaps the refresh token hash only if oldHash is still current,
	// so a refresh token can be used once.
	Rotate(ctx context.Context, id ulid.ULID, oldHash, newHash string, expiresAt, refreshedAt time.Time) error
	Delete(ctx context.Context, id ulid.ULID) error
	DeleteByUser(ctx context.Context, userID ulid.ULID) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
