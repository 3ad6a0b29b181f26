// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package local

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/allev1985/topten-sub005/internal/identity"
)

// OneTimeToken is an emailed single-use token for signup confirmation or
// password recovery.
type OneTimeToken struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	Type      identity.TokenType
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewOneTimeToken creates a validated OneTimeToken.
func NewOneTimeToken(userID ulid.ULID, tokenType identity.TokenType, tokenHash string, now, expiresAt time.Time) (*OneTimeToken, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("TOKEN_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if !tokenType.Valid() {
		return nil, oops.Code("TOKEN_INVALID_TYPE").With("type", string(tokenType)).Errorf("unknown token type")
	}
	if tokenHash == "" {
		return nil, oops.Code("TOKEN_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if !expiresAt.After(now) {
		return nil, oops.Code("TOKEN_INVALID_EXPIRY").Errorf("expiry must be in the future")
	}
	return &OneTimeToken{
		ID:        ulid.Make(),
		UserID:    userID,
		Type:      tokenType,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}, nil
}

// IsExpiredAt returns true if the token is expired at t.
func (t *OneTimeToken) IsExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// TokenRepository manages one-time token persistence.
type TokenRepository interface {
	Create(ctx context.Context, token *OneTimeToken) error
	GetByTokenHash(ctx context.Context, hash string) (*OneTimeToken, error)
	Delete(ctx context.Context, id ulid.ULID) error
	// DeleteByUser removes every token of tokenType issued to userID.
	DeleteByUser(ctx context.Context, userID ulid.ULID, tokenType identity.TokenType) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
