// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/allev1985/topten-sub005/internal/identity"
	"github.com/allev1985/topten-sub005/internal/identity/local"
	"github.com/allev1985/topten-sub005/internal/store"
)

// TokenRepository implements local.TokenRepository using PostgreSQL.
type TokenRepository struct {
	pool store.Pool
}

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(pool store.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// Create stores a new one-time token.
func (r *TokenRepository) Create(ctx context.Context, t *local.OneTimeToken) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO one_time_tokens (id, user_id, type, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.ID.String(), t.UserID.String(), string(t.Type), t.TokenHash, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		return oops.Code("TOKEN_CREATE_FAILED").
			With("operation", "insert one-time token").
			With("user_id", t.UserID.String()).
			With("type", string(t.Type)).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a token by its hash.
func (r *TokenRepository) GetByTokenHash(ctx context.Context, hash string) (*local.OneTimeToken, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, type, token_hash, expires_at, created_at
		FROM one_time_tokens
		WHERE token_hash = $1
	`, hash)

	var (
		idStr, userIDStr, typ string
		t                     local.OneTimeToken
	)
	err := row.Scan(&idStr, &userIDStr, &typ, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(local.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("TOKEN_GET_FAILED").
			With("operation", "get one-time token").
			Wrap(err)
	}

	if t.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("TOKEN_INVALID_ID").With("id", idStr).Wrap(err)
	}
	if t.UserID, err = ulid.Parse(userIDStr); err != nil {
		return nil, oops.Code("TOKEN_INVALID_USER_ID").With("user_id", userIDStr).Wrap(err)
	}
	t.Type = identity.TokenType(typ)
	return &t, nil
}

// Delete removes a token by ID.
func (r *TokenRepository) Delete(ctx context.Context, id ulid.ULID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM one_time_tokens WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("TOKEN_DELETE_FAILED").
			With("operation", "delete one-time token").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("TOKEN_NOT_FOUND").With("id", id.String()).Wrap(local.ErrNotFound)
	}
	return nil
}

// DeleteByUser removes a user's tokens of one type.
func (r *TokenRepository) DeleteByUser(ctx context.Context, userID ulid.ULID, tokenType identity.TokenType) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM one_time_tokens WHERE user_id = $1 AND type = $2
	`, userID.String(), string(tokenType))
	if err != nil {
		return oops.Code("TOKEN_DELETE_BY_USER_FAILED").
			With("operation", "delete one-time tokens by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes tokens expired at now and returns the count.
func (r *TokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM one_time_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, oops.Code("TOKEN_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired one-time tokens").
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

var (
	_ local.UserRepository    = (*UserRepository)(nil)
	_ local.SessionRepository = (*SessionRepository)(nil)
	_ local.TokenRepository   = (*TokenRepository)(nil)
)
