// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package local

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/allev1985/topten-sub005/internal/identity"
)

// MemoryUsers is an in-memory UserRepository.
type MemoryUsers struct {
	mu    sync.RWMutex
	users map[ulid.ULID]User
}

// NewMemoryUsers creates an empty MemoryUsers.
func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: make(map[ulid.ULID]User)}
}

// Create implements UserRepository.
func (r *MemoryUsers) Create(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return ErrUserAlreadyExists
		}
	}
	r.users[user.ID] = *user
	return nil
}

// GetByID implements UserRepository.
func (r *MemoryUsers) GetByID(_ context.Context, id ulid.ULID) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(ErrNotFound)
	}
	return &u, nil
}

// GetByEmail implements UserRepository.
func (r *MemoryUsers) GetByEmail(_ context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, oops.Code("USER_NOT_FOUND").Wrap(ErrNotFound)
}

// Update implements UserRepository.
func (r *MemoryUsers) Update(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return oops.Code("USER_NOT_FOUND").With("id", user.ID.String()).Wrap(ErrNotFound)
	}
	r.users[user.ID] = *user
	return nil
}

// UpdatePassword implements UserRepository.
func (r *MemoryUsers) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(ErrNotFound)
	}
	u.PasswordHash = passwordHash
	r.users[id] = u
	return nil
}

// MemorySessions is an in-memory SessionRepository.
type MemorySessions struct {
	mu       sync.RWMutex
	sessions map[ulid.ULID]Session
}

// NewMemorySessions creates an empty MemorySessions.
func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[ulid.ULID]Session)}
}

// Create implements SessionRepository.
func (r *MemorySessions) Create(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = *s
	return nil
}

// GetByID implements SessionRepository.
func (r *MemorySessions) GetByID(_ context.Context, id ulid.ULID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, oops.Code("SESSION_NOT_FOUND").With("id", id.String()).Wrap(ErrNotFound)
	}
	return &s, nil
}

// GetByRefreshTokenHash implements SessionRepository.
func (r *MemorySessions) GetByRefreshTokenHash(_ context.Context, hash string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.RefreshTokenHash == hash {
			return &s, nil
		}
	}
	return nil, oops.Code("SESSION_NOT_FOUND").Wrap(ErrNotFound)
}

// Rotate implements SessionRepository.
func (r *MemorySessions) Rotate(_ context.Context, id ulid.ULID, oldHash, newHash string, expiresAt, refreshedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.RefreshTokenHash != oldHash {
		return oops.Code("SESSION_NOT_FOUND").With("id", id.String()).Wrap(ErrNotFound)
	}
	s.RefreshTokenHash = newHash
	s.ExpiresAt = expiresAt
	s.RefreshedAt = refreshedAt
	r.sessions[id] = s
	return nil
}

// Delete implements SessionRepository.
func (r *MemorySessions) Delete(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return oops.Code("SESSION_NOT_FOUND").With("id", id.String()).Wrap(ErrNotFound)
	}
	delete(r.sessions, id)
	return nil
}

// DeleteByUser implements SessionRepository.
func (r *MemorySessions) DeleteByUser(_ context.Context, userID ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
		}
	}
	return nil
}

// DeleteExpired implements SessionRepository.
func (r *MemorySessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.IsExpiredAt(now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

// MemoryTokens is an in-memory TokenRepository.
type MemoryTokens struct {
	mu     sync.RWMutex
	tokens map[ulid.ULID]OneTimeToken
}

// NewMemoryTokens creates an empty MemoryTokens.
func NewMemoryTokens() *MemoryTokens {
	return &MemoryTokens{tokens: make(map[ulid.ULID]OneTimeToken)}
}

// Create implements TokenRepository.
func (r *MemoryTokens) Create(_ context.Context, t *OneTimeToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[t.ID] = *t
	return nil
}

// GetByTokenHash implements TokenRepository.
func (r *MemoryTokens) GetByTokenHash(_ context.Context, hash string) (*OneTimeToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tokens {
		if t.TokenHash == hash {
			return &t, nil
		}
	}
	return nil, oops.Code("TOKEN_NOT_FOUND").Wrap(ErrNotFound)
}

// Delete implements TokenRepository.
func (r *MemoryTokens) Delete(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[id]; !ok {
		return oops.Code("TOKEN_NOT_FOUND").With("id", id.String()).Wrap(ErrNotFound)
	}
	delete(r.tokens, id)
	return nil
}

// DeleteByUser implements TokenRepository.
func (r *MemoryTokens) DeleteByUser(_ context.Context, userID ulid.ULID, tokenType identity.TokenType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tokens {
		if t.UserID == userID && t.Type == tokenType {
			delete(r.tokens, id)
		}
	}
	return nil
}

// DeleteExpired implements TokenRepository.
func (r *MemoryTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.tokens {
		if t.IsExpiredAt(now) {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}

var (
	_ UserRepository    = (*MemoryUsers)(nil)
	_ SessionRepository = (*MemorySessions)(nil)
	_ TokenRepository   = (*MemoryTokens)(nil)
)
