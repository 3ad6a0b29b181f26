// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package local

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/allev1985/topten-sub005/internal/identity"
)

// User is a stored account.
type User struct {
	ID               ulid.ULID
	Email            string
	PasswordHash     string
	EmailConfirmedAt *time.Time
	FailedAttempts   int
	LockedUntil      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewUser creates a validated User. email is stored lower-cased.
func NewUser(email, passwordHash string, now time.Time) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, oops.Code("USER_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	return &User{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsConfirmed reports whether the email address has been confirmed.
func (u *User) IsConfirmed() bool {
	return u.EmailConfirmedAt != nil
}

// IsLockedAt reports whether the account is locked at now.
func (u *User) IsLockedAt(now time.Time) bool {
	return IsLockedOut(u.LockedUntil, now)
}

// RecordFailure counts a failed sign-in and locks the account at the threshold.
func (u *User) RecordFailure(now time.Time) {
	u.FailedAttempts++
	u.LockedUntil = ComputeLockoutTime(u.FailedAttempts, now)
	u.UpdatedAt = now
}

// RecordSuccess clears the failure counter and any lockout.
func (u *User) RecordSuccess(now time.Time) {
	u.FailedAttempts = 0
	u.LockedUntil = nil
	u.UpdatedAt = now
}

// Confirm marks the email address confirmed. Confirming twice keeps the first time.
func (u *User) Confirm(now time.Time) {
	if u.EmailConfirmedAt == nil {
		t := now
		u.EmailConfirmedAt = &t
	}
	u.UpdatedAt = now
}

// Identity returns the public view of the user.
func (u *User) Identity() *identity.User {
	out := &identity.User{
		ID:        u.ID.String(),
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
	if u.EmailConfirmedAt != nil {
		t := *u.EmailConfirmedAt
		out.EmailConfirmedAt = &t
	}
	return out
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user. A duplicate email fails with user_already_exists.
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)
	// GetByEmail looks up by email, case-insensitively.
	GetByEmail(ctx context.Context, email string) (*User, error)
	// Update writes confirmation and lockout state.
	Update(ctx context.Context, user *User) error
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error
}
