// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package auth

import (
	"time"

	"github.com/allev1985/topten-sub005/internal/identity"
)

// SignupResult is returned by Signup. When RequiresConfirmation is set the
// caller must not treat the signup as a login.
type SignupResult struct {
	RequiresConfirmation bool              `json:"requiresConfirmation"`
	User                 *identity.User    `json:"user"`
	Session              *identity.Session `json:"-"`
}

// LoginResult is returned by Login and ConfirmEmail.
type LoginResult struct {
	User    *identity.User    `json:"user"`
	Session *identity.Session `json:"-"`
}

// LogoutResult is returned by Logout. Success is always true.
type LogoutResult struct {
	Success bool `json:"success"`
}

// ResetPasswordResult is returned by ResetPassword. Success is always true.
type ResetPasswordResult struct {
	Success bool `json:"success"`
}

// UpdatePasswordResult is returned by UpdatePassword and ChangePassword.
type UpdatePasswordResult struct {
	Success bool `json:"success"`
}

// UpdatePasswordOptions selects how UpdatePassword authenticates.
// A non-empty TokenHash takes priority over the caller's session.
type UpdatePasswordOptions struct {
	TokenHash string
	// TokenType defaults to recovery.
	TokenType identity.TokenType
}

// SessionInfo describes the live session without exposing its tokens.
type SessionInfo struct {
	ExpiresAt      time.Time `json:"expiresAt"`
	IsExpiringSoon bool      `json:"isExpiringSoon"`
}

// SessionState is returned by GetSession. Not being signed in is a normal
// state, not an error.
type SessionState struct {
	Authenticated bool           `json:"authenticated"`
	User          *identity.User `json:"user"`
	Session       *SessionInfo   `json:"session"`
}

// RefreshedSession carries the renewed token pair.
type RefreshedSession struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// RefreshResult is returned by RefreshSession.
type RefreshResult struct {
	Session RefreshedSession `json:"session"`
}
