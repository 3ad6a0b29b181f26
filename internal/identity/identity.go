// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

// Package identity defines the contract between the auth orchestration layer
// and an external identity provider.
//
// The provider is the system of record for credentials, sessions and
// one-time tokens. Adapters in subpackages implement Provider for a concrete
// backend; the orchestration layer never sees provider-specific types.
package identity

import (
	"context"
	"time"
)

// TokenType identifies the purpose of a one-time token.
type TokenType string

// One-time token types, named after the GoTrue verify types.
const (
	TokenTypeSignup      TokenType = "signup"
	TokenTypeRecovery    TokenType = "recovery"
	TokenTypeEmail       TokenType = "email"
	TokenTypeInvite      TokenType = "invite"
	TokenTypeMagicLink   TokenType = "magiclink"
	TokenTypeEmailChange TokenType = "email_change"
)

// Valid reports whether t is a known token type.
func (t TokenType) Valid() bool {
	switch t {
	case TokenTypeSignup, TokenTypeRecovery, TokenTypeEmail, TokenTypeInvite,
		TokenTypeMagicLink, TokenTypeEmailChange:
		return true
	}
	return false
}

// User is the authenticated principal.
type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Session is the provider-issued proof of authentication.
// User may be nil when the session was rehydrated from a cookie.
type Session struct {
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         *User     `json:"user,omitempty"`
}

// IsExpiredAt returns true if the access token is expired at t.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// AuthResponse is returned by calls that may establish a session.
// Session is nil when the provider requires further verification.
type AuthResponse struct {
	User    *User
	Session *Session
}

// SignUpParams holds the inputs for account creation.
type SignUpParams struct {
	Email    string
	Password string
	// RedirectTo is embedded in the confirmation link.
	RedirectTo string
}

// Provider is a per-request handle to the identity provider. A handle is
// bound to the SessionStore of the request that opened it.
type Provider interface {
	SignUp(ctx context.Context, params SignUpParams) (*AuthResponse, error)
	SignInWithPassword(ctx context.Context, email, password string) (*AuthResponse, error)
	// SignOut ends the current session. Signing out without a session is not an error.
	SignOut(ctx context.Context) error
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	VerifyOTP(ctx context.Context, tokenHash string, tokenType TokenType) (*AuthResponse, error)
	UpdateUserPassword(ctx context.Context, password string) (*User, error)
	GetUser(ctx context.Context) (*User, error)
	// GetSession returns (nil, nil) when there is no session.
	GetSession(ctx context.Context) (*Session, error)
	RefreshSession(ctx context.Context) (*Session, error)
}

// Opener opens a provider handle for one call.
type Opener interface {
	Open(ctx context.Context) (Provider, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context) (Provider, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context) (Provider, error) {
	return f(ctx)
}
