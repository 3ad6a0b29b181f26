// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package gotrue

import (
	"time"

	"github.com/allev1985/topten-sub005/internal/identity"
)

type userDTO struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
	ConfirmedAt      *time.Time `json:"confirmed_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (u *userDTO) toUser() *identity.User {
	if u == nil || u.ID == "" {
		return nil
	}
	confirmed := u.EmailConfirmedAt
	if confirmed == nil {
		confirmed = u.ConfirmedAt
	}
	return &identity.User{
		ID:               u.ID,
		Email:            u.Email,
		EmailConfirmedAt: confirmed,
		CreatedAt:        u.CreatedAt,
	}
}

type sessionDTO struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	User         *userDTO `json:"user"`
}

// authDTO is what /signup, /token and /verify return: a session with an
// embedded user, or (signup awaiting confirmation) a bare user.
type authDTO struct {
	sessionDTO
	userDTO
}

func (s *sessionDTO) toSession(now time.Time) *identity.Session {
	if s.AccessToken == "" {
		return nil
	}
	expires := now.Add(time.Duration(s.ExpiresIn) * time.Second)
	if s.ExpiresAt > 0 {
		expires = time.Unix(s.ExpiresAt, 0).UTC()
	}
	return &identity.Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    expires,
		User:         s.User.toUser(),
	}
}

func (a *authDTO) toResponse(now time.Time) *identity.AuthResponse {
	session := a.sessionDTO.toSession(now)
	user := a.sessionDTO.User.toUser()
	if user == nil {
		user = a.userDTO.toUser()
	}
	return &identity.AuthResponse{User: user, Session: session}
}

type credentialsBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type recoverBody struct {
	Email string `json:"email"`
}

type verifyBody struct {
	Type      identity.TokenType `json:"type"`
	TokenHash string             `json:"token_hash"`
}

type refreshBody struct {
	RefreshToken string `json:"refresh_token"`
}

type passwordBody struct {
	Password string `json:"password"`
}
