// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package local

import (
	"errors"
	"net/http"

	"github.com/allev1985/topten-sub005/internal/identity"
)

// ErrNotFound is returned by repositories when a record does not exist.
var ErrNotFound = errors.New("not found")

// Provider errors. Codes and statuses mirror what a GoTrue server returns for
// the same condition so both adapters classify alike.
var (
	errInvalidCredentials = identity.NewError(http.StatusBadRequest, identity.CodeInvalidCredentials, "Invalid login credentials")
	errEmailNotConfirmed  = identity.NewError(http.StatusBadRequest, identity.CodeEmailNotConfirmed, "Email not confirmed")
	errUserExists         = identity.NewError(http.StatusUnprocessableEntity, identity.CodeUserAlreadyExists, "User already registered")
	errUserLocked         = identity.NewError(http.StatusTooManyRequests, identity.CodeUserLocked, "Too many failed attempts, try again later")
	errOTPExpired         = identity.NewError(http.StatusForbidden, identity.CodeOTPExpired, "Token has expired or is invalid")
	errOTPInvalid         = identity.NewError(http.StatusForbidden, identity.CodeOTPInvalid, "Token has expired or is invalid")
	errSessionExpired     = identity.NewError(http.StatusUnauthorized, identity.CodeSessionExpired, "Session expired")
	errSessionNotFound    = identity.NewError(http.StatusUnauthorized, identity.CodeSessionNotFound, "Session not found")
	errBadJWT             = identity.NewError(http.StatusUnauthorized, identity.CodeBadJWT, "Invalid JWT")
	errRefreshNotFound    = identity.NewError(http.StatusBadRequest, identity.CodeRefreshTokenNotFound, "Invalid Refresh Token: Refresh Token Not Found")
	errRefreshUsed        = identity.NewError(http.StatusBadRequest, identity.CodeRefreshTokenAlreadyUsed, "Invalid Refresh Token: Already Used")
	errUserNotFound       = identity.NewError(http.StatusNotFound, identity.CodeUserNotFound, "User not found")
)

// ErrUserAlreadyExists is returned by UserRepository.Create for a duplicate email.
var ErrUserAlreadyExists = errUserExists
