// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package identity

import (
	"errors"
	"fmt"
	"net/http"
)

// Provider error codes. The vocabulary follows GoTrue's error_code field so
// adapters for GoTrue-compatible servers pass codes through untouched.
const (
	CodeEmailNotConfirmed       = "email_not_confirmed"
	CodeInvalidCredentials      = "invalid_credentials"
	CodeOTPExpired              = "otp_expired"
	CodeOTPInvalid              = "otp_invalid"
	CodeSessionMissing          = "session_missing"
	CodeSessionNotFound         = "session_not_found"
	CodeSessionExpired          = "session_expired"
	CodeRefreshTokenNotFound    = "refresh_token_not_found"
	CodeRefreshTokenAlreadyUsed = "refresh_token_already_used"
	CodeBadJWT                  = "bad_jwt"
	CodeNoAuthorization         = "no_authorization"
	CodeUserNotFound            = "user_not_found"
	CodeUserAlreadyExists       = "user_already_exists"
	CodeUserLocked              = "user_locked"
	CodeWeakPassword            = "weak_password"
	CodeSamePassword            = "same_password"
	CodeValidationFailed        = "validation_failed"
	CodeRateLimited             = "over_request_rate_limit"
	CodeUnexpectedFailure       = "unexpected_failure"
)

// Error is the error shape every adapter returns for provider-side failures.
type Error struct {
	Message string
	Code    string
	Status  int
}

// NewError creates a provider error.
func NewError(status int, code, message string) *Error {
	return &Error{Message: message, Code: code, Status: status}
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("identity provider: %s (status %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("identity provider: %s (code %s, status %d)", e.Message, e.Code, e.Status)
}

// ErrSessionMissing is returned by session-scoped calls made without a session.
var ErrSessionMissing = NewError(http.StatusUnauthorized, CodeSessionMissing, "Auth session missing")

// AsError extracts the provider error from err.
func AsError(err error) (*Error, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

// Classifier detects the provider conditions the auth layer distinguishes.
type Classifier interface {
	IsEmailUnconfirmed(err error) bool
	IsExpiredToken(err error) bool
	IsSessionError(err error) bool
}

var sessionCodes = map[string]bool{
	CodeSessionMissing:          true,
	CodeSessionNotFound:         true,
	CodeSessionExpired:          true,
	CodeRefreshTokenNotFound:    true,
	CodeRefreshTokenAlreadyUsed: true,
	CodeBadJWT:                  true,
	CodeNoAuthorization:         true,
}

// CodeClassifier classifies errors by provider error code.
type CodeClassifier struct{}

// IsEmailUnconfirmed implements Classifier.
func (CodeClassifier) IsEmailUnconfirmed(err error) bool {
	perr, ok := AsError(err)
	return ok && perr.Code == CodeEmailNotConfirmed
}

// IsExpiredToken implements Classifier.
func (CodeClassifier) IsExpiredToken(err error) bool {
	perr, ok := AsError(err)
	return ok && perr.Code == CodeOTPExpired
}

// IsSessionError implements Classifier. A bare 401 with no code counts too.
func (CodeClassifier) IsSessionError(err error) bool {
	perr, ok := AsError(err)
	if !ok {
		return false
	}
	if sessionCodes[perr.Code] {
		return true
	}
	return perr.Code == "" && perr.Status == http.StatusUnauthorized
}

var _ Classifier = CodeClassifier{}
