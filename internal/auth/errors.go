// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package auth

import (
	"github.com/samber/oops"

	"github.com/allev1985/topten-sub005/internal/identity"
)

// Kind classifies every failure an auth operation can report.
type Kind string

// The closed set of failure kinds.
const (
	// KindInvalidCredentials covers both wrong password and unknown email.
	KindInvalidCredentials Kind = "INVALID_CREDENTIALS"
	KindEmailNotConfirmed  Kind = "EMAIL_NOT_CONFIRMED"
	KindSessionError       Kind = "SESSION_ERROR"
	KindExpiredToken       Kind = "EXPIRED_TOKEN"
	KindServiceError       Kind = "SERVICE_ERROR"
)

// Kinds lists every Kind.
var Kinds = []Kind{
	KindInvalidCredentials,
	KindEmailNotConfirmed,
	KindSessionError,
	KindExpiredToken,
	KindServiceError,
}

// User-facing messages.
const (
	MsgInvalidCredentials   = "Invalid email or password"
	MsgEmailNotConfirmed    = "Please confirm your email address before logging in"
	MsgSessionInvalid       = "Your session is no longer valid, please log in again"
	MsgTokenExpired         = "This link has expired, please request a new one"
	MsgSessionExpired       = "session has expired, please log in again"
	MsgAuthRequired         = "authentication required"
	MsgAuthFailed           = "authentication failed"
	MsgIncomplete           = "authentication succeeded but incomplete"
	MsgSignupFailed         = "Unable to create account, please try again"
	MsgPasswordUpdateFailed = "Unable to update password, please try again"
	MsgSessionCheckFailed   = "Unable to verify session, please try again"
	MsgCurrentPassword      = "Current password is incorrect"
	MsgGeneric              = "Something went wrong, please try again"
)

// failure describes an auth error before it becomes an error value.
type failure struct {
	kind    Kind
	op      string
	message string
	cause   error
	details map[string]string
}

// build turns the failure into an oops error. The provider error is recorded as
// context rather than wrapped so the error's code is always the kind.
func (e failure) build() error {
	b := oops.Code(string(e.kind)).
		Public(e.message).
		With("operation", e.op)
	if e.cause != nil {
		b = b.With("cause", e.cause.Error())
		if perr, ok := identity.AsError(e.cause); ok {
			b = b.With("provider_code", perr.Code, "provider_status", perr.Status)
		}
	}
	if len(e.details) > 0 {
		b = b.With("details", e.details)
	}
	return b.Errorf("%s: %s", e.op, e.message)
}

func newError(kind Kind, op, message string, cause error) error {
	return failure{kind: kind, op: op, message: message, cause: cause}.build()
}

// NewError creates a taxonomy error for callers outside this package.
func NewError(kind Kind, op, message string, details map[string]string) error {
	return failure{kind: kind, op: op, message: message, details: details}.build()
}

// KindOf returns the kind of err. Errors that did not come from this package
// are SERVICE_ERROR; a nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindServiceError
	}
	code := oopsErr.Code()
	for _, k := range Kinds {
		if code == string(k) {
			return k
		}
	}
	return KindServiceError
}

// Message returns the user-safe message for err.
func Message(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		if msg := oopsErr.Public(); msg != "" {
			return msg
		}
	}
	return MsgGeneric
}

// Details returns the field-level details attached to err, if any.
func Details(err error) map[string]string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	details, _ := oopsErr.Context()["details"].(map[string]string)
	return details
}
