// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

// Package auth orchestrates account operations against an identity provider.
//
// # Services
//
// Service exposes signup, login, logout, password reset, password update,
// password change, email confirmation and session inspection. It owns no
// credentials: every call opens an identity.Provider handle through an
// identity.Opener and translates the outcome.
//
// # Errors
//
// Every failure carries exactly one Kind as its oops code and a user-safe
// public message. Use KindOf and Message to inspect returned errors; provider
// error text never reaches the public message.
//
// Logout and ResetPassword never fail. Provider failures in those calls are
// logged at WARN and recorded with the suppressed_error outcome.
package auth
