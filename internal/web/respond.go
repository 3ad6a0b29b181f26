// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/allev1985/topten-sub005/internal/auth"
	"github.com/allev1985/topten-sub005/internal/identity"
)

// KindValidation reports request bodies that fail field validation before
// reaching the auth service.
const KindValidation = "VALIDATION_ERROR"

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// ErrorBody is the JSON shape of every failure response.
type ErrorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// StatusFor maps a taxonomy kind to its HTTP status.
func StatusFor(kind auth.Kind) int {
	switch kind {
	case auth.KindInvalidCredentials, auth.KindSessionError:
		return http.StatusUnauthorized
	case auth.KindEmailNotConfirmed:
		return http.StatusForbidden
	case auth.KindExpiredToken:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to write response body (best-effort)", "operation", "write_json", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := auth.KindOf(err)
	writeJSON(w, StatusFor(kind), ErrorBody{
		Error:   string(kind),
		Message: auth.Message(err),
		Details: auth.Details(err),
	})
}

func writeValidation(w http.ResponseWriter, details map[string]string) {
	message := "Please correct the highlighted fields"
	writeJSON(w, http.StatusBadRequest, ErrorBody{Error: KindValidation, Message: message, Details: details})
}

// decode reads a JSON body into dst. It reports false after writing a 400.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: KindValidation, Message: "invalid request body"})
		return false
	}
	return true
}

type userKey struct{}

func withUser(ctx context.Context, user *identity.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFrom returns the user the route guard authenticated, or nil.
func UserFrom(ctx context.Context) *identity.User {
	user, _ := ctx.Value(userKey{}).(*identity.User)
	return user
}
