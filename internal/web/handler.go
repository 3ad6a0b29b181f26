// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

// Package web exposes the auth service over HTTP: JSON endpoints for the
// front end, the email confirmation landing route and path protection.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/allev1985/topten-sub005/internal/auth"
	"github.com/allev1985/topten-sub005/internal/identity"
	"github.com/allev1985/topten-sub005/internal/redirect"
)

// AuthService is the subset of *auth.Service the handlers call.
type AuthService interface {
	Signup(ctx context.Context, email, password, redirectURL string) (*auth.SignupResult, error)
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	Logout(ctx context.Context) *auth.LogoutResult
	ResetPassword(ctx context.Context, email, redirectURL string) *auth.ResetPasswordResult
	UpdatePassword(ctx context.Context, newPassword string, opts auth.UpdatePasswordOptions) (*auth.UpdatePasswordResult, error)
	ChangePassword(ctx context.Context, currentPassword, newPassword string) (*auth.UpdatePasswordResult, error)
	ConfirmEmail(ctx context.Context, tokenHash string, tokenType identity.TokenType) (*auth.LoginResult, error)
	GetSession(ctx context.Context) (*auth.SessionState, error)
	RefreshSession(ctx context.Context) (*auth.RefreshResult, error)
}

var _ AuthService = (*auth.Service)(nil)

// Options configures the HTTP layer.
type Options struct {
	// ProtectedPaths are glob patterns that require a signed-in user.
	ProtectedPaths []string
	// LoginPath receives unauthenticated browsers.
	LoginPath string
	// DefaultRedirect is where validated redirects fall back to.
	DefaultRedirect string
	Cookies         CookieOptions
	// Pages serves everything the API does not, behind the same guard.
	Pages http.Handler
	// Recorder receives request metrics; nil disables them.
	Recorder RequestRecorder
}

// Handler serves the auth API.
type Handler struct {
	auth      AuthService
	redirects *redirect.Validator
	guard     *Guard
	opts      Options
	logger    *slog.Logger
}

// NewHandler validates opts and builds a Handler.
func NewHandler(svc AuthService, opts Options, logger *slog.Logger) (*Handler, error) {
	if svc == nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("auth service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.LoginPath == "" {
		opts.LoginPath = "/login"
	}
	if !strings.HasPrefix(opts.LoginPath, "/") {
		return nil, oops.Code("WEB_INVALID_CONFIG").With("login_path", opts.LoginPath).Errorf("login path must start with /")
	}

	redirects := redirect.New(opts.DefaultRedirect)
	guard, err := NewGuard(opts.ProtectedPaths, opts.LoginPath, redirects)
	if err != nil {
		return nil, err
	}
	return &Handler{auth: svc, redirects: redirects, guard: guard, opts: opts, logger: logger}, nil
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger, h.opts.Recorder))
	r.Use(middleware.Recoverer)
	r.Use(sessionCookies(h.opts.Cookies))
	r.Use(h.protect)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", h.handleSignup)
		r.Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)
		r.Post("/password/reset", h.handleResetPassword)
		r.Post("/password/update", h.handleUpdatePassword)
		r.Post("/password/change", h.handleChangePassword)
		r.Get("/session", h.handleGetSession)
		r.Post("/session/refresh", h.handleRefreshSession)
	})
	r.Get("/api/me", h.handleMe)
	r.Get("/auth/confirm", h.handleConfirm)

	if h.opts.Pages != nil {
		r.NotFound(h.opts.Pages.ServeHTTP)
	}
	return r
}

type credentialsRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RedirectTo string `json:"redirectTo"`
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}
	fields := fieldErrors{}
	fields.email("email", req.Email)
	fields.newPassword("password", req.Password)
	if !fields.empty() {
		writeValidation(w, fields)
		return
	}

	res, err := h.auth.Signup(r.Context(), req.Email, req.Password, "")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		*auth.SignupResult
		RedirectTo string `json:"redirectTo,omitempty"`
	}{res, h.afterAuth(res.RequiresConfirmation, req.RedirectTo)})
}

// afterAuth is the validated post-login target, or empty when the user is
// not signed in yet.
func (h *Handler) afterAuth(pending bool, candidate string) string {
	if pending {
		return ""
	}
	return h.redirects.Resolve(candidate)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}
	fields := fieldErrors{}
	fields.email("email", req.Email)
	fields.required("password", req.Password, "Password is required")
	if !fields.empty() {
		writeValidation(w, fields)
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":       res.User,
		"redirectTo": h.redirects.Resolve(req.RedirectTo),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.auth.Logout(r.Context()))
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &req) {
		return
	}
	fields := fieldErrors{}
	fields.email("email", req.Email)
	if !fields.empty() {
		writeValidation(w, fields)
		return
	}
	writeJSON(w, http.StatusOK, h.auth.ResetPassword(r.Context(), req.Email, ""))
}

func (h *Handler) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password  string             `json:"password"`
		TokenHash string             `json:"tokenHash"`
		Type      identity.TokenType `json:"type"`
	}
	if !decode(w, r, &req) {
		return
	}
	fields := fieldErrors{}
	fields.newPassword("password", req.Password)
	if req.Type != "" && !req.Type.Valid() {
		fields["type"] = "Unknown token type"
	}
	if !fields.empty() {
		writeValidation(w, fields)
		return
	}

	res, err := h.auth.UpdatePassword(r.Context(), req.Password, auth.UpdatePasswordOptions{
		TokenHash: req.TokenHash,
		TokenType: req.Type,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !decode(w, r, &req) {
		return
	}
	fields := fieldErrors{}
	fields.required("currentPassword", req.CurrentPassword, "Current password is required")
	fields.newPassword("newPassword", req.NewPassword)
	if fields.empty() && req.CurrentPassword == req.NewPassword {
		fields["newPassword"] = "New password must differ from the current one"
	}
	if !fields.empty() {
		writeValidation(w, fields)
		return
	}

	res, err := h.auth.ChangePassword(r.Context(), req.CurrentPassword, req.NewPassword)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	state, err := h.auth.GetSession(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleRefreshSession renews the tokens. The provider has already written
// them to the cookies, so only the expiry goes in the body.
func (h *Handler) handleRefreshSession(w http.ResponseWriter, r *http.Request) {
	res, err := h.auth.RefreshSession(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": map[string]time.Time{"expiresAt": res.Session.ExpiresAt},
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user := UserFrom(r.Context())
	if user == nil {
		writeError(w, auth.NewError(auth.KindSessionError, "me", auth.MsgAuthRequired, nil))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// handleConfirm is the landing route of confirmation emails. Failures go
// back to the login page with the failure kind in the query.
func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tokenType := identity.TokenType(q.Get("type"))
	if tokenType != "" && !tokenType.Valid() {
		h.redirectLoginWithError(w, r, auth.KindServiceError)
		return
	}

	_, err := h.auth.ConfirmEmail(r.Context(), q.Get("token_hash"), tokenType)
	if err != nil {
		h.redirectLoginWithError(w, r, auth.KindOf(err))
		return
	}
	http.Redirect(w, r, h.redirects.Resolve(q.Get("next")), http.StatusSeeOther)
}

func (h *Handler) redirectLoginWithError(w http.ResponseWriter, r *http.Request, kind auth.Kind) {
	q := url.Values{"error": {strings.ToLower(string(kind))}}
	http.Redirect(w, r, h.opts.LoginPath+"?"+q.Encode(), http.StatusSeeOther)
}
