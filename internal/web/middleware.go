// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package web

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/allev1985/topten-sub005/internal/auth"
	"github.com/allev1985/topten-sub005/internal/identity"
	"github.com/allev1985/topten-sub005/internal/redirect"
)

// RequestRecorder receives one observation per finished request.
type RequestRecorder interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

// requestLogger logs every request once it completes and feeds recorder.
// The route label is chi's pattern, not the raw path.
func requestLogger(logger *slog.Logger, recorder RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}

			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "http request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"route", route,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", elapsed.Milliseconds(),
			)
			if recorder != nil {
				recorder.ObserveRequest(r.Method, route, status, elapsed)
			}
		})
	}
}

// sessionCookies puts a CookieStore for this request in the context so the
// identity provider reads and writes the caller's cookies.
func sessionCookies(opts CookieOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store := NewCookieStore(w, r, opts)
			next.ServeHTTP(w, r.WithContext(identity.WithSessionStore(r.Context(), store)))
		})
	}
}

// Guard decides which paths need a signed-in user.
type Guard struct {
	patterns  []glob.Glob
	loginPath string
	redirects *redirect.Validator
}

// NewGuard compiles the protected path patterns. "*" matches within one
// path segment, "**" across segments.
func NewGuard(patterns []string, loginPath string, redirects *redirect.Validator) (*Guard, error) {
	g := &Guard{loginPath: loginPath, redirects: redirects}
	for _, p := range patterns {
		compiled, err := glob.Compile(p, '/')
		if err != nil {
			return nil, oops.Code("WEB_INVALID_CONFIG").With("pattern", p).Wrap(err)
		}
		g.patterns = append(g.patterns, compiled)
	}
	return g, nil
}

// Protects reports whether path requires a signed-in user.
func (g *Guard) Protects(path string) bool {
	for _, p := range g.patterns {
		if p.Match(path) {
			return true
		}
	}
	return false
}

// LoginRedirect builds the login URL that returns the user to target.
func (g *Guard) LoginRedirect(target string) string {
	q := url.Values{"redirectTo": {g.redirects.Resolve(target)}}
	return g.loginPath + "?" + q.Encode()
}

func isAPI(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}

// protect blocks unauthenticated access to guarded paths. Browsers are sent
// to the login page; API callers get 401.
func (h *Handler) protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.guard == nil || !h.guard.Protects(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		state, err := h.auth.GetSession(r.Context())
		if err == nil && state != nil && state.Authenticated {
			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), state.User)))
			return
		}
		if err != nil {
			h.logger.WarnContext(r.Context(), "session check failed on protected path",
				"path", r.URL.Path, "error", err)
		}

		if isAPI(r.URL.Path) {
			writeError(w, auth.NewError(auth.KindSessionError, "protect", auth.MsgAuthRequired, nil))
			return
		}
		http.Redirect(w, r, h.guard.LoginRedirect(r.URL.RequestURI()), http.StatusSeeOther)
	})
}
