// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package web_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allev1985/topten-sub005/internal/auth"
	"github.com/allev1985/topten-sub005/internal/identity"
	"github.com/allev1985/topten-sub005/internal/identity/local"
	"github.com/allev1985/topten-sub005/internal/identity/local/revocation"
	"github.com/allev1985/topten-sub005/internal/web"
)

// browser replays the cookies the router sets, like a real client.
type browser struct {
	t       *testing.T
	router  http.Handler
	cookies map[string]*http.Cookie
}

func (b *browser) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	b.router.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return rec
}

func newLocalStack(t *testing.T) (*browser, *local.MemoryMailer) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mailer := local.NewMemoryMailer()

	cfg := local.DefaultConfig()
	cfg.JWTSecret = "0123456789abcdef0123456789abcdef"
	provider, err := local.NewProvider(local.Deps{
		Users:       local.NewMemoryUsers(),
		Sessions:    local.NewMemorySessions(),
		Tokens:      local.NewMemoryTokens(),
		Revocations: revocation.NewMemory(time.Now),
		Mailer:      mailer,
		Hasher:      local.NewArgon2idHasherWithParams(local.Argon2Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32}),
	}, cfg, local.WithLogger(logger))
	require.NoError(t, err)

	svc, err := auth.NewService(provider, identity.CodeClassifier{}, auth.Config{SiteURL: "http://localhost"}, auth.WithLogger(logger))
	require.NoError(t, err)

	h, err := web.NewHandler(svc, web.Options{
		ProtectedPaths: []string{"/dashboard/**", "/api/me"},
	}, logger)
	require.NoError(t, err)

	return &browser{t: t, router: h.Routes(), cookies: map[string]*http.Cookie{}}, mailer
}

func TestFlow_SignupConfirmLogout(t *testing.T) {
	b, mailer := newLocalStack(t)

	rec := b.do(http.MethodPost, "/api/auth/signup", `{"email":"Ada@Example.com","password":"`+strongPassword+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"requiresConfirmation":true`)
	assert.Empty(t, b.cookies, "no session before confirmation")

	// logging in before confirming is refused
	rec = b.do(http.MethodPost, "/api/auth/login", `{"email":"ada@example.com","password":"`+strongPassword+`"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	msg, ok := mailer.Last("ada@example.com")
	require.True(t, ok)
	link, err := url.Parse(msg.Link)
	require.NoError(t, err)
	assert.Equal(t, "/auth/confirm", link.Path)
	q := link.Query()
	q.Set("next", "/dashboard/lists")

	rec = b.do(http.MethodGet, "/auth/confirm?"+q.Encode(), "")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard/lists", rec.Header().Get("Location"))
	require.Contains(t, b.cookies, web.CookieAccessToken)

	rec = b.do(http.MethodGet, "/api/auth/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"authenticated":true`)

	rec = b.do(http.MethodGet, "/api/me", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ada@example.com")

	stolen := map[string]*http.Cookie{}
	for k, v := range b.cookies {
		stolen[k] = v
	}

	rec = b.do(http.MethodPost, "/api/auth/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, b.cookies, "logout clears the cookies")

	rec = b.do(http.MethodGet, "/dashboard/lists", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?redirectTo=%2Fdashboard%2Flists", rec.Header().Get("Location"))

	// the signed-out tokens stay dead even if replayed
	b.cookies = stolen
	rec = b.do(http.MethodGet, "/api/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFlow_LoginWrongPasswordMatchesUnknownEmail(t *testing.T) {
	b, mailer := newLocalStack(t)

	rec := b.do(http.MethodPost, "/api/auth/signup", `{"email":"ada@example.com","password":"`+strongPassword+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	msg, ok := mailer.Last("ada@example.com")
	require.True(t, ok)
	link, err := url.Parse(msg.Link)
	require.NoError(t, err)
	rec = b.do(http.MethodGet, "/auth/confirm?"+link.RawQuery, "")
	require.Equal(t, http.StatusSeeOther, rec.Code)

	wrong := b.do(http.MethodPost, "/api/auth/login", `{"email":"ada@example.com","password":"Wrong-Horse-99"}`)
	unknown := b.do(http.MethodPost, "/api/auth/login", `{"email":"bob@example.com","password":"Wrong-Horse-99"}`)

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, wrong.Code, unknown.Code)
	assert.JSONEq(t, wrong.Body.String(), unknown.Body.String())
}
