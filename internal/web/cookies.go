// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package web

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/allev1985/topten-sub005/internal/identity"
)

// Session cookie names.
const (
	CookieAccessToken  = "topten-access-token"
	CookieRefreshToken = "topten-refresh-token"
	CookieExpiresAt    = "topten-expires-at"
)

// DefaultCookieMaxAge matches the local provider's refresh token lifetime.
const DefaultCookieMaxAge = 30 * 24 * time.Hour

// CookieOptions controls the attributes of the session cookies.
type CookieOptions struct {
	Secure bool
	Domain string
	MaxAge time.Duration
}

// CookieStore is an identity.SessionStore backed by the request's cookies.
// Writes go to the response and are visible to later loads in the same
// request.
type CookieStore struct {
	w    http.ResponseWriter
	r    *http.Request
	opts CookieOptions

	mu      sync.Mutex
	written bool
	current *identity.Session
}

// NewCookieStore binds a store to one request/response pair.
func NewCookieStore(w http.ResponseWriter, r *http.Request, opts CookieOptions) *CookieStore {
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultCookieMaxAge
	}
	return &CookieStore{w: w, r: r, opts: opts}
}

// Load returns the session in the cookies, or nil when there is none.
func (c *CookieStore) Load(_ context.Context) (*identity.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.written {
		if c.current == nil {
			return nil, nil
		}
		cp := *c.current
		return &cp, nil
	}

	access := c.cookieValue(CookieAccessToken)
	refresh := c.cookieValue(CookieRefreshToken)
	if access == "" && refresh == "" {
		return nil, nil
	}

	// An unreadable expiry is treated as already expired so the provider
	// refreshes.
	var expires time.Time
	if raw := c.cookieValue(CookieExpiresAt); raw != "" {
		if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
			expires = time.Unix(unix, 0).UTC()
		}
	}
	return &identity.Session{AccessToken: access, RefreshToken: refresh, ExpiresAt: expires}, nil
}

// Save writes the session cookies.
func (c *CookieStore) Save(_ context.Context, session *identity.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if session == nil {
		c.clearLocked()
		return nil
	}
	maxAge := int(c.opts.MaxAge / time.Second)
	c.set(CookieAccessToken, session.AccessToken, maxAge)
	c.set(CookieRefreshToken, session.RefreshToken, maxAge)
	c.set(CookieExpiresAt, strconv.FormatInt(session.ExpiresAt.Unix(), 10), maxAge)

	cp := *session
	c.current = &cp
	c.written = true
	return nil
}

// Clear expires the session cookies.
func (c *CookieStore) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
	return nil
}

func (c *CookieStore) clearLocked() {
	for _, name := range []string{CookieAccessToken, CookieRefreshToken, CookieExpiresAt} {
		c.set(name, "", -1)
	}
	c.current = nil
	c.written = true
}

func (c *CookieStore) set(name, value string, maxAge int) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.opts.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		cookie.Expires = time.Now().Add(time.Duration(maxAge) * time.Second)
	}
	c.dropPending(name)
	http.SetCookie(c.w, cookie)
}

// dropPending removes a Set-Cookie header for name that an earlier Save or
// Clear in this request already wrote, so the response carries one value
// per cookie.
func (c *CookieStore) dropPending(name string) {
	h := c.w.Header()
	prefix := name + "="
	var kept []string
	for _, v := range h.Values("Set-Cookie") {
		if !strings.HasPrefix(v, prefix) {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		h.Del("Set-Cookie")
		return
	}
	h["Set-Cookie"] = kept
}

func (c *CookieStore) cookieValue(name string) string {
	cookie, err := c.r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

var _ identity.SessionStore = (*CookieStore)(nil)
