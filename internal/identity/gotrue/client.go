// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

// Package gotrue adapts a GoTrue (Supabase Auth) server to identity.Provider.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/allev1985/topten-sub005/internal/identity"
)

// DefaultTimeout bounds a single request when no HTTPClient is supplied.
const DefaultTimeout = 10 * time.Second

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 1 << 20

// Config configures the GoTrue client.
type Config struct {
	// URL is the GoTrue base URL, e.g. https://project.supabase.co/auth/v1.
	URL string
	// APIKey is sent as the apikey header on every request.
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client talks to one GoTrue server. It is safe for concurrent use; per-call
// session state lives in the handle returned by Open.
type Client struct {
	base   *url.URL
	apiKey string
	http   *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, oops.Code("GOTRUE_INVALID_CONFIG").Errorf("gotrue url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, oops.Code("GOTRUE_INVALID_CONFIG").With("url", cfg.URL).Wrap(err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, oops.Code("GOTRUE_INVALID_CONFIG").With("url", cfg.URL).Errorf("gotrue url must be http or https")
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	c := &Client{
		base:   base,
		apiKey: cfg.APIKey,
		http:   hc,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Open returns a handle bound to the session store carried by ctx.
func (c *Client) Open(ctx context.Context) (identity.Provider, error) {
	return &handle{client: c, store: identity.SessionStoreOrMemory(ctx)}, nil
}

// request describes one API call.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	// bearer overrides the API key in the Authorization header.
	bearer string
}

// do performs req and decodes a 2xx JSON body into out (when non-nil).
// Non-2xx responses become *identity.Error.
func (c *Client) do(ctx context.Context, req request, out any) error {
	u := *c.base
	u.Path = c.base.Path + req.path
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return oops.Code("GOTRUE_ENCODE_FAILED").With("path", req.path).Wrap(err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return oops.Code("GOTRUE_REQUEST_FAILED").With("path", req.path).Wrap(err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("apikey", c.apiKey)
	}
	switch {
	case req.bearer != "":
		httpReq.Header.Set("Authorization", "Bearer "+req.bearer)
	case c.apiKey != "":
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := c.now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return oops.Code("GOTRUE_UNAVAILABLE").
			With("method", req.method).
			With("path", req.path).
			Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return oops.Code("GOTRUE_READ_FAILED").With("path", req.path).Wrap(err)
	}

	c.logger.DebugContext(ctx, "gotrue request",
		"method", req.method,
		"path", req.path,
		"status", resp.StatusCode,
		"duration", c.now().Sub(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return oops.Code("GOTRUE_DECODE_FAILED").With("path", req.path).Wrap(err)
	}
	return nil
}

// errorBody covers both the current {"error_code","msg"} shape and the
// legacy OAuth {"error","error_description"} shape.
type errorBody struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func decodeError(status int, data []byte) *identity.Error {
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		return identity.NewError(status, "", http.StatusText(status))
	}
	msg := firstNonEmpty(body.Msg, body.Message, body.ErrorDescription, body.Error, http.StatusText(status))
	return identity.NewError(status, body.ErrorCode, msg)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// isGone reports whether a sign-out failure only means the session is already over.
func isGone(err error) bool {
	var perr *identity.Error
	if !errors.As(err, &perr) {
		return false
	}
	switch perr.Status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}
