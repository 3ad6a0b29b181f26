// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package local_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allev1985/topten-sub005/internal/identity"
	"github.com/allev1985/topten-sub005/internal/identity/local"
	"github.com/allev1985/topten-sub005/internal/identity/local/revocation"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var cheapParams = local.Argon2Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32}

type env struct {
	provider *local.Provider
	users    *local.MemoryUsers
	sessions *local.MemorySessions
	tokens   *local.MemoryTokens
	revoked  *revocation.Memory
	mailer   *local.MemoryMailer
	clock    *time.Time
}

func newEnv(t *testing.T, mutate func(*local.Config)) *env {
	t.Helper()
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	e := &env{
		users:    local.NewMemoryUsers(),
		sessions: local.NewMemorySessions(),
		tokens:   local.NewMemoryTokens(),
		mailer:   local.NewMemoryMailer(),
		clock:    &now,
	}
	clock := func() time.Time { return *e.clock }
	e.revoked = revocation.NewMemory(clock)

	cfg := local.DefaultConfig()
	cfg.JWTSecret = testSecret
	if mutate != nil {
		mutate(&cfg)
	}

	p, err := local.NewProvider(local.Deps{
		Users:       e.users,
		Sessions:    e.sessions,
		Tokens:      e.tokens,
		Revocations: e.revoked,
		Mailer:      e.mailer,
		Hasher:      local.NewArgon2idHasherWithParams(cheapParams),
	}, cfg, local.WithClock(clock))
	require.NoError(t, err)
	e.provider = p
	return e
}

func (e *env) advance(d time.Duration) { *e.clock = e.clock.Add(d) }

// open returns a handle bound to store.
func (e *env) open(t *testing.T, store identity.SessionStore) identity.Provider {
	t.Helper()
	h, err := e.provider.Open(identity.WithSessionStore(context.Background(), store))
	require.NoError(t, err)
	return h
}

func linkToken(t *testing.T, link string) (string, identity.TokenType) {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get("token_hash"), identity.TokenType(u.Query().Get("type"))
}

func providerCode(t *testing.T, err error) string {
	t.Helper()
	perr, ok := identity.AsError(err)
	require.True(t, ok, "expected identity error, got %v", err)
	return perr.Code
}

func TestNewProvider_Validation(t *testing.T) {
	deps := local.Deps{
		Users:       local.NewMemoryUsers(),
		Sessions:    local.NewMemorySessions(),
		Tokens:      local.NewMemoryTokens(),
		Revocations: revocation.NewMemory(nil),
		Mailer:      local.NewMemoryMailer(),
		Hasher:      local.NewArgon2idHasher(),
	}
	cfg := local.DefaultConfig()
	cfg.JWTSecret = testSecret

	t.Run("missing mailer", func(t *testing.T) {
		d := deps
		d.Mailer = nil
		_, err := local.NewProvider(d, cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mailer is required")
	})

	t.Run("short secret", func(t *testing.T) {
		c := cfg
		c.JWTSecret = "short"
		_, err := local.NewProvider(deps, c)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt secret")
	})

	t.Run("valid", func(t *testing.T) {
		p, err := local.NewProvider(deps, cfg)
		require.NoError(t, err)
		assert.NotNil(t, p)
	})
}

func TestProvider_SignupConfirmLoginRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	store := identity.NewMemoryStore()
	h := e.open(t, store)

	resp, err := h.SignUp(ctx, identity.SignUpParams{
		Email:      "Alice@Example.com",
		Password:   "Correct-Horse-9",
		RedirectTo: "https://topten.test/auth/confirm?next=%2Flists",
	})
	require.NoError(t, err)
	assert.Nil(t, resp.Session, "confirmation required before a session is issued")
	assert.Equal(t, "alice@example.com", resp.User.Email)
	assert.Nil(t, resp.User.EmailConfirmedAt)

	_, err = h.SignInWithPassword(ctx, "alice@example.com", "Correct-Horse-9")
	assert.Equal(t, identity.CodeEmailNotConfirmed, providerCode(t, err))

	msg, ok := e.mailer.Last("alice@example.com")
	require.True(t, ok)
	assert.Contains(t, msg.Link, "next=%2Flists")
	token, tokenType := linkToken(t, msg.Link)
	assert.Equal(t, identity.TokenTypeSignup, tokenType)

	confirmed, err := h.VerifyOTP(ctx, token, tokenType)
	require.NoError(t, err)
	require.NotNil(t, confirmed.Session)
	assert.NotNil(t, confirmed.User.EmailConfirmedAt)

	_, err = h.VerifyOTP(ctx, token, tokenType)
	assert.Equal(t, identity.CodeOTPInvalid, providerCode(t, err), "tokens are single use")

	login, err := h.SignInWithPassword(ctx, "alice@example.com", "Correct-Horse-9")
	require.NoError(t, err)
	assert.NotEmpty(t, login.Session.AccessToken)
	assert.NotEmpty(t, login.Session.RefreshToken)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, login.Session.AccessToken, stored.AccessToken)
}

func TestProvider_SignupWithoutConfirmation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, func(c *local.Config) { c.RequireEmailConfirmation = false })
	h := e.open(t, identity.NewMemoryStore())

	resp, err := h.SignUp(ctx, identity.SignUpParams{Email: "bob@example.com", Password: "Correct-Horse-9"})
	require.NoError(t, err)
	require.NotNil(t, resp.Session)
	assert.Empty(t, e.mailer.Sent())

	_, err = h.SignUp(ctx, identity.SignUpParams{Email: "BOB@example.com", Password: "Correct-Horse-9"})
	assert.Equal(t, identity.CodeUserAlreadyExists, providerCode(t, err))
}

func TestProvider_SignInFailures(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, func(c *local.Config) { c.RequireEmailConfirmation = false })
	h := e.open(t, identity.NewMemoryStore())
	_, err := h.SignUp(ctx, identity.SignUpParams{Email: "carol@example.com", Password: "Correct-Horse-9"})
	require.NoError(t, err)

	_, unknownErr := h.SignInWithPassword(ctx, "nobody@example.com", "Correct-Horse-9")
	_, wrongErr := h.SignInWithPassword(ctx, "carol@example.com", "wrong-password")
	assert.Equal(t, unknownErr, wrongErr, "unknown email and wrong password are indistinguishable")
	assert.Equal(t, identity.CodeInvalidCredentials, providerCode(t, wrongErr))

	for range local.LockoutThreshold {
		_, _ = h.SignInWithPassword(ctx, "carol@example.com", "wrong-password")
	}
	_, err = h.SignInWithPassword(ctx, "carol@example.com", "Correct-Horse-9")
	assert.Equal(t, identity.CodeUserLocked, providerCode(t, err))

	e.advance(local.LockoutDuration + time.Second)
	_, err = h.SignInWithPassword(ctx, "carol@example.com", "Correct-Horse-9")
	require.NoError(t, err)
}

func TestProvider_SignOutEndsSession(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, func(c *local.Config) { c.RequireEmailConfirmation = false })
	store := identity.NewMemoryStore()
	h := e.open(t, store)

	resp, err := h.SignUp(ctx, identity.SignUpParams{Email: "dave@example.com", Password: "Correct-Horse-9"})
	require.NoError(t, err)
	stolen := *resp.Session

	user, err := h.GetUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dave@example.com", user.Email)

	require.NoError(t, h.SignOut(ctx))
	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.Equal(t, 1, e.revoked.Len())

	// A copy of the old tokens no longer works anywhere.
	other := identity.NewMemoryStore()
	require.NoError(t, other.Save(ctx, &stolen))
	h2 := e.open(t, other)
	_, err = h2.GetUser(ctx)
	assert.Equal(t, identity.CodeSessionNotFound, providerCode(t, err))
	_, err = h2.RefreshSession(ctx)
	assert.Equal(t, identity.CodeRefreshTokenNotFound, providerCode(t, err))

	assert.NoError(t, h.SignOut(ctx), "signing out twice is not an error")
}

func TestProvider_RecoveryFlow(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, func(c *local.Config) { c.RequireEmailConfirmation = false })
	h := e.open(t, identity.NewMemoryStore())
	_, err := h.SignUp(ctx, identity.SignUpParams{Email: "erin@example.com", Password: "Correct-Horse-9"})
	require.NoError(t, err)

	require.NoError(t, h.ResetPasswordForEmail(ctx, "unknown@example.com", "https://topten.test/reset-password"))
	assert.Empty(t, e.mailer.Sent(), "unknown addresses receive nothing")

	require.NoError(t, h.ResetPasswordForEmail(ctx, "erin@example.com", "https://topten.test/reset-password"))
	msg, ok := e.mailer.Last("erin@example.com")
	require.True(t, ok)
	token, tokenType := linkToken(t, msg.Link)
	assert.Equal(t, identity.TokenTypeRecovery, tokenType)

	resetStore := identity.NewMemoryStore()
	rh := e.open(t, resetStore)
	_, err = rh.VerifyOTP(ctx, token, identity.TokenTypeSignup)
	assert.Equal(t, identity.CodeOTPInvalid, providerCode(t, err), "type must match")

	_, err = rh.VerifyOTP(ctx, token, identity.TokenTypeRecovery)
	require.NoError(t, err)

	_, err = rh.UpdateUserPassword(ctx, "Correct-Horse-9")
	assert.Equal(t, identity.CodeSamePassword, providerCode(t, err))

	_, err = rh.UpdateUserPassword(ctx, "Battery-Staple-7")
	require.NoError(t, err)
	require.NoError(t, rh.SignOut(ctx))

	_, err = h.SignInWithPassword(ctx, "erin@example.com", "Correct-Horse-9")
	assert.Equal(t, identity.CodeInvalidCredentials, providerCode(t, err))
	_, err = h.SignInWithPassword(ctx, "erin@example.com", "Battery-Staple-7")
	require.NoError(t, err)
}

func TestProvider_ExpiredRecoveryToken(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, func(c *local.Config) { c.RequireEmailConfirmation = false })
	h := e.open(t, identity.NewMemoryStore())
	_, err := h.SignUp(ctx, identity.SignUpParams{Email: "fay@example.com", Password: "Correct-Horse-9"})
	require.NoError(t, err)
	require.NoError(t, h.ResetPasswordForEmail(ctx, "fay@example.com", ""))

	msg, _ := e.mailer.Last("fay@example.com")
	token, _ := linkToken(t, msg.Link)
	e.advance(2 * time.Hour)

	_, err = h.VerifyOTP(ctx, token, identity.TokenTypeRecovery)
	assert.Equal(t, identity.CodeOTPExpired, providerCode(t, err))
}

func TestProvider_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, func(c *local.Config) { c.RequireEmailConfirmation = false })
	store := identity.NewMemoryStore()
	h := e.open(t, store)

	none, err := h.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = h.RefreshSession(ctx)
	assert.Equal(t, identity.CodeSessionMissing, providerCode(t, err))

	resp, err := h.SignUp(ctx, identity.SignUpParams{Email: "gus@example.com", Password: "Correct-Horse-9"})
	require.NoError(t, err)
	first := resp.Session

	sess, err := h.GetSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.AccessToken, sess.AccessToken)
	assert.Equal(t, "gus@example.com", sess.User.Email)

	// Past access token expiry GetSession refreshes transparently.
	e.advance(time.Hour + time.Minute)
	renewed, err := h.GetSession(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, renewed.RefreshToken)
	assert.True(t, renewed.ExpiresAt.After(*e.clock))

	// The rotated-out refresh token cannot be replayed.
	replay := identity.NewMemoryStore()
	require.NoError(t, replay.Save(ctx, first))
	_, err = e.open(t, replay).RefreshSession(ctx)
	assert.Equal(t, identity.CodeRefreshTokenNotFound, providerCode(t, err))

	// Past the refresh lifetime the session is gone.
	e.advance(31 * 24 * time.Hour)
	_, err = h.RefreshSession(ctx)
	assert.Equal(t, identity.CodeSessionExpired, providerCode(t, err))
}

func TestProvider_UpdatePasswordRequiresSession(t *testing.T) {
	e := newEnv(t, nil)
	h := e.open(t, identity.NewMemoryStore())

	_, err := h.UpdateUserPassword(context.Background(), "Battery-Staple-7")
	assert.Equal(t, identity.CodeSessionMissing, providerCode(t, err))
	assert.True(t, identity.CodeClassifier{}.IsSessionError(err))
}

func TestProvider_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	h := e.open(t, identity.NewMemoryStore())
	_, err := h.SignUp(ctx, identity.SignUpParams{Email: "hal@example.com", Password: "Correct-Horse-9"})
	require.NoError(t, err)

	e.advance(48 * time.Hour)
	sessions, tokens, err := e.provider.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sessions)
	assert.Equal(t, int64(1), tokens)
}
