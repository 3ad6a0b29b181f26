// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

// Package local is a self-hosted identity provider. It keeps users, sessions
// and one-time tokens in its own repositories and issues HS256 access tokens,
// so the auth core can run without an external identity server.
package local

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/allev1985/topten-sub005/internal/identity"
	"github.com/allev1985/topten-sub005/internal/identity/local/revocation"
	"github.com/allev1985/topten-sub005/internal/logging"
	"github.com/allev1985/topten-sub005/pkg/errutil"
)

// Config holds token lifetimes and signing settings.
type Config struct {
	JWTSecret       string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ConfirmationTTL time.Duration
	RecoveryTTL     time.Duration
	// RequireEmailConfirmation withholds a session at signup until the
	// emailed link is followed.
	RequireEmailConfirmation bool
}

// DefaultConfig returns the default lifetimes. JWTSecret must still be set.
func DefaultConfig() Config {
	return Config{
		Issuer:                   "topten",
		AccessTokenTTL:           time.Hour,
		RefreshTokenTTL:          30 * 24 * time.Hour,
		ConfirmationTTL:          24 * time.Hour,
		RecoveryTTL:              time.Hour,
		RequireEmailConfirmation: true,
	}
}

// Deps are the collaborators of a Provider. All are required.
type Deps struct {
	Users       UserRepository
	Sessions    SessionRepository
	Tokens      TokenRepository
	Revocations revocation.List
	Mailer      Mailer
	Hasher      PasswordHasher
}

// Provider opens request-scoped handles implementing identity.Provider.
type Provider struct {
	deps   Deps
	cfg    Config
	signer *TokenSigner
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// NewProvider validates deps and cfg and creates a Provider.
func NewProvider(deps Deps, cfg Config, opts ...Option) (*Provider, error) {
	switch {
	case deps.Users == nil:
		return nil, oops.Code("LOCAL_INVALID_CONFIG").Errorf("users repository is required")
	case deps.Sessions == nil:
		return nil, oops.Code("LOCAL_INVALID_CONFIG").Errorf("sessions repository is required")
	case deps.Tokens == nil:
		return nil, oops.Code("LOCAL_INVALID_CONFIG").Errorf("tokens repository is required")
	case deps.Revocations == nil:
		return nil, oops.Code("LOCAL_INVALID_CONFIG").Errorf("revocation list is required")
	case deps.Mailer == nil:
		return nil, oops.Code("LOCAL_INVALID_CONFIG").Errorf("mailer is required")
	case deps.Hasher == nil:
		return nil, oops.Code("LOCAL_INVALID_CONFIG").Errorf("password hasher is required")
	}
	if cfg.RefreshTokenTTL <= 0 || cfg.ConfirmationTTL <= 0 || cfg.RecoveryTTL <= 0 {
		return nil, oops.Code("LOCAL_INVALID_CONFIG").Errorf("token lifetimes must be positive")
	}

	p := &Provider{deps: deps, cfg: cfg, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		return nil, oops.Code("LOCAL_INVALID_CONFIG").Errorf("logger is required")
	}

	signer, err := NewTokenSigner(cfg.JWTSecret, cfg.Issuer, cfg.AccessTokenTTL, p.now)
	if err != nil {
		return nil, err
	}
	p.signer = signer
	return p, nil
}

// Open implements identity.Opener. The handle reads and writes the session
// store carried by ctx.
func (p *Provider) Open(ctx context.Context) (identity.Provider, error) {
	return &handle{p: p, store: identity.SessionStoreOrMemory(ctx)}, nil
}

// PurgeExpired deletes expired sessions and one-time tokens.
func (p *Provider) PurgeExpired(ctx context.Context) (sessions, tokens int64, err error) {
	now := p.now()
	sessions, err = p.deps.Sessions.DeleteExpired(ctx, now)
	if err != nil {
		return 0, 0, oops.Code("LOCAL_PURGE_FAILED").With("operation", "delete expired sessions").Wrap(err)
	}
	tokens, err = p.deps.Tokens.DeleteExpired(ctx, now)
	if err != nil {
		return sessions, 0, oops.Code("LOCAL_PURGE_FAILED").With("operation", "delete expired tokens").Wrap(err)
	}
	return sessions, tokens, nil
}

// handle is one request's view of the provider.
type handle struct {
	p     *Provider
	store identity.SessionStore
}

func (h *handle) SignUp(ctx context.Context, params identity.SignUpParams) (*identity.AuthResponse, error) {
	if params.Email == "" || params.Password == "" {
		return nil, identity.NewError(http.StatusUnprocessableEntity, identity.CodeValidationFailed, "Email and password are required")
	}

	_, err := h.p.deps.Users.GetByEmail(ctx, params.Email)
	switch {
	case err == nil:
		return nil, errUserExists
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code("LOCAL_SIGNUP_FAILED").With("operation", "get user by email").Wrap(err)
	}

	hash, err := h.p.deps.Hasher.Hash(params.Password)
	if err != nil {
		return nil, oops.Code("LOCAL_SIGNUP_FAILED").With("operation", "hash password").Wrap(err)
	}
	now := h.p.now()
	user, err := NewUser(params.Email, hash, now)
	if err != nil {
		return nil, identity.NewError(http.StatusUnprocessableEntity, identity.CodeValidationFailed, "Invalid email address")
	}
	if !h.p.cfg.RequireEmailConfirmation {
		user.Confirm(now)
	}
	if err := h.p.deps.Users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrUserAlreadyExists) {
			return nil, errUserExists
		}
		return nil, oops.Code("LOCAL_SIGNUP_FAILED").With("operation", "create user").Wrap(err)
	}

	if h.p.cfg.RequireEmailConfirmation {
		if err := h.sendToken(ctx, user, identity.TokenTypeSignup, h.p.cfg.ConfirmationTTL, params.RedirectTo); err != nil {
			return nil, err
		}
		h.p.logger.InfoContext(ctx, "account created, confirmation sent",
			"user_id", user.ID.String(), "email", logging.MaskEmail(user.Email))
		return &identity.AuthResponse{User: user.Identity()}, nil
	}

	sess, err := h.startSession(ctx, user)
	if err != nil {
		return nil, err
	}
	return &identity.AuthResponse{User: sess.User, Session: sess}, nil
}

// SignInWithPassword verifies credentials in constant time whether or not
// the email is registered. Lockout and confirmation are checked only after
// the password verified.
func (h *handle) SignInWithPassword(ctx context.Context, email, password string) (*identity.AuthResponse, error) {
	user, lookupErr := h.p.deps.Users.GetByEmail(ctx, email)

	targetHash := dummyPasswordHash
	exists := false
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
		exists = true
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, oops.Code("LOCAL_LOGIN_FAILED").With("operation", "get user by email").Wrap(lookupErr)
	}

	valid, verifyErr := h.p.deps.Hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !exists {
			return nil, errInvalidCredentials
		}
		return nil, oops.Code("LOCAL_LOGIN_FAILED").With("operation", "verify password").Wrap(verifyErr)
	}

	now := h.p.now()
	if !exists || !valid {
		if exists {
			user.RecordFailure(now)
			h.saveUserBestEffort(ctx, user, "record failed login")
		}
		return nil, errInvalidCredentials
	}

	if user.IsLockedAt(now) {
		return nil, errUserLocked
	}
	if h.p.cfg.RequireEmailConfirmation && !user.IsConfirmed() {
		return nil, errEmailNotConfirmed
	}

	user.RecordSuccess(now)
	if h.p.deps.Hasher.NeedsRehash(user.PasswordHash) {
		if rehashed, err := h.p.deps.Hasher.Hash(password); err == nil {
			user.PasswordHash = rehashed
		}
	}
	h.saveUserBestEffort(ctx, user, "reset failure counter")

	sess, err := h.startSession(ctx, user)
	if err != nil {
		return nil, err
	}
	return &identity.AuthResponse{User: sess.User, Session: sess}, nil
}

// SignOut revokes the access token and deletes every session of the user.
// The store is cleared even when that fails.
func (h *handle) SignOut(ctx context.Context) error {
	stored, err := h.store.Load(ctx)
	if err != nil {
		return h.clearStore(ctx, oops.Code("LOCAL_SIGNOUT_FAILED").With("operation", "load session store").Wrap(err))
	}
	if stored == nil {
		return h.clearStore(ctx, nil)
	}

	var userID ulid.ULID
	if claims, perr := h.p.signer.Parse(stored.AccessToken); perr == nil {
		if exp := claims.ExpiresAt; exp != nil {
			if rerr := h.p.deps.Revocations.Revoke(ctx, claims.ID, exp.Sub(h.p.now())); rerr != nil {
				errutil.LogWarnContext(ctx, h.p.logger, "token revocation failed (best-effort)", rerr,
					"operation", "sign_out")
			}
		}
		userID, _ = ulid.Parse(claims.Subject)
	} else if stored.RefreshToken != "" {
		if sess, serr := h.p.deps.Sessions.GetByRefreshTokenHash(ctx, HashToken(stored.RefreshToken)); serr == nil {
			userID = sess.UserID
		}
	}

	var deleteErr error
	if userID.Compare(ulid.ULID{}) != 0 {
		if err := h.p.deps.Sessions.DeleteByUser(ctx, userID); err != nil {
			deleteErr = oops.Code("LOCAL_SIGNOUT_FAILED").With("user_id", userID.String()).Wrap(err)
		}
	}
	return h.clearStore(ctx, deleteErr)
}

func (h *handle) clearStore(ctx context.Context, prior error) error {
	if err := h.store.Clear(ctx); err != nil && prior == nil {
		return oops.Code("LOCAL_SIGNOUT_FAILED").With("operation", "clear session store").Wrap(err)
	}
	return prior
}

// ResetPasswordForEmail emails a recovery link. Unknown addresses succeed
// silently.
func (h *handle) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	user, err := h.p.deps.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("LOCAL_RECOVER_FAILED").With("operation", "get user by email").Wrap(err)
	}

	if err := h.p.deps.Tokens.DeleteByUser(ctx, user.ID, identity.TokenTypeRecovery); err != nil {
		errutil.LogWarnContext(ctx, h.p.logger, "stale recovery token cleanup failed (best-effort)", err,
			"operation", "reset_password", "user_id", user.ID.String())
	}
	return h.sendToken(ctx, user, identity.TokenTypeRecovery, h.p.cfg.RecoveryTTL, redirectTo)
}

// VerifyOTP redeems a one-time token and starts a session for its user.
// Tokens are single use.
func (h *handle) VerifyOTP(ctx context.Context, tokenHash string, tokenType identity.TokenType) (*identity.AuthResponse, error) {
	if tokenHash == "" || !tokenType.Valid() {
		return nil, errOTPInvalid
	}

	tok, err := h.p.deps.Tokens.GetByTokenHash(ctx, HashToken(tokenHash))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errOTPInvalid
		}
		return nil, oops.Code("LOCAL_VERIFY_FAILED").With("operation", "get token").Wrap(err)
	}
	if !sameTokenFamily(tok.Type, tokenType) {
		return nil, errOTPInvalid
	}

	if err := h.p.deps.Tokens.Delete(ctx, tok.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			// redeemed concurrently
			return nil, errOTPInvalid
		}
		return nil, oops.Code("LOCAL_VERIFY_FAILED").With("operation", "delete token").Wrap(err)
	}

	now := h.p.now()
	if tok.IsExpiredAt(now) {
		return nil, errOTPExpired
	}

	user, err := h.p.deps.Users.GetByID(ctx, tok.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errUserNotFound
		}
		return nil, oops.Code("LOCAL_VERIFY_FAILED").With("operation", "get user").Wrap(err)
	}

	// Following an emailed link proves ownership of the address.
	if !user.IsConfirmed() {
		user.Confirm(now)
		if err := h.p.deps.Users.Update(ctx, user); err != nil {
			return nil, oops.Code("LOCAL_VERIFY_FAILED").With("operation", "confirm user").Wrap(err)
		}
	}

	sess, err := h.startSession(ctx, user)
	if err != nil {
		return nil, err
	}
	return &identity.AuthResponse{User: sess.User, Session: sess}, nil
}

// sameTokenFamily treats "email" and "signup" as interchangeable confirmation types.
func sameTokenFamily(stored, requested identity.TokenType) bool {
	if stored == requested {
		return true
	}
	confirm := func(t identity.TokenType) bool {
		return t == identity.TokenTypeSignup || t == identity.TokenTypeEmail
	}
	return confirm(stored) && confirm(requested)
}

func (h *handle) UpdateUserPassword(ctx context.Context, password string) (*identity.User, error) {
	user, _, err := h.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, identity.NewError(http.StatusUnprocessableEntity, identity.CodeWeakPassword, "Password cannot be empty")
	}
	if same, verr := h.p.deps.Hasher.Verify(password, user.PasswordHash); verr == nil && same {
		return nil, identity.NewError(http.StatusUnprocessableEntity, identity.CodeSamePassword,
			"New password should be different from the old password.")
	}

	hash, err := h.p.deps.Hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("LOCAL_UPDATE_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}
	if err := h.p.deps.Users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return nil, oops.Code("LOCAL_UPDATE_PASSWORD_FAILED").With("operation", "update password").Wrap(err)
	}
	if err := h.p.deps.Tokens.DeleteByUser(ctx, user.ID, identity.TokenTypeRecovery); err != nil {
		errutil.LogWarnContext(ctx, h.p.logger, "recovery token cleanup failed (best-effort)", err,
			"operation", "update_password", "user_id", user.ID.String())
	}
	return user.Identity(), nil
}

func (h *handle) GetUser(ctx context.Context) (*identity.User, error) {
	user, _, err := h.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	return user.Identity(), nil
}

// GetSession returns the stored session with its user, refreshing it when
// the access token has expired.
func (h *handle) GetSession(ctx context.Context) (*identity.Session, error) {
	stored, err := h.store.Load(ctx)
	if err != nil {
		return nil, oops.Code("LOCAL_SESSION_FAILED").With("operation", "load session store").Wrap(err)
	}
	if stored == nil {
		return nil, nil
	}

	if stored.AccessToken == "" && stored.RefreshToken != "" {
		return h.refresh(ctx, stored)
	}
	user, _, err := h.authenticate(ctx)
	if errors.Is(err, errSessionExpired) {
		return h.refresh(ctx, stored)
	}
	if err != nil {
		return nil, err
	}
	stored.User = user.Identity()
	return stored, nil
}

func (h *handle) RefreshSession(ctx context.Context) (*identity.Session, error) {
	stored, err := h.store.Load(ctx)
	if err != nil {
		return nil, oops.Code("LOCAL_SESSION_FAILED").With("operation", "load session store").Wrap(err)
	}
	if stored == nil {
		return nil, identity.ErrSessionMissing
	}
	return h.refresh(ctx, stored)
}

// refresh rotates the refresh token of stored and issues a new access token.
func (h *handle) refresh(ctx context.Context, stored *identity.Session) (*identity.Session, error) {
	if stored.RefreshToken == "" {
		return nil, errRefreshNotFound
	}
	oldHash := HashToken(stored.RefreshToken)
	sess, err := h.p.deps.Sessions.GetByRefreshTokenHash(ctx, oldHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errRefreshNotFound
		}
		return nil, oops.Code("LOCAL_REFRESH_FAILED").With("operation", "get session").Wrap(err)
	}

	now := h.p.now()
	if sess.IsExpiredAt(now) {
		if err := h.p.deps.Sessions.Delete(ctx, sess.ID); err != nil && !errors.Is(err, ErrNotFound) {
			errutil.LogWarnContext(ctx, h.p.logger, "expired session cleanup failed (best-effort)", err,
				"operation", "refresh_session")
		}
		return nil, errSessionExpired
	}

	user, err := h.p.deps.Users.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errUserNotFound
		}
		return nil, oops.Code("LOCAL_REFRESH_FAILED").With("operation", "get user").Wrap(err)
	}

	token, newHash, err := GenerateToken()
	if err != nil {
		return nil, oops.Code("LOCAL_REFRESH_FAILED").Wrap(err)
	}
	expiresAt := now.Add(h.p.cfg.RefreshTokenTTL)
	if err := h.p.deps.Sessions.Rotate(ctx, sess.ID, oldHash, newHash, expiresAt, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errRefreshUsed
		}
		return nil, oops.Code("LOCAL_REFRESH_FAILED").With("operation", "rotate refresh token").Wrap(err)
	}
	sess.RefreshTokenHash = newHash
	sess.ExpiresAt = expiresAt

	return h.finishSession(ctx, user, sess, token)
}

// authenticate resolves the stored access token to its user and session row.
func (h *handle) authenticate(ctx context.Context) (*User, *Session, error) {
	stored, err := h.store.Load(ctx)
	if err != nil {
		return nil, nil, oops.Code("LOCAL_SESSION_FAILED").With("operation", "load session store").Wrap(err)
	}
	if stored == nil || stored.AccessToken == "" {
		return nil, nil, identity.ErrSessionMissing
	}

	claims, err := h.p.signer.Parse(stored.AccessToken)
	if err != nil {
		return nil, nil, err
	}

	revoked, err := h.p.deps.Revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, nil, oops.Code("LOCAL_SESSION_FAILED").With("operation", "check revocation").Wrap(err)
	}
	if revoked {
		return nil, nil, errSessionNotFound
	}

	sid, err := ulid.Parse(claims.SessionID)
	if err != nil {
		return nil, nil, errBadJWT
	}
	sess, err := h.p.deps.Sessions.GetByID(ctx, sid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, errSessionNotFound
		}
		return nil, nil, oops.Code("LOCAL_SESSION_FAILED").With("operation", "get session").Wrap(err)
	}

	user, err := h.p.deps.Users.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, errUserNotFound
		}
		return nil, nil, oops.Code("LOCAL_SESSION_FAILED").With("operation", "get user").Wrap(err)
	}
	return user, sess, nil
}

// startSession creates a session row for user and stores the new tokens.
func (h *handle) startSession(ctx context.Context, user *User) (*identity.Session, error) {
	token, hash, err := GenerateToken()
	if err != nil {
		return nil, oops.Code("LOCAL_SESSION_FAILED").Wrap(err)
	}
	now := h.p.now()
	sess, err := NewSession(user.ID, hash, now, now.Add(h.p.cfg.RefreshTokenTTL))
	if err != nil {
		return nil, oops.Code("LOCAL_SESSION_FAILED").Wrap(err)
	}
	if err := h.p.deps.Sessions.Create(ctx, sess); err != nil {
		return nil, oops.Code("LOCAL_SESSION_FAILED").With("operation", "persist session").Wrap(err)
	}
	return h.finishSession(ctx, user, sess, token)
}

func (h *handle) finishSession(ctx context.Context, user *User, sess *Session, refreshToken string) (*identity.Session, error) {
	access, expiresAt, err := h.p.signer.Issue(user, sess)
	if err != nil {
		return nil, err
	}
	out := &identity.Session{
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		User:         user.Identity(),
	}
	if err := h.store.Save(ctx, out); err != nil {
		return nil, oops.Code("LOCAL_SESSION_FAILED").With("operation", "save session store").Wrap(err)
	}
	return out, nil
}

// sendToken stores a fresh one-time token and emails its plaintext in a link.
func (h *handle) sendToken(ctx context.Context, user *User, tokenType identity.TokenType, ttl time.Duration, redirectTo string) error {
	token, hash, err := GenerateToken()
	if err != nil {
		return oops.Code("LOCAL_TOKEN_FAILED").Wrap(err)
	}
	now := h.p.now()
	ott, err := NewOneTimeToken(user.ID, tokenType, hash, now, now.Add(ttl))
	if err != nil {
		return oops.Code("LOCAL_TOKEN_FAILED").Wrap(err)
	}
	if err := h.p.deps.Tokens.Create(ctx, ott); err != nil {
		return oops.Code("LOCAL_TOKEN_FAILED").With("operation", "persist token").Wrap(err)
	}

	msg := Message{
		To:        user.Email,
		Type:      tokenType,
		Link:      tokenLink(redirectTo, token, tokenType),
		ExpiresAt: ott.ExpiresAt,
	}
	if err := h.p.deps.Mailer.Send(ctx, msg); err != nil {
		return oops.Code("LOCAL_MAIL_FAILED").With("type", string(tokenType)).Wrap(err)
	}
	return nil
}

// tokenLink appends token_hash and type query parameters to redirectTo.
func tokenLink(redirectTo, token string, tokenType identity.TokenType) string {
	u, err := url.Parse(redirectTo)
	if err != nil {
		u = &url.URL{}
	}
	q := u.Query()
	q.Set("token_hash", token)
	q.Set("type", string(tokenType))
	u.RawQuery = q.Encode()
	return u.String()
}

func (h *handle) saveUserBestEffort(ctx context.Context, user *User, what string) {
	if err := h.p.deps.Users.Update(ctx, user); err != nil {
		errutil.LogWarnContext(ctx, h.p.logger, "user update failed (best-effort)", err,
			"operation", what, "user_id", user.ID.String())
	}
}

var (
	_ identity.Opener   = (*Provider)(nil)
	_ identity.Provider = (*handle)(nil)
)
