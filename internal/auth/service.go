// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package auth

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/allev1985/topten-sub005/internal/identity"
	"github.com/allev1985/topten-sub005/internal/logging"
	"github.com/allev1985/topten-sub005/pkg/errutil"
)

const tracerName = "topten/auth"

// Operation names, used for logs, spans and metric labels.
const (
	OpSignup         = "signup"
	OpLogin          = "login"
	OpLogout         = "logout"
	OpResetPassword  = "reset_password"
	OpUpdatePassword = "update_password"
	OpChangePassword = "change_password"
	OpConfirmEmail   = "confirm_email"
	OpGetSession     = "get_session"
	OpRefreshSession = "refresh_session"
)

// DefaultExpiringSoonWindow is how close to expiry a session is reported as
// expiring soon.
const DefaultExpiringSoonWindow = 5 * time.Minute

// Config holds the settings the service needs. It is built once by the
// caller and passed in; the service keeps no global state.
type Config struct {
	// SiteURL is the public origin used to build email links.
	SiteURL string
	// ConfirmPath receives signup confirmation links.
	ConfirmPath string
	// ResetPath receives password reset links.
	ResetPath          string
	ExpiringSoonWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConfirmPath == "" {
		c.ConfirmPath = "/auth/confirm"
	}
	if c.ResetPath == "" {
		c.ResetPath = "/reset-password"
	}
	if c.ExpiringSoonWindow <= 0 {
		c.ExpiringSoonWindow = DefaultExpiringSoonWindow
	}
	c.SiteURL = strings.TrimRight(c.SiteURL, "/")
	return c
}

func (c Config) confirmURL() string { return c.SiteURL + c.ConfirmPath }
func (c Config) resetURL() string   { return c.SiteURL + c.ResetPath }

// Service orchestrates auth operations against an identity provider.
// Every call opens its own provider handle; the service holds no per-user state.
type Service struct {
	opener     identity.Opener
	classifier identity.Classifier
	cfg        Config
	logger     *slog.Logger
	metrics    *Metrics
	tracer     trace.Tracer
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service. opener and classifier are required.
func NewService(opener identity.Opener, classifier identity.Classifier, cfg Config, opts ...Option) (*Service, error) {
	if opener == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("identity opener is required")
	}
	if classifier == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("error classifier is required")
	}

	s := &Service{
		opener:     opener,
		classifier: classifier,
		cfg:        cfg.withDefaults(),
		logger:     slog.Default(),
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("logger is required")
	}
	if s.tracer == nil || s.now == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("tracer and clock are required")
	}
	return s, nil
}

// call tracks one operation for tracing and metrics.
type call struct {
	s       *Service
	op      string
	span    trace.Span
	started time.Time
}

func (s *Service) begin(ctx context.Context, op string) (context.Context, *call) {
	ctx, span := s.tracer.Start(ctx, "auth."+op, trace.WithAttributes(attribute.String("auth.operation", op)))
	return ctx, &call{s: s, op: op, span: span, started: s.now()}
}

// end closes the span and records outcome. A nil error with suppressed set
// records OutcomeSuppressed.
func (c *call) end(err error, suppressed bool) {
	outcome := OutcomeSuccess
	switch {
	case err != nil:
		outcome = string(KindOf(err))
		c.span.SetStatus(codes.Error, outcome)
	case suppressed:
		outcome = OutcomeSuppressed
	}
	c.span.SetAttributes(attribute.String("auth.outcome", outcome))
	c.span.End()
	c.s.metrics.observe(c.op, outcome, c.s.now().Sub(c.started))
}

// open opens a provider handle, failing with SERVICE_ERROR.
func (s *Service) open(ctx context.Context, op, message string) (identity.Provider, error) {
	p, err := s.opener.Open(ctx)
	if err != nil {
		errutil.LogError(s.logger, "identity provider unavailable", err, "operation", op)
		return nil, newError(KindServiceError, op, message, err)
	}
	return p, nil
}

// Signup creates an account. A nil session in the result means the email
// must be confirmed before the user can log in.
//
// Every provider failure, including an already registered email, is a
// SERVICE_ERROR so the response never confirms an address is taken.
func (s *Service) Signup(ctx context.Context, email, password, redirectURL string) (res *SignupResult, err error) {
	ctx, c := s.begin(ctx, OpSignup)
	defer func() { c.end(err, false) }()

	email = NormalizeEmail(email)
	p, err := s.open(ctx, OpSignup, MsgSignupFailed)
	if err != nil {
		return nil, err
	}
	if redirectURL == "" {
		redirectURL = s.cfg.confirmURL()
	}

	resp, perr := p.SignUp(ctx, identity.SignUpParams{Email: email, Password: password, RedirectTo: redirectURL})
	if perr != nil {
		s.logger.WarnContext(ctx, "signup rejected by provider",
			"operation", OpSignup, "email", logging.MaskEmail(email), "error", perr)
		return nil, newError(KindServiceError, OpSignup, MsgSignupFailed, perr)
	}
	if resp == nil || resp.User == nil {
		s.logger.ErrorContext(ctx, "signup response missing user",
			"operation", OpSignup, "email", logging.MaskEmail(email))
		return nil, newError(KindServiceError, OpSignup, MsgIncomplete, nil)
	}

	res = &SignupResult{
		RequiresConfirmation: resp.Session == nil,
		User:                 resp.User,
		Session:              resp.Session,
	}
	s.logger.InfoContext(ctx, "signup succeeded",
		"operation", OpSignup,
		"user_id", resp.User.ID,
		"email", logging.MaskEmail(email),
		"requires_confirmation", res.RequiresConfirmation)
	return res, nil
}

// Login signs in with email and password. Wrong password and unknown email
// both yield INVALID_CREDENTIALS with the same message.
func (s *Service) Login(ctx context.Context, email, password string) (res *LoginResult, err error) {
	ctx, c := s.begin(ctx, OpLogin)
	defer func() { c.end(err, false) }()

	email = NormalizeEmail(email)
	p, err := s.open(ctx, OpLogin, MsgGeneric)
	if err != nil {
		return nil, err
	}

	resp, perr := p.SignInWithPassword(ctx, email, password)
	if perr != nil {
		if s.classifier.IsEmailUnconfirmed(perr) {
			s.logger.InfoContext(ctx, "login blocked, email not confirmed",
				"operation", OpLogin, "email", logging.MaskEmail(email))
			return nil, newError(KindEmailNotConfirmed, OpLogin, MsgEmailNotConfirmed, perr)
		}
		s.logger.InfoContext(ctx, "login rejected",
			"operation", OpLogin, "email", logging.MaskEmail(email), "error", perr)
		return nil, newError(KindInvalidCredentials, OpLogin, MsgInvalidCredentials, perr)
	}
	if resp == nil || resp.User == nil || resp.Session == nil {
		s.logger.ErrorContext(ctx, "login response missing user or session",
			"operation", OpLogin, "email", logging.MaskEmail(email))
		return nil, newError(KindServiceError, OpLogin, MsgIncomplete, nil)
	}

	s.logger.InfoContext(ctx, "login succeeded",
		"operation", OpLogin, "user_id", resp.User.ID, "email", logging.MaskEmail(email))
	return &LoginResult{User: resp.User, Session: resp.Session}, nil
}

// Logout ends the caller's session. It always reports success.
func (s *Service) Logout(ctx context.Context) *LogoutResult {
	ctx, c := s.begin(ctx, OpLogout)
	suppressed := false
	defer func() { c.end(nil, suppressed) }()

	p, err := s.opener.Open(ctx)
	if err != nil {
		suppressed = true
		errutil.LogWarnContext(ctx, s.logger, "logout could not reach provider (best-effort)", err, "operation", OpLogout)
		return &LogoutResult{Success: true}
	}

	userID := ""
	if u, uerr := p.GetUser(ctx); uerr == nil && u != nil {
		userID = u.ID
	}

	if err := p.SignOut(ctx); err != nil {
		suppressed = true
		errutil.LogWarnContext(ctx, s.logger, "logout sign-out failed (best-effort)", err,
			"operation", OpLogout, "user_id", userID)
		return &LogoutResult{Success: true}
	}

	s.logger.InfoContext(ctx, "logout succeeded", "operation", OpLogout, "user_id", userID)
	return &LogoutResult{Success: true}
}

// ResetPassword asks the provider to email a reset link. It always reports
// success so callers cannot tell registered addresses apart.
func (s *Service) ResetPassword(ctx context.Context, email, redirectURL string) *ResetPasswordResult {
	ctx, c := s.begin(ctx, OpResetPassword)
	suppressed := false
	defer func() { c.end(nil, suppressed) }()

	email = NormalizeEmail(email)
	if redirectURL == "" {
		redirectURL = s.cfg.resetURL()
	}

	p, err := s.opener.Open(ctx)
	if err != nil {
		suppressed = true
		errutil.LogWarnContext(ctx, s.logger, "reset request could not reach provider (best-effort)", err,
			"operation", OpResetPassword, "email", logging.MaskEmail(email))
		return &ResetPasswordResult{Success: true}
	}

	if err := p.ResetPasswordForEmail(ctx, email, redirectURL); err != nil {
		suppressed = true
		errutil.LogWarnContext(ctx, s.logger, "reset email dispatch failed (best-effort)", err,
			"operation", OpResetPassword, "email", logging.MaskEmail(email))
		return &ResetPasswordResult{Success: true}
	}

	s.logger.InfoContext(ctx, "reset email requested",
		"operation", OpResetPassword, "email", logging.MaskEmail(email))
	return &ResetPasswordResult{Success: true}
}

// UpdatePassword sets a new password. A one-time token in opts takes
// priority; otherwise the caller's session authenticates the change. On
// success the session is always signed out.
func (s *Service) UpdatePassword(ctx context.Context, newPassword string, opts UpdatePasswordOptions) (res *UpdatePasswordResult, err error) {
	ctx, c := s.begin(ctx, OpUpdatePassword)
	defer func() { c.end(err, false) }()

	p, err := s.open(ctx, OpUpdatePassword, MsgPasswordUpdateFailed)
	if err != nil {
		return nil, err
	}

	method := "session"
	if opts.TokenHash != "" {
		method = "token"
		tokenType := opts.TokenType
		if tokenType == "" {
			tokenType = identity.TokenTypeRecovery
		}
		if _, verr := p.VerifyOTP(ctx, opts.TokenHash, tokenType); verr != nil {
			if s.classifier.IsExpiredToken(verr) {
				s.logger.InfoContext(ctx, "password update token expired", "operation", OpUpdatePassword)
				return nil, newError(KindExpiredToken, OpUpdatePassword, MsgTokenExpired, verr)
			}
			s.logger.WarnContext(ctx, "password update token rejected",
				"operation", OpUpdatePassword, "error", verr)
			return nil, newError(KindServiceError, OpUpdatePassword, MsgAuthFailed, verr)
		}
	} else {
		sess, serr := p.GetSession(ctx)
		if serr != nil || sess == nil {
			s.logger.InfoContext(ctx, "password update without session", "operation", OpUpdatePassword)
			return nil, newError(KindServiceError, OpUpdatePassword, MsgAuthRequired, serr)
		}
	}

	user, uerr := p.UpdateUserPassword(ctx, newPassword)
	if uerr != nil {
		if s.classifier.IsSessionError(uerr) {
			s.logger.InfoContext(ctx, "password update session invalid",
				"operation", OpUpdatePassword, "method", method, "error", uerr)
			return nil, newError(KindSessionError, OpUpdatePassword, MsgSessionInvalid, uerr)
		}
		s.logger.WarnContext(ctx, "password update failed",
			"operation", OpUpdatePassword, "method", method, "error", uerr)
		return nil, newError(KindServiceError, OpUpdatePassword, MsgPasswordUpdateFailed, uerr)
	}

	s.signOutAfterPasswordChange(ctx, p, OpUpdatePassword)

	userID := ""
	if user != nil {
		userID = user.ID
	}
	s.logger.InfoContext(ctx, "password updated",
		"operation", OpUpdatePassword, "method", method, "user_id", userID)
	return &UpdatePasswordResult{Success: true}, nil
}

// ChangePassword replaces the password of the signed-in user after
// re-checking the current one. On success the session is signed out.
func (s *Service) ChangePassword(ctx context.Context, currentPassword, newPassword string) (res *UpdatePasswordResult, err error) {
	ctx, c := s.begin(ctx, OpChangePassword)
	defer func() { c.end(err, false) }()

	p, err := s.open(ctx, OpChangePassword, MsgPasswordUpdateFailed)
	if err != nil {
		return nil, err
	}

	sess, serr := p.GetSession(ctx)
	if serr != nil || sess == nil {
		return nil, newError(KindServiceError, OpChangePassword, MsgAuthRequired, serr)
	}
	user := sess.User
	if user == nil {
		u, uerr := p.GetUser(ctx)
		if uerr != nil || u == nil {
			return nil, newError(KindServiceError, OpChangePassword, MsgAuthRequired, uerr)
		}
		user = u
	}

	if _, verr := p.SignInWithPassword(ctx, user.Email, currentPassword); verr != nil {
		s.logger.InfoContext(ctx, "password change rejected, current password mismatch",
			"operation", OpChangePassword, "user_id", user.ID)
		return nil, failure{
			kind:    KindInvalidCredentials,
			op:      OpChangePassword,
			message: MsgCurrentPassword,
			cause:   verr,
			details: map[string]string{"currentPassword": MsgCurrentPassword},
		}.build()
	}

	if _, uerr := p.UpdateUserPassword(ctx, newPassword); uerr != nil {
		if s.classifier.IsSessionError(uerr) {
			return nil, newError(KindSessionError, OpChangePassword, MsgSessionInvalid, uerr)
		}
		s.logger.WarnContext(ctx, "password change failed",
			"operation", OpChangePassword, "user_id", user.ID, "error", uerr)
		return nil, newError(KindServiceError, OpChangePassword, MsgPasswordUpdateFailed, uerr)
	}

	s.signOutAfterPasswordChange(ctx, p, OpChangePassword)

	s.logger.InfoContext(ctx, "password changed", "operation", OpChangePassword, "user_id", user.ID)
	return &UpdatePasswordResult{Success: true}, nil
}

// signOutAfterPasswordChange ends the session that changed the password.
// Failure is logged and tolerated.
func (s *Service) signOutAfterPasswordChange(ctx context.Context, p identity.Provider, op string) {
	if err := p.SignOut(ctx); err != nil {
		errutil.LogWarnContext(ctx, s.logger, "sign-out after password change failed (best-effort)", err,
			"operation", op)
	}
}

// ConfirmEmail verifies an email confirmation token and returns the session
// the provider establishes for it.
func (s *Service) ConfirmEmail(ctx context.Context, tokenHash string, tokenType identity.TokenType) (res *LoginResult, err error) {
	ctx, c := s.begin(ctx, OpConfirmEmail)
	defer func() { c.end(err, false) }()

	if tokenHash == "" {
		return nil, newError(KindServiceError, OpConfirmEmail, MsgAuthFailed, nil)
	}
	if tokenType == "" {
		tokenType = identity.TokenTypeSignup
	}

	p, err := s.open(ctx, OpConfirmEmail, MsgAuthFailed)
	if err != nil {
		return nil, err
	}

	resp, verr := p.VerifyOTP(ctx, tokenHash, tokenType)
	if verr != nil {
		if s.classifier.IsExpiredToken(verr) {
			return nil, newError(KindExpiredToken, OpConfirmEmail, MsgTokenExpired, verr)
		}
		s.logger.WarnContext(ctx, "email confirmation rejected",
			"operation", OpConfirmEmail, "token_type", string(tokenType), "error", verr)
		return nil, newError(KindServiceError, OpConfirmEmail, MsgAuthFailed, verr)
	}
	if resp == nil || resp.User == nil {
		return nil, newError(KindServiceError, OpConfirmEmail, MsgIncomplete, nil)
	}

	s.logger.InfoContext(ctx, "email confirmed", "operation", OpConfirmEmail, "user_id", resp.User.ID)
	return &LoginResult{User: resp.User, Session: resp.Session}, nil
}

// GetSession reports whether the caller is signed in. Missing or rejected
// sessions are an unauthenticated state; only provider failures are errors.
func (s *Service) GetSession(ctx context.Context) (res *SessionState, err error) {
	ctx, c := s.begin(ctx, OpGetSession)
	defer func() { c.end(err, false) }()

	p, err := s.open(ctx, OpGetSession, MsgSessionCheckFailed)
	if err != nil {
		return nil, err
	}

	sess, serr := p.GetSession(ctx)
	if serr != nil {
		if s.classifier.IsSessionError(serr) {
			s.logger.DebugContext(ctx, "session rejected by provider", "operation", OpGetSession, "error", serr)
			return &SessionState{Authenticated: false}, nil
		}
		s.logger.WarnContext(ctx, "session check failed", "operation", OpGetSession, "error", serr)
		return nil, newError(KindServiceError, OpGetSession, MsgSessionCheckFailed, serr)
	}
	if sess == nil {
		return &SessionState{Authenticated: false}, nil
	}

	user := sess.User
	if user == nil {
		u, uerr := p.GetUser(ctx)
		if uerr != nil {
			if s.classifier.IsSessionError(uerr) {
				return &SessionState{Authenticated: false}, nil
			}
			s.logger.WarnContext(ctx, "session user lookup failed", "operation", OpGetSession, "error", uerr)
			return nil, newError(KindServiceError, OpGetSession, MsgSessionCheckFailed, uerr)
		}
		if u == nil {
			return &SessionState{Authenticated: false}, nil
		}
		user = u
	}

	return &SessionState{
		Authenticated: true,
		User:          user,
		Session: &SessionInfo{
			ExpiresAt:      sess.ExpiresAt,
			IsExpiringSoon: sess.ExpiresAt.Sub(s.now()) <= s.cfg.ExpiringSoonWindow,
		},
	}, nil
}

// RefreshSession renews the caller's tokens. Any failure means the user must
// sign in again.
func (s *Service) RefreshSession(ctx context.Context) (res *RefreshResult, err error) {
	ctx, c := s.begin(ctx, OpRefreshSession)
	defer func() { c.end(err, false) }()

	p, err := s.open(ctx, OpRefreshSession, MsgSessionExpired)
	if err != nil {
		return nil, err
	}

	sess, rerr := p.RefreshSession(ctx)
	if rerr != nil || sess == nil {
		s.logger.InfoContext(ctx, "session refresh failed", "operation", OpRefreshSession, "error", rerr)
		return nil, newError(KindServiceError, OpRefreshSession, MsgSessionExpired, rerr)
	}

	userID := ""
	if sess.User != nil {
		userID = sess.User.ID
	}
	s.logger.DebugContext(ctx, "session refreshed", "operation", OpRefreshSession, "user_id", userID)
	return &RefreshResult{Session: RefreshedSession{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    sess.ExpiresAt,
	}}, nil
}
