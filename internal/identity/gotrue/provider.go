// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package gotrue

import (
	"context"
	"net/http"
	"net/url"

	"github.com/samber/oops"

	"github.com/allev1985/topten-sub005/internal/identity"
)

// handle is a Provider bound to one request's session store.
type handle struct {
	client *Client
	store  identity.SessionStore
}

var (
	_ identity.Provider = (*handle)(nil)
	_ identity.Opener   = (*Client)(nil)
)

func redirectQuery(redirectTo string) url.Values {
	if redirectTo == "" {
		return nil
	}
	return url.Values{"redirect_to": {redirectTo}}
}

func (h *handle) SignUp(ctx context.Context, params identity.SignUpParams) (*identity.AuthResponse, error) {
	var out authDTO
	err := h.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/signup",
		query:  redirectQuery(params.RedirectTo),
		body:   credentialsBody{Email: params.Email, Password: params.Password},
	}, &out)
	if err != nil {
		return nil, err
	}
	return h.establish(ctx, &out)
}

func (h *handle) SignInWithPassword(ctx context.Context, email, password string) (*identity.AuthResponse, error) {
	var out authDTO
	err := h.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   credentialsBody{Email: email, Password: password},
	}, &out)
	if err != nil {
		return nil, err
	}
	return h.establish(ctx, &out)
}

// SignOut revokes every refresh token of the user server-side and clears the
// store. A session the server no longer knows is not an error.
func (h *handle) SignOut(ctx context.Context) error {
	session, err := h.store.Load(ctx)
	if err != nil {
		return h.clear(ctx, oops.Code("GOTRUE_SIGNOUT_FAILED").With("operation", "load session").Wrap(err))
	}
	if session == nil || session.AccessToken == "" {
		return h.clear(ctx, nil)
	}

	err = h.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/logout",
		query:  url.Values{"scope": {"global"}},
		bearer: session.AccessToken,
	}, nil)
	if err != nil && !isGone(err) {
		return h.clear(ctx, err)
	}
	return h.clear(ctx, nil)
}

func (h *handle) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	return h.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/recover",
		query:  redirectQuery(redirectTo),
		body:   recoverBody{Email: email},
	}, nil)
}

func (h *handle) VerifyOTP(ctx context.Context, tokenHash string, tokenType identity.TokenType) (*identity.AuthResponse, error) {
	var out authDTO
	err := h.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/verify",
		body:   verifyBody{Type: tokenType, TokenHash: tokenHash},
	}, &out)
	if err != nil {
		return nil, err
	}
	return h.establish(ctx, &out)
}

func (h *handle) UpdateUserPassword(ctx context.Context, password string) (*identity.User, error) {
	session, err := h.requireSession(ctx)
	if err != nil {
		return nil, err
	}
	var out userDTO
	err = h.client.do(ctx, request{
		method: http.MethodPut,
		path:   "/user",
		body:   passwordBody{Password: password},
		bearer: session.AccessToken,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.toUser(), nil
}

func (h *handle) GetUser(ctx context.Context) (*identity.User, error) {
	session, err := h.requireSession(ctx)
	if err != nil {
		return nil, err
	}
	var out userDTO
	err = h.client.do(ctx, request{
		method: http.MethodGet,
		path:   "/user",
		bearer: session.AccessToken,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.toUser(), nil
}

// GetSession returns the stored session, refreshing it first when the access
// token has expired.
func (h *handle) GetSession(ctx context.Context) (*identity.Session, error) {
	session, err := h.store.Load(ctx)
	if err != nil {
		return nil, oops.Code("GOTRUE_SESSION_LOAD_FAILED").Wrap(err)
	}
	if session == nil {
		return nil, nil
	}
	if session.AccessToken == "" || session.IsExpiredAt(h.client.now()) {
		if session.RefreshToken == "" {
			return nil, h.clear(ctx, nil)
		}
		return h.refresh(ctx, session.RefreshToken)
	}
	return session, nil
}

func (h *handle) RefreshSession(ctx context.Context) (*identity.Session, error) {
	session, err := h.store.Load(ctx)
	if err != nil {
		return nil, oops.Code("GOTRUE_SESSION_LOAD_FAILED").Wrap(err)
	}
	if session == nil || session.RefreshToken == "" {
		return nil, identity.ErrSessionMissing
	}
	return h.refresh(ctx, session.RefreshToken)
}

func (h *handle) refresh(ctx context.Context, refreshToken string) (*identity.Session, error) {
	var out authDTO
	err := h.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   refreshBody{RefreshToken: refreshToken},
	}, &out)
	if err != nil {
		// a refresh token the server rejects will never work again
		if (identity.CodeClassifier{}).IsSessionError(err) {
			_ = h.store.Clear(ctx) //nolint:errcheck // the refresh error is what the caller needs
		}
		return nil, err
	}

	resp, err := h.establish(ctx, &out)
	if err != nil {
		return nil, err
	}
	if resp.Session == nil {
		return nil, identity.NewError(http.StatusBadGateway, identity.CodeUnexpectedFailure, "refresh returned no session")
	}
	return resp.Session, nil
}

// requireSession returns a usable session or identity.ErrSessionMissing.
func (h *handle) requireSession(ctx context.Context) (*identity.Session, error) {
	session, err := h.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, identity.ErrSessionMissing
	}
	return session, nil
}

// establish converts a response and saves its session, if any.
func (h *handle) establish(ctx context.Context, out *authDTO) (*identity.AuthResponse, error) {
	resp := out.toResponse(h.client.now())
	if resp.Session == nil {
		return resp, nil
	}
	if resp.Session.User == nil {
		resp.Session.User = resp.User
	}
	if err := h.store.Save(ctx, resp.Session); err != nil {
		return nil, oops.Code("GOTRUE_SESSION_SAVE_FAILED").Wrap(err)
	}
	return resp, nil
}

func (h *handle) clear(ctx context.Context, prior error) error {
	if err := h.store.Clear(ctx); err != nil && prior == nil {
		return oops.Code("GOTRUE_SESSION_CLEAR_FAILED").Wrap(err)
	}
	return prior
}
