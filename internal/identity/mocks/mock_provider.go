// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

// Package mocks holds testify mocks for the identity contract.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/allev1985/topten-sub005/internal/identity"
)

// MockProvider is a mock implementation of identity.Provider.
type MockProvider struct {
	mock.Mock
}

// NewMockProvider creates a MockProvider whose expectations are asserted on cleanup.
func NewMockProvider(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockProvider {
	m := &MockProvider{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func authResponse(ret mock.Arguments) (*identity.AuthResponse, error) {
	var r0 *identity.AuthResponse
	if v := ret.Get(0); v != nil {
		r0 = v.(*identity.AuthResponse)
	}
	return r0, ret.Error(1)
}

// SignUp provides a mock function.
func (m *MockProvider) SignUp(ctx context.Context, params identity.SignUpParams) (*identity.AuthResponse, error) {
	return authResponse(m.Called(ctx, params))
}

// SignInWithPassword provides a mock function.
func (m *MockProvider) SignInWithPassword(ctx context.Context, email, password string) (*identity.AuthResponse, error) {
	return authResponse(m.Called(ctx, email, password))
}

// SignOut provides a mock function.
func (m *MockProvider) SignOut(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// ResetPasswordForEmail provides a mock function.
func (m *MockProvider) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	return m.Called(ctx, email, redirectTo).Error(0)
}

// VerifyOTP provides a mock function.
func (m *MockProvider) VerifyOTP(ctx context.Context, tokenHash string, tokenType identity.TokenType) (*identity.AuthResponse, error) {
	return authResponse(m.Called(ctx, tokenHash, tokenType))
}

// UpdateUserPassword provides a mock function.
func (m *MockProvider) UpdateUserPassword(ctx context.Context, password string) (*identity.User, error) {
	ret := m.Called(ctx, password)
	var r0 *identity.User
	if v := ret.Get(0); v != nil {
		r0 = v.(*identity.User)
	}
	return r0, ret.Error(1)
}

// GetUser provides a mock function.
func (m *MockProvider) GetUser(ctx context.Context) (*identity.User, error) {
	ret := m.Called(ctx)
	var r0 *identity.User
	if v := ret.Get(0); v != nil {
		r0 = v.(*identity.User)
	}
	return r0, ret.Error(1)
}

// GetSession provides a mock function.
func (m *MockProvider) GetSession(ctx context.Context) (*identity.Session, error) {
	ret := m.Called(ctx)
	var r0 *identity.Session
	if v := ret.Get(0); v != nil {
		r0 = v.(*identity.Session)
	}
	return r0, ret.Error(1)
}

// RefreshSession provides a mock function.
func (m *MockProvider) RefreshSession(ctx context.Context) (*identity.Session, error) {
	ret := m.Called(ctx)
	var r0 *identity.Session
	if v := ret.Get(0); v != nil {
		r0 = v.(*identity.Session)
	}
	return r0, ret.Error(1)
}

var _ identity.Provider = (*MockProvider)(nil)
