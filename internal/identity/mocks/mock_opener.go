// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/allev1985/topten-sub005/internal/identity"
)

// MockOpener is a mock implementation of identity.Opener.
type MockOpener struct {
	mock.Mock
}

// NewMockOpener creates a MockOpener whose expectations are asserted on cleanup.
func NewMockOpener(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockOpener {
	m := &MockOpener{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Open provides a mock function.
func (m *MockOpener) Open(ctx context.Context) (identity.Provider, error) {
	ret := m.Called(ctx)
	var r0 identity.Provider
	if v := ret.Get(0); v != nil {
		r0 = v.(identity.Provider)
	}
	return r0, ret.Error(1)
}

// MockClassifier is a mock implementation of identity.Classifier.
type MockClassifier struct {
	mock.Mock
}

// NewMockClassifier creates a MockClassifier whose expectations are asserted on cleanup.
func NewMockClassifier(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClassifier {
	m := &MockClassifier{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// IsEmailUnconfirmed provides a mock function.
func (m *MockClassifier) IsEmailUnconfirmed(err error) bool {
	return m.Called(err).Bool(0)
}

// IsExpiredToken provides a mock function.
func (m *MockClassifier) IsExpiredToken(err error) bool {
	return m.Called(err).Bool(0)
}

// IsSessionError provides a mock function.
func (m *MockClassifier) IsSessionError(err error) bool {
	return m.Called(err).Bool(0)
}

var (
	_ identity.Opener     = (*MockOpener)(nil)
	_ identity.Classifier = (*MockClassifier)(nil)
)
