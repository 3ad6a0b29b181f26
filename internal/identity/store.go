// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package identity

import (
	"context"
	"sync"
)

// SessionStore persists the caller's session between requests. In the web
// layer it is backed by cookies; the provider reads and writes it, the auth
// service never touches it directly.
type SessionStore interface {
	// Load returns (nil, nil) when no session is stored.
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Clear(ctx context.Context) error
}

type storeKey struct{}

// WithSessionStore returns a context carrying store.
func WithSessionStore(ctx context.Context, store SessionStore) context.Context {
	return context.WithValue(ctx, storeKey{}, store)
}

// SessionStoreFrom returns the store carried by ctx, or nil.
func SessionStoreFrom(ctx context.Context) SessionStore {
	store, _ := ctx.Value(storeKey{}).(SessionStore)
	return store
}

// SessionStoreOrMemory returns the store carried by ctx, or a fresh MemoryStore.
func SessionStoreOrMemory(ctx context.Context) SessionStore {
	if store := SessionStoreFrom(ctx); store != nil {
		return store
	}
	return NewMemoryStore()
}

// MemoryStore keeps a single session in memory.
type MemoryStore struct {
	mu      sync.Mutex
	session *Session
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements SessionStore.
func (m *MemoryStore) Load(_ context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil
	}
	s := *m.session
	return &s, nil
}

// Save implements SessionStore.
func (m *MemoryStore) Save(_ context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session == nil {
		m.session = nil
		return nil
	}
	s := *session
	m.session = &s
	return nil
}

// Clear implements SessionStore.
func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

var _ SessionStore = (*MemoryStore)(nil)
