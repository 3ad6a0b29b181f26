// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

// Package revocation tracks access tokens that were signed out before they
// expired. Entries only need to live until the token would expire anyway.
package revocation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// List records revoked token IDs (jti).
type List interface {
	// Revoke marks jti revoked for ttl. An empty jti or non-positive ttl is a no-op.
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Memory is an in-process List for single-instance deployments and tests.
type Memory struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemory creates an empty Memory list. A nil clock uses time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{entries: make(map[string]time.Time), now: now}
}

// Revoke implements List.
func (m *Memory) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	m.entries[jti] = m.now().Add(ttl)
	return nil
}

// IsRevoked implements List.
func (m *Memory) IsRevoked(_ context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.entries[jti]
	return ok && m.now().Before(until), nil
}

// Len returns the number of live entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	return len(m.entries)
}

// sweep drops expired entries; m.mu must be held.
func (m *Memory) sweep() {
	now := m.now()
	for jti, until := range m.entries {
		if !now.Before(until) {
			delete(m.entries, jti)
		}
	}
}

// KeyPrefix namespaces revocation keys in Redis.
const KeyPrefix = "topten:revoked:jti:"

// RedisClient is the subset of *redis.Client used by Redis.
type RedisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Redis is a List shared by every instance through Redis keys with TTLs.
type Redis struct {
	client RedisClient
}

// NewRedis creates a Redis list. The client lifecycle stays with the caller.
func NewRedis(client RedisClient) (*Redis, error) {
	if client == nil {
		return nil, oops.Code("REVOCATION_INVALID_CONFIG").Errorf("redis client is required")
	}
	return &Redis{client: client}, nil
}

// Revoke implements List.
func (r *Redis) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, KeyPrefix+jti, "1", ttl).Err(); err != nil {
		return oops.Code("REVOCATION_WRITE_FAILED").With("jti", jti).Wrap(err)
	}
	return nil
}

// IsRevoked implements List.
func (r *Redis) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	err := r.client.Get(ctx, KeyPrefix+jti).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, oops.Code("REVOCATION_READ_FAILED").With("jti", jti).Wrap(err)
	}
	return true, nil
}

var (
	_ List        = (*Memory)(nil)
	_ List        = (*Redis)(nil)
	_ RedisClient = (*redis.Client)(nil)
)
