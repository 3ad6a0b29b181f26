// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package revocation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allev1985/topten-sub005/internal/identity/local/revocation"
	"github.com/allev1985/topten-sub005/pkg/errutil"
)

func TestMemory_RevokeAndExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	list := revocation.NewMemory(func() time.Time { return now })

	require.NoError(t, list.Revoke(ctx, "jti-1", time.Minute))

	revoked, err := list.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = list.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)

	now = now.Add(time.Minute)
	revoked, err = list.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked, "entry must lapse once the token would have expired")
	assert.Equal(t, 0, list.Len())
}

func TestMemory_IgnoresEmptyInput(t *testing.T) {
	ctx := context.Background()
	list := revocation.NewMemory(nil)

	require.NoError(t, list.Revoke(ctx, "", time.Minute))
	require.NoError(t, list.Revoke(ctx, "jti", 0))
	assert.Equal(t, 0, list.Len())

	revoked, err := list.IsRevoked(ctx, "")
	require.NoError(t, err)
	assert.False(t, revoked)
}

// fakeRedis answers Set/Get from a map, returning redis.Nil for missing keys.
type fakeRedis struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.values[key] = value.(string)
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func TestRedis_RevokeStoresKeyWithTTL(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	list, err := revocation.NewRedis(client)
	require.NoError(t, err)

	require.NoError(t, list.Revoke(ctx, "abc", 5*time.Minute))
	assert.Equal(t, 5*time.Minute, client.ttls[revocation.KeyPrefix+"abc"])

	revoked, err := list.IsRevoked(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = list.IsRevoked(ctx, "other")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedis_Errors(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	client.err = errors.New("connection refused")
	list, err := revocation.NewRedis(client)
	require.NoError(t, err)

	err = list.Revoke(ctx, "abc", time.Minute)
	errutil.AssertErrorCode(t, err, "REVOCATION_WRITE_FAILED")

	_, err = list.IsRevoked(ctx, "abc")
	errutil.AssertErrorCode(t, err, "REVOCATION_READ_FAILED")
}

func TestNewRedis_NilClient(t *testing.T) {
	list, err := revocation.NewRedis(nil)
	require.Error(t, err)
	assert.Nil(t, list)
}
