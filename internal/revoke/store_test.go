// SPDX-License-Identifier: MIT

package revoke

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisStoreRevokeCredential(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisStore(client)
	ctx := context.Background()

	revoked, err := store.IsCredentialRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, revoked)

	require.NoError(t, store.RevokeCredential(ctx, "jti-1", time.Minute))

	revoked, err = store.IsCredentialRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, revoked)

	// A record's lifetime tracks the credential's remaining lifetime.
	mr.FastForward(2 * time.Minute)
	revoked, err = store.IsCredentialRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestRedisStoreRevokeSubject(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisStore(client)
	ctx := context.Background()

	require.NoError(t, store.RevokeSubject(ctx, "user-9", time.Hour))

	revoked, err := store.IsSubjectRevoked(ctx, "user-9")
	require.NoError(t, err)
	require.True(t, revoked)

	// Credential-level and subject-level records are independent keys.
	revoked, err = store.IsCredentialRevoked(ctx, "user-9")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestRedisStoreSkipsNonPositiveTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisStore(client)
	ctx := context.Background()

	require.NoError(t, store.RevokeCredential(ctx, "expired", -time.Second))
	revoked, err := store.IsCredentialRevoked(ctx, "expired")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestRedisStoreSurfacesErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client)
	mr.Close()

	_, err := store.IsCredentialRevoked(context.Background(), "jti")
	require.Error(t, err)
	require.Error(t, store.RevokeSubject(context.Background(), "s", time.Minute))
}

func TestMemoryStoreLifecycle(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	require.NoError(t, store.RevokeCredential(ctx, "jti-1", 50*time.Millisecond))
	require.NoError(t, store.RevokeSubject(ctx, "user-1", 50*time.Millisecond))

	revoked, err := store.IsCredentialRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, revoked)
	revoked, err = store.IsSubjectRevoked(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, revoked)

	time.Sleep(80 * time.Millisecond)

	revoked, err = store.IsCredentialRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, revoked)
	revoked, err = store.IsSubjectRevoked(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestMemoryStoreJanitorSweeps(t *testing.T) {
	store := NewMemoryStore(20 * time.Millisecond)
	defer store.Stop()
	ctx := context.Background()

	require.NoError(t, store.RevokeCredential(ctx, "jti", 10*time.Millisecond))
	time.Sleep(60 * time.Millisecond)

	store.mu.Lock()
	size := len(store.entries)
	store.mu.Unlock()
	require.Zero(t, size, "janitor should have removed the expired record")
}
