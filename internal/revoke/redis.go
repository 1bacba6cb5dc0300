// SPDX-License-Identifier: MIT

package revoke

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	credentialPrefix = "revoked:credential:"
	subjectPrefix    = "revoked:subject:"
)

// RedisStore keeps revocation records in Redis. Redis expiry does the
// cleanup: a record's TTL is the credential's remaining lifetime.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed revocation store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) set(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		// The credential is already past expiry; nothing to record.
		return nil
	}
	if err := s.client.Set(ctx, key, "revoked", ttl).Err(); err != nil {
		return fmt.Errorf("revoke %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("revocation lookup %q: %w", key, err)
	}
	return n > 0, nil
}

// RevokeCredential marks one credential id as revoked for ttl.
func (s *RedisStore) RevokeCredential(ctx context.Context, credentialID string, ttl time.Duration) error {
	return s.set(ctx, credentialPrefix+credentialID, ttl)
}

// RevokeSubject marks all of a subject's credentials as revoked for ttl.
func (s *RedisStore) RevokeSubject(ctx context.Context, subject string, ttl time.Duration) error {
	return s.set(ctx, subjectPrefix+subject, ttl)
}

// IsCredentialRevoked reports whether the credential id has a live record.
func (s *RedisStore) IsCredentialRevoked(ctx context.Context, credentialID string) (bool, error) {
	return s.exists(ctx, credentialPrefix+credentialID)
}

// IsSubjectRevoked reports whether the subject has a live revoke-all record.
func (s *RedisStore) IsSubjectRevoked(ctx context.Context, subject string) (bool, error) {
	return s.exists(ctx, subjectPrefix+subject)
}

var _ Store = (*RedisStore)(nil)
