// SPDX-License-Identifier: MIT

package revoke

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process revocation store for single-node deployments
// without Redis, and for tests. Expired records are dropped lazily on read
// and swept by a janitor goroutine.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time // key -> expiry
	janitor *janitor
}

// NewMemoryStore creates an in-memory revocation store. A positive
// cleanupInterval starts a background sweep of expired records; call Stop
// to terminate it.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{entries: make(map[string]time.Time)}
	if cleanupInterval > 0 {
		s.janitor = &janitor{
			interval: cleanupInterval,
			stop:     make(chan struct{}),
		}
		go s.janitor.run(s)
	}
	return s
}

func (s *MemoryStore) set(key string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = time.Now().Add(ttl)
}

func (s *MemoryStore) exists(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.entries[key]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(s.entries, key)
		return false
	}
	return true
}

// RevokeCredential marks one credential id as revoked for ttl.
func (s *MemoryStore) RevokeCredential(_ context.Context, credentialID string, ttl time.Duration) error {
	s.set(credentialPrefix+credentialID, ttl)
	return nil
}

// RevokeSubject marks all of a subject's credentials as revoked for ttl.
func (s *MemoryStore) RevokeSubject(_ context.Context, subject string, ttl time.Duration) error {
	s.set(subjectPrefix+subject, ttl)
	return nil
}

// IsCredentialRevoked reports whether the credential id has a live record.
func (s *MemoryStore) IsCredentialRevoked(_ context.Context, credentialID string) (bool, error) {
	return s.exists(credentialPrefix + credentialID), nil
}

// IsSubjectRevoked reports whether the subject has a live revoke-all record.
func (s *MemoryStore) IsSubjectRevoked(_ context.Context, subject string) (bool, error) {
	return s.exists(subjectPrefix + subject), nil
}

// Stop terminates the janitor goroutine, if one was started.
func (s *MemoryStore) Stop() {
	if s.janitor != nil {
		close(s.janitor.stop)
	}
}

func (s *MemoryStore) deleteExpired() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, expiry := range s.entries {
		if now.After(expiry) {
			delete(s.entries, key)
		}
	}
}

type janitor struct {
	interval time.Duration
	stop     chan struct{}
}

func (j *janitor) run(s *MemoryStore) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.deleteExpired()
		case <-j.stop:
			return
		}
	}
}

var _ Store = (*MemoryStore)(nil)
