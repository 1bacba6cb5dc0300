// SPDX-License-Identifier: MIT

// Package revoke tracks revoked credentials and subjects. Records carry a
// TTL equal to the credential's remaining lifetime, so they disappear once
// the credential would have expired anyway.
package revoke

import (
	"context"
	"time"
)

// Store is the revocation collaborator consumed by the identity verifier.
type Store interface {
	// RevokeCredential marks a single credential (by its id) as revoked.
	RevokeCredential(ctx context.Context, credentialID string, ttl time.Duration) error
	// RevokeSubject marks every credential of a subject as revoked
	// ("revoke all sessions").
	RevokeSubject(ctx context.Context, subject string, ttl time.Duration) error
	// IsCredentialRevoked reports whether the credential id is revoked.
	IsCredentialRevoked(ctx context.Context, credentialID string) (bool, error)
	// IsSubjectRevoked reports whether all of the subject's credentials
	// are revoked.
	IsSubjectRevoked(ctx context.Context, subject string) (bool, error)
}
