// SPDX-License-Identifier: MIT

// Package auth issues and verifies the bearer credentials guarding the REST
// and streaming entry points.
package auth

import "time"

// Identity is the verified subject behind a credential.
type Identity struct {
	// Subject is the stable user id the credential was issued to.
	Subject string
	// CredentialID is the unique id (jti) of this credential, used for
	// per-credential revocation.
	CredentialID string
	// IssuedAt and ExpiresAt bound the credential's lifetime.
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Remaining returns the credential's remaining lifetime at now. Revocation
// records use this as their TTL.
func (id Identity) Remaining(now time.Time) time.Duration {
	return id.ExpiresAt.Sub(now)
}
