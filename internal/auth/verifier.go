// SPDX-License-Identifier: MIT

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/UnknownEngineOfficial/XTeam/internal/metrics"
	"github.com/UnknownEngineOfficial/XTeam/internal/revoke"
)

// Reason classifies why a credential was rejected. Reasons are for internal
// logging and metrics only; public endpoints surface a generic
// "unauthorized" instead.
type Reason string

const (
	ReasonMalformed Reason = "malformed"
	ReasonExpired   Reason = "expired"
	ReasonRevoked   Reason = "revoked"
	ReasonInactive  Reason = "inactive"
)

// RejectedError is a credential rejection with its internal reason.
type RejectedError struct {
	Reason Reason
	cause  error
}

func (e *RejectedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("credential rejected (%s): %v", e.Reason, e.cause)
	}
	return fmt.Sprintf("credential rejected (%s)", e.Reason)
}

func (e *RejectedError) Unwrap() error { return e.cause }

// ReasonOf extracts the rejection reason from a Verify error. Infra
// failures (revocation store down, directory unreachable) report "error".
func ReasonOf(err error) Reason {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return Reason("error")
}

// Directory is the external identity store collaborator: it knows whether a
// subject is still an active account.
type Directory interface {
	IsActive(ctx context.Context, subject string) (bool, error)
}

// DirectoryFunc adapts a function to the Directory interface.
type DirectoryFunc func(ctx context.Context, subject string) (bool, error)

func (f DirectoryFunc) IsActive(ctx context.Context, subject string) (bool, error) {
	return f(ctx, subject)
}

// Verifier validates a credential's signature, expiry, revocation status and
// subject liveness, short-circuiting on the first failure. A revocation
// store failure is fail-closed: a false accept on an authenticated channel
// is a security hole, so the credential is rejected.
type Verifier struct {
	secret      []byte
	revocations revoke.Store
	directory   Directory
	now         func() time.Time
}

// NewVerifier creates a verifier. directory may be nil when no external
// identity store is wired; the subject-active check is then skipped.
func NewVerifier(secret string, revocations revoke.Store, directory Directory) *Verifier {
	return &Verifier{
		secret:      []byte(secret),
		revocations: revocations,
		directory:   directory,
		now:         time.Now,
	}
}

func reject(reason Reason, cause error) error {
	metrics.IncAuthRejected(string(reason))
	return &RejectedError{Reason: reason, cause: cause}
}

// Verify checks the credential and returns the verified identity, or an
// error describing why it was rejected. Any returned error means "do not
// admit"; only *RejectedError carries a taxonomy reason.
func (v *Verifier) Verify(ctx context.Context, credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, reject(ReasonMalformed, errors.New("empty credential"))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(credential, claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, reject(ReasonExpired, err)
		}
		return Identity{}, reject(ReasonMalformed, err)
	}
	if claims.Subject == "" || claims.ID == "" || claims.ExpiresAt == nil {
		return Identity{}, reject(ReasonMalformed, errors.New("missing sub, jti or exp claim"))
	}

	id := Identity{
		Subject:      claims.Subject,
		CredentialID: claims.ID,
		ExpiresAt:    claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		id.IssuedAt = claims.IssuedAt.Time
	}

	revoked, err := v.revocations.IsCredentialRevoked(ctx, id.CredentialID)
	if err != nil {
		metrics.IncAuthRejected("revocation_unavailable")
		return Identity{}, fmt.Errorf("revocation check for credential %q: %w", id.CredentialID, err)
	}
	if revoked {
		return Identity{}, reject(ReasonRevoked, nil)
	}

	revoked, err = v.revocations.IsSubjectRevoked(ctx, id.Subject)
	if err != nil {
		metrics.IncAuthRejected("revocation_unavailable")
		return Identity{}, fmt.Errorf("revocation check for subject %q: %w", id.Subject, err)
	}
	if revoked {
		return Identity{}, reject(ReasonRevoked, nil)
	}

	if v.directory != nil {
		active, err := v.directory.IsActive(ctx, id.Subject)
		if err != nil {
			metrics.IncAuthRejected("directory_unavailable")
			return Identity{}, fmt.Errorf("subject lookup for %q: %w", id.Subject, err)
		}
		if !active {
			return Identity{}, reject(ReasonInactive, nil)
		}
	}

	return id, nil
}
