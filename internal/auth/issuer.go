// SPDX-License-Identifier: MIT

package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer mints HS256-signed credentials. Credential issuance normally lives
// in the auth service; the daemon keeps a local issuer for operator tooling
// and tests.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer creates an issuer signing with secret; tokens live for ttl.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

// Issue mints a credential for subject and returns the signed token along
// with its identity attributes.
func (i *Issuer) Issue(subject string) (string, Identity, error) {
	return i.IssueAt(subject, time.Now())
}

// IssueAt mints a credential with an explicit issuance instant.
func (i *Issuer) IssueAt(subject string, now time.Time) (string, Identity, error) {
	id := Identity{
		Subject:      subject,
		CredentialID: uuid.NewString(),
		IssuedAt:     now,
		ExpiresAt:    now.Add(i.ttl),
	}

	claims := jwt.RegisteredClaims{
		Subject:   id.Subject,
		ID:        id.CredentialID,
		IssuedAt:  jwt.NewNumericDate(id.IssuedAt),
		ExpiresAt: jwt.NewNumericDate(id.ExpiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", Identity{}, fmt.Errorf("sign credential for %q: %w", subject, err)
	}
	return signed, id, nil
}
