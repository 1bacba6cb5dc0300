// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"time"

	"github.com/UnknownEngineOfficial/XTeam/internal/log"
)

// handleLogout revokes the presented credential for its remaining
// lifetime. The credential stops working immediately on every node that
// shares the revocation store.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	logger := log.WithContext(r.Context(), log.WithComponent("api"))
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	ttl := identity.Remaining(time.Now())
	if err := s.revocations.RevokeCredential(r.Context(), identity.CredentialID, ttl); err != nil {
		logger.Error().
			Err(err).
			Str(log.FieldSubject, identity.Subject).
			Msg("credential revocation failed")
		writeError(w, http.StatusServiceUnavailable, "revocation_unavailable", "could not revoke credential")
		return
	}

	logger.Info().
		Str(log.FieldSubject, identity.Subject).
		Msg("credential revoked")
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// handleLogoutAll revokes every credential of the subject by blocking the
// subject itself for a full token lifetime: any still-live credential
// expires before the block does.
func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	logger := log.WithContext(r.Context(), log.WithComponent("api"))
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	if err := s.revocations.RevokeSubject(r.Context(), identity.Subject, s.cfg.TokenTTL); err != nil {
		logger.Error().
			Err(err).
			Str(log.FieldSubject, identity.Subject).
			Msg("subject revocation failed")
		writeError(w, http.StatusServiceUnavailable, "revocation_unavailable", "could not revoke sessions")
		return
	}

	logger.Info().
		Str(log.FieldSubject, identity.Subject).
		Msg("all sessions revoked")
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out_all"})
}

// handleStats reports live hub counters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Stats())
}
