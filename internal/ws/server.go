// SPDX-License-Identifier: MIT

package ws

import (
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/UnknownEngineOfficial/XTeam/internal/auth"
	"github.com/UnknownEngineOfficial/XTeam/internal/hub"
	"github.com/UnknownEngineOfficial/XTeam/internal/log"
	"github.com/UnknownEngineOfficial/XTeam/internal/metrics"
	"github.com/UnknownEngineOfficial/XTeam/internal/ratelimit"
)

// Close reasons sent with 1008 on rejected handshakes. The socket is
// accepted first so the browser client can read the reason; HTTP status
// codes are invisible to the WebSocket API.
const (
	closeReasonUnauthorized = "unauthorized"
	closeReasonRateLimited  = "rate_limited"
)

// ServerConfig holds the tunables for the streaming endpoint.
type ServerConfig struct {
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	AllowedOrigins []string
	// ClientKey extracts the admission-gate key from the handshake
	// request. Defaults to the peer IP, so credential floods are charged
	// before any verification work happens.
	ClientKey ratelimit.KeyFunc
}

// Server upgrades, authenticates and admits streaming connections.
type Server struct {
	hub      *hub.Hub
	gate     *ratelimit.Gate
	verifier *auth.Verifier
	sink     CommandSink
	cfg      ServerConfig
}

// NewServer wires the streaming endpoint. sink may be nil; user messages
// are then rejected with an error response.
func NewServer(h *hub.Hub, gate *ratelimit.Gate, verifier *auth.Verifier, sink CommandSink, cfg ServerConfig) *Server {
	if cfg.ClientKey == nil {
		cfg.ClientKey = ratelimit.KeyByIP
	}
	return &Server{hub: h, gate: gate, verifier: verifier, sink: sink, cfg: cfg}
}

// ServeHTTP handles the WebSocket handshake. The admission gate runs
// before credential verification and is keyed by the peer, so handshake
// floods with bogus tokens still drain the flooder's budget. Admission
// and authentication failures close the accepted socket with 1008 and a
// machine-readable reason rather than failing the HTTP upgrade.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := log.WithContext(r.Context(), log.WithComponent("ws"))

	token := auth.ExtractToken(r, true)
	clientKey := s.cfg.ClientKey(r)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowedOrigins,
	})
	if err != nil {
		logger.Debug().Err(err).Msg("handshake failed")
		return
	}

	d := s.gate.Check(r.Context(), clientKey, r.URL.Path, time.Now())
	if !d.Allowed {
		logger.Info().
			Str("client", clientKey).
			Dur("retry_after", d.RetryAfter).
			Msg("connection rate limited")
		_ = conn.Close(websocket.StatusPolicyViolation, closeReasonRateLimited)
		return
	}

	if token == "" {
		metrics.IncAuthRejected("missing")
		_ = conn.Close(websocket.StatusPolicyViolation, closeReasonUnauthorized)
		return
	}

	identity, err := s.verifier.Verify(r.Context(), token)
	if err != nil {
		logger.Info().
			Str(log.FieldReason, string(auth.ReasonOf(err))).
			Msg("connection rejected")
		_ = conn.Close(websocket.StatusPolicyViolation, closeReasonUnauthorized)
		return
	}

	sess := newSession(uuid.NewString(), conn, s.hub, identity, s.sink, s.cfg.WriteTimeout, s.cfg.PingInterval)
	sess.run(r.Context())
}
