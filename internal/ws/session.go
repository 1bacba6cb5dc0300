// SPDX-License-Identifier: MIT

package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/UnknownEngineOfficial/XTeam/internal/auth"
	"github.com/UnknownEngineOfficial/XTeam/internal/event"
	"github.com/UnknownEngineOfficial/XTeam/internal/hub"
	"github.com/UnknownEngineOfficial/XTeam/internal/log"
)

// CommandSink receives user messages forwarded over the channel. The
// pipeline orchestrator implements it; a nil sink rejects messages.
type CommandSink interface {
	HandleMessage(ctx context.Context, identity auth.Identity, projectID string, content json.RawMessage) error
}

// session serves one authenticated connection: it drains the subscriber
// queue into the socket and processes inbound control messages.
type session struct {
	id       string
	conn     *websocket.Conn
	hub      *hub.Hub
	queue    *hub.Queue
	identity auth.Identity
	sink     CommandSink

	writeTimeout time.Duration
	pingInterval time.Duration

	// writeMu serializes socket writes between the control responder and
	// the event pump.
	writeMu   sync.Mutex
	closeOnce sync.Once
	logger    zerolog.Logger
}

func newSession(id string, conn *websocket.Conn, h *hub.Hub, identity auth.Identity, sink CommandSink, writeTimeout, pingInterval time.Duration) *session {
	return &session{
		id:           id,
		conn:         conn,
		hub:          h,
		queue:        h.Attach(id),
		identity:     identity,
		sink:         sink,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		logger: log.WithComponent("ws").With().
			Str(log.FieldConnectionID, id).
			Str(log.FieldSubject, identity.Subject).
			Logger(),
	}
}

// run serves the connection until the peer disconnects or ctx ends.
func (s *session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.teardown(websocket.StatusNormalClosure, "closed")

	if err := s.write(ctx, okResponse(MsgConnectionAck, map[string]any{
		"connection_id": s.id,
		"subject":       s.identity.Subject,
	})); err != nil {
		return
	}
	s.logger.Info().Msg("connection established")

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		s.pump(ctx)
		cancel()
	}()

	s.readLoop(ctx)
	cancel()
	<-pumpDone
	s.logger.Info().Msg("connection closed")
}

// pump drains the subscriber queue into the socket and keeps the
// connection alive with protocol pings.
func (s *session) pump(ctx context.Context) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
			err := s.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		case _, open := <-s.queue.Notify():
			if !open {
				return
			}
			events, open := s.queue.PopAll()
			for _, ev := range events {
				if err := s.write(ctx, ev); err != nil {
					s.logger.Warn().Err(err).Msg("event write failed")
					return
				}
			}
			if !open {
				return
			}
		}
	}
}

func (s *session) readLoop(ctx context.Context) {
	for {
		// Frames are decoded by hand: a frame that is not valid JSON
		// earns an error response, not a dead session.
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Debug().Err(err).Msg("read failed")
			return
		}

		var msg ControlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug().Err(err).Msg("undecodable control frame")
			if werr := s.write(ctx, errResponse("error", "invalid message encoding")); werr != nil {
				return
			}
			continue
		}
		if err := s.handle(ctx, msg); err != nil {
			return
		}
	}
}

func (s *session) handle(ctx context.Context, msg ControlMessage) error {
	switch msg.Type {
	case MsgJoinProject:
		var p ProjectPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.ProjectID == "" {
			return s.write(ctx, errResponse(msg.Type, "project_id is required"))
		}
		s.hub.Join(s.id, event.ProjectTopic(p.ProjectID))
		s.logger.Debug().Str(log.FieldTopic, event.ProjectTopic(p.ProjectID)).Msg("joined project")
		return s.write(ctx, okResponse(msg.Type, map[string]any{"project_id": p.ProjectID}))

	case MsgLeaveProject:
		var p ProjectPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.ProjectID == "" {
			return s.write(ctx, errResponse(msg.Type, "project_id is required"))
		}
		s.hub.Leave(s.id, event.ProjectTopic(p.ProjectID))
		return s.write(ctx, okResponse(msg.Type, map[string]any{"project_id": p.ProjectID}))

	case MsgSubscribeExecution:
		var p ExecutionPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.ExecutionID == "" {
			return s.write(ctx, errResponse(msg.Type, "execution_id is required"))
		}
		s.hub.Join(s.id, event.ExecutionTopic(p.ExecutionID))
		return s.write(ctx, okResponse(msg.Type, map[string]any{"execution_id": p.ExecutionID}))

	case MsgUnsubscribeExecution:
		var p ExecutionPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.ExecutionID == "" {
			return s.write(ctx, errResponse(msg.Type, "execution_id is required"))
		}
		s.hub.Leave(s.id, event.ExecutionTopic(p.ExecutionID))
		return s.write(ctx, okResponse(msg.Type, map[string]any{"execution_id": p.ExecutionID}))

	case MsgMessage:
		var p MessagePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.ProjectID == "" {
			return s.write(ctx, errResponse(msg.Type, "project_id is required"))
		}
		if s.sink == nil {
			return s.write(ctx, errResponse(msg.Type, "message handling unavailable"))
		}
		if err := s.sink.HandleMessage(ctx, s.identity, p.ProjectID, p.Content); err != nil {
			s.logger.Warn().Err(err).Msg("message rejected by sink")
			return s.write(ctx, errResponse(msg.Type, "message rejected"))
		}
		return s.write(ctx, okResponse(msg.Type, map[string]any{"project_id": p.ProjectID}))

	case MsgPing:
		return s.write(ctx, okResponse(MsgPong, nil))

	default:
		return s.write(ctx, errResponse(msg.Type, fmt.Sprintf("unknown message type %q", msg.Type)))
	}
}

// write marshals v to the socket under the write lock with the configured
// deadline.
func (s *session) write(ctx context.Context, v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, s.conn, v)
}

// teardown detaches from the hub and closes the socket exactly once.
func (s *session) teardown(code websocket.StatusCode, reason string) {
	s.closeOnce.Do(func() {
		s.hub.Detach(s.id)
		_ = s.conn.Close(code, reason)
	})
}
