// SPDX-License-Identifier: MIT

package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/UnknownEngineOfficial/XTeam/internal/event"
	"github.com/UnknownEngineOfficial/XTeam/internal/log"
)

// ErrNotConnected is returned by commands issued while the client has no
// live connection.
var ErrNotConnected = errors.New("ws: not connected")

// ClientState tracks the reconnector lifecycle.
type ClientState string

const (
	StateDisconnected ClientState = "disconnected"
	StateConnecting   ClientState = "connecting"
	StateConnected    ClientState = "connected"
	StateGaveUp       ClientState = "gave_up"
	StateClosed       ClientState = "closed"
)

// Handler receives events and lifecycle transitions. Both callbacks run on
// the client's internal goroutine; implementations must not block.
type Handler interface {
	OnEvent(ev event.Event)
	OnStateChange(from, to ClientState)
}

// ClientConfig configures the reconnecting client.
type ClientConfig struct {
	// URL is the streaming endpoint, e.g. ws://host/api/v1/ws.
	URL string
	// Token is the bearer credential, sent via the token query parameter.
	Token string
	// BaseDelay is the first reconnect delay; each retry doubles it up to
	// MaxDelay. Defaults: 500ms and 30s.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// MaxAttempts bounds consecutive failed connection attempts; 0 means
	// retry forever. Once exceeded the client transitions to StateGaveUp
	// and Run returns.
	MaxAttempts int
	// DialTimeout bounds a single handshake. Default 10s.
	DialTimeout time.Duration
}

// Client maintains a streaming connection, transparently reconnecting with
// bounded exponential backoff and restoring subscriptions after each
// reconnect.
type Client struct {
	cfg     ClientConfig
	handler Handler
	logger  zerolog.Logger

	mu      sync.Mutex
	state   ClientState
	conn    *websocket.Conn
	topics  map[string]ControlMessage
	closed  bool
	closeCh chan struct{}
}

// NewClient creates a client. The handler is fixed at construction so no
// event can arrive before a receiver exists.
func NewClient(cfg ClientConfig, handler Handler) *Client {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &Client{
		cfg:     cfg,
		handler: handler,
		logger:  log.WithComponent("ws.client"),
		state:   StateDisconnected,
		topics:  make(map[string]ControlMessage),
		closeCh: make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (c *Client) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run connects and serves until ctx is cancelled, Close is called, or the
// retry budget is exhausted.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		if c.isClosed() {
			return nil
		}
		c.transition(StateConnecting)

		conn, err := c.dial(ctx)
		if err != nil {
			if retryErr := c.retryDelay(ctx, &attempt, err); retryErr != nil {
				return retryErr
			}
			continue
		}

		// Restore subscriptions before announcing Connected, so the
		// caller never observes a connected client with missing topics.
		if err := c.restore(ctx, conn); err != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "resubscribe failed")
			if retryErr := c.retryDelay(ctx, &attempt, err); retryErr != nil {
				return retryErr
			}
			continue
		}

		c.setConn(conn)
		c.transition(StateConnected)
		attempt = 0

		err = c.readLoop(ctx, conn)
		c.setConn(nil)
		if c.isClosed() || ctx.Err() != nil {
			return nil
		}
		c.logger.Warn().Err(err).Msg("connection lost")
		c.transition(StateDisconnected)
	}
}

// retryDelay records a failed attempt and sleeps the backoff. Every
// retry path shares the same attempt counter, so resubscribe failures
// count against MaxAttempts just like dial failures. Returns non-nil
// when Run must stop; a nil return after Close falls through to the
// closed check at the top of the loop.
func (c *Client) retryDelay(ctx context.Context, attempt *int, cause error) error {
	c.transition(StateDisconnected)
	*attempt++
	if c.cfg.MaxAttempts > 0 && *attempt >= c.cfg.MaxAttempts {
		c.transition(StateGaveUp)
		return cause
	}
	delay := backoff(c.cfg.BaseDelay, c.cfg.MaxDelay, *attempt-1)
	c.logger.Warn().Err(cause).Int("attempt", *attempt).Dur("delay", delay).Msg("connect failed")
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closeCh:
		return nil
	case <-timer.C:
		return nil
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", c.cfg.Token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(dialCtx, u.String(), nil)
	if err != nil {
		return nil, err
	}

	// The server speaks first: wait for the connection ack.
	var ack Response
	if err := wsjson.Read(dialCtx, conn, &ack); err != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "no ack")
		return nil, err
	}
	if !ack.Success || ack.MessageType != MsgConnectionAck {
		_ = conn.Close(websocket.StatusNormalClosure, "bad ack")
		return nil, errors.New("ws: unexpected handshake response")
	}
	return conn, nil
}

// restore replays the recorded join frames on a fresh connection.
func (c *Client) restore(ctx context.Context, conn *websocket.Conn) error {
	c.mu.Lock()
	frames := make([]ControlMessage, 0, len(c.topics))
	for _, msg := range c.topics {
		frames = append(frames, msg)
	}
	c.mu.Unlock()

	for _, msg := range frames {
		if err := wsjson.Write(ctx, conn, msg); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			return err
		}

		// Pipeline events carry event_type; everything else is a
		// control response.
		var head struct {
			EventType string `json:"event_type"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			c.logger.Debug().Err(err).Msg("unreadable frame, skipped")
			continue
		}
		if head.EventType == "" {
			continue
		}
		var ev event.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.logger.Debug().Err(err).Msg("malformed event, skipped")
			continue
		}
		if c.handler != nil {
			c.handler.OnEvent(ev)
		}
	}
}

// JoinProject subscribes to a project's event stream. The subscription is
// recorded and transparently restored after reconnects.
func (c *Client) JoinProject(ctx context.Context, projectID string) error {
	return c.subscribe(ctx, "project:"+projectID, controlFrame(MsgJoinProject, ProjectPayload{ProjectID: projectID}))
}

// LeaveProject drops a project subscription.
func (c *Client) LeaveProject(ctx context.Context, projectID string) error {
	return c.unsubscribe(ctx, "project:"+projectID, controlFrame(MsgLeaveProject, ProjectPayload{ProjectID: projectID}))
}

// SubscribeExecution subscribes to a single execution's event stream.
func (c *Client) SubscribeExecution(ctx context.Context, executionID string) error {
	return c.subscribe(ctx, "execution:"+executionID, controlFrame(MsgSubscribeExecution, ExecutionPayload{ExecutionID: executionID}))
}

// UnsubscribeExecution drops an execution subscription.
func (c *Client) UnsubscribeExecution(ctx context.Context, executionID string) error {
	return c.unsubscribe(ctx, "execution:"+executionID, controlFrame(MsgUnsubscribeExecution, ExecutionPayload{ExecutionID: executionID}))
}

// Send forwards a user message for a project.
func (c *Client) Send(ctx context.Context, projectID string, content json.RawMessage) error {
	return c.writeFrame(ctx, controlFrame(MsgMessage, MessagePayload{ProjectID: projectID, Content: content}))
}

// Ping sends an application-level ping.
func (c *Client) Ping(ctx context.Context) error {
	return c.writeFrame(ctx, ControlMessage{Type: MsgPing})
}

// Close tears the connection down permanently. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	close(c.closeCh)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client closed")
	}
	c.transition(StateClosed)
}

func (c *Client) subscribe(ctx context.Context, topic string, msg ControlMessage) error {
	if err := c.writeFrame(ctx, msg); err != nil {
		return err
	}
	c.mu.Lock()
	c.topics[topic] = msg
	c.mu.Unlock()
	return nil
}

func (c *Client) unsubscribe(ctx context.Context, topic string, msg ControlMessage) error {
	c.mu.Lock()
	delete(c.topics, topic)
	c.mu.Unlock()
	return c.writeFrame(ctx, msg)
}

func (c *Client) writeFrame(ctx context.Context, msg ControlMessage) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()
	if conn == nil || state != StateConnected {
		return ErrNotConnected
	}
	return wsjson.Write(ctx, conn, msg)
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) transition(to ClientState) {
	c.mu.Lock()
	if c.closed && to != StateClosed {
		c.mu.Unlock()
		return
	}
	from := c.state
	if from == to {
		c.mu.Unlock()
		return
	}
	c.state = to
	c.mu.Unlock()

	c.logger.Debug().
		Str(log.FieldOldState, string(from)).
		Str(log.FieldNewState, string(to)).
		Msg("state change")
	if c.handler != nil {
		c.handler.OnStateChange(from, to)
	}
}

func controlFrame(msgType string, payload any) ControlMessage {
	raw, _ := json.Marshal(payload)
	return ControlMessage{Type: msgType, Payload: raw}
}

// backoff returns base*2^attempt capped at max.
func backoff(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
