// SPDX-License-Identifier: MIT

package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"

	"github.com/UnknownEngineOfficial/XTeam/internal/auth"
	"github.com/UnknownEngineOfficial/XTeam/internal/event"
	"github.com/UnknownEngineOfficial/XTeam/internal/hub"
	"github.com/UnknownEngineOfficial/XTeam/internal/ratelimit"
	"github.com/UnknownEngineOfficial/XTeam/internal/revoke"
)

const testSecret = "test-secret-0123456789abcdef0123"

type testEnv struct {
	hub    *hub.Hub
	issuer *auth.Issuer
	srv    *httptest.Server
	url    string
}

func newTestEnv(t *testing.T, requestsPerMinute int, sink CommandSink) *testEnv {
	t.Helper()

	h := hub.New(16)
	issuer := auth.NewIssuer(testSecret, 30*time.Minute)
	verifier := auth.NewVerifier(testSecret, revoke.NewMemoryStore(0), nil)
	gate := ratelimit.NewGate(
		ratelimit.NewMemoryStore(requestsPerMinute, time.Hour),
		ratelimit.Config{RequestsPerMinute: requestsPerMinute},
	)

	server := NewServer(h, gate, verifier, sink, ServerConfig{
		WriteTimeout: 5 * time.Second,
		PingInterval: time.Minute,
	})
	srv := httptest.NewServer(server)
	t.Cleanup(srv.Close)

	return &testEnv{
		hub:    h,
		issuer: issuer,
		srv:    srv,
		url:    "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

func dialWS(t *testing.T, env *testEnv, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, env.url+"?token="+token, nil)
	require.NoError(t, err)
	return conn
}

func readResponse(t *testing.T, conn *websocket.Conn) Response {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var resp Response
	require.NoError(t, wsjson.Read(ctx, conn, &resp))
	return resp
}

func sendControl(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, controlFrame(msgType, payload)))
}

func TestServerHandshakeAck(t *testing.T) {
	env := newTestEnv(t, 60, nil)
	token, _, err := env.issuer.Issue("user-1")
	require.NoError(t, err)

	conn := dialWS(t, env, token)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	ack := readResponse(t, conn)
	require.True(t, ack.Success)
	require.Equal(t, MsgConnectionAck, ack.MessageType)
	require.Equal(t, "user-1", ack.Data["subject"])
	require.NotEmpty(t, ack.Data["connection_id"])
}

func TestServerRejectsInvalidToken(t *testing.T) {
	env := newTestEnv(t, 60, nil)

	conn := dialWS(t, env, "not-a-token")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var resp Response
	err := wsjson.Read(ctx, conn, &resp)
	require.Error(t, err)
	require.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))

	var ce websocket.CloseError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, closeReasonUnauthorized, ce.Reason)
}

func TestServerRejectsMissingToken(t *testing.T) {
	env := newTestEnv(t, 60, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, env.url, nil)
	require.NoError(t, err)

	var resp Response
	err = wsjson.Read(ctx, conn, &resp)
	require.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestServerRateLimitsHandshakes(t *testing.T) {
	env := newTestEnv(t, 1, nil)
	token, _, err := env.issuer.Issue("user-1")
	require.NoError(t, err)

	first := dialWS(t, env, token)
	defer first.Close(websocket.StatusNormalClosure, "done")
	readResponse(t, first)

	second := dialWS(t, env, token)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var resp Response
	err = wsjson.Read(ctx, second, &resp)
	require.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))

	var ce websocket.CloseError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, closeReasonRateLimited, ce.Reason)
}

func TestServerChargesGateBeforeVerifying(t *testing.T) {
	env := newTestEnv(t, 1, nil)
	token, _, err := env.issuer.Issue("user-1")
	require.NoError(t, err)

	// A handshake with a bogus token drains the caller's budget before
	// the credential is ever inspected.
	bad := dialWS(t, env, "not-a-token")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var resp Response
	err = wsjson.Read(ctx, bad, &resp)
	require.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	var ce websocket.CloseError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, closeReasonUnauthorized, ce.Reason)

	second := dialWS(t, env, token)
	err = wsjson.Read(ctx, second, &resp)
	require.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	require.ErrorAs(t, err, &ce)
	require.Equal(t, closeReasonRateLimited, ce.Reason)
}

func TestServerSurvivesUndecodableFrame(t *testing.T) {
	env := newTestEnv(t, 60, nil)
	token, _, err := env.issuer.Issue("user-1")
	require.NoError(t, err)

	conn := dialWS(t, env, token)
	defer conn.Close(websocket.StatusNormalClosure, "done")
	readResponse(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{not json`)))

	resp := readResponse(t, conn)
	require.False(t, resp.Success)
	require.Contains(t, resp.Error, "invalid message encoding")

	// The session is still serviceable afterwards.
	sendControl(t, conn, MsgPing, nil)
	pong := readResponse(t, conn)
	require.True(t, pong.Success)
	require.Equal(t, MsgPong, pong.MessageType)
}

func TestServerJoinAndOrderedDelivery(t *testing.T) {
	env := newTestEnv(t, 60, nil)
	token, _, err := env.issuer.Issue("user-1")
	require.NoError(t, err)

	conn := dialWS(t, env, token)
	defer conn.Close(websocket.StatusNormalClosure, "done")
	readResponse(t, conn)

	sendControl(t, conn, MsgJoinProject, ProjectPayload{ProjectID: "p1"})
	resp := readResponse(t, conn)
	require.True(t, resp.Success)
	require.Equal(t, MsgJoinProject, resp.MessageType)

	for i := 0; i < 5; i++ {
		env.hub.Publish(event.Event{
			Type:      event.TypeAgentMessage,
			Topic:     event.ProjectTopic("p1"),
			Timestamp: time.Now().UTC(),
			Source:    "test",
			ProjectID: "p1",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 5; i++ {
		var ev event.Event
		require.NoError(t, wsjson.Read(ctx, conn, &ev))
		require.Equal(t, event.TypeAgentMessage, ev.Type)
		require.Equal(t, uint64(i+1), ev.Seq)
		require.Equal(t, event.ProjectTopic("p1"), ev.Topic)
	}
}

func TestServerLeaveStopsDelivery(t *testing.T) {
	env := newTestEnv(t, 60, nil)
	token, _, err := env.issuer.Issue("user-1")
	require.NoError(t, err)

	conn := dialWS(t, env, token)
	defer conn.Close(websocket.StatusNormalClosure, "done")
	readResponse(t, conn)

	sendControl(t, conn, MsgJoinProject, ProjectPayload{ProjectID: "p1"})
	readResponse(t, conn)
	sendControl(t, conn, MsgLeaveProject, ProjectPayload{ProjectID: "p1"})
	resp := readResponse(t, conn)
	require.True(t, resp.Success)

	env.hub.Publish(event.Event{
		Type:      event.TypeAgentMessage,
		Topic:     event.ProjectTopic("p1"),
		Timestamp: time.Now().UTC(),
		Source:    "test",
	})

	// Only a ping response should come back, no event frame.
	sendControl(t, conn, MsgPing, nil)
	pong := readResponse(t, conn)
	require.Equal(t, MsgPong, pong.MessageType)
}

func TestServerPingPong(t *testing.T) {
	env := newTestEnv(t, 60, nil)
	token, _, err := env.issuer.Issue("user-1")
	require.NoError(t, err)

	conn := dialWS(t, env, token)
	defer conn.Close(websocket.StatusNormalClosure, "done")
	readResponse(t, conn)

	sendControl(t, conn, MsgPing, nil)
	pong := readResponse(t, conn)
	require.True(t, pong.Success)
	require.Equal(t, MsgPong, pong.MessageType)
}

func TestServerRejectsUnknownMessageType(t *testing.T) {
	env := newTestEnv(t, 60, nil)
	token, _, err := env.issuer.Issue("user-1")
	require.NoError(t, err)

	conn := dialWS(t, env, token)
	defer conn.Close(websocket.StatusNormalClosure, "done")
	readResponse(t, conn)

	sendControl(t, conn, "bogus", nil)
	resp := readResponse(t, conn)
	require.False(t, resp.Success)
	require.Contains(t, resp.Error, "unknown message type")
}

func TestServerRejectsJoinWithoutProjectID(t *testing.T) {
	env := newTestEnv(t, 60, nil)
	token, _, err := env.issuer.Issue("user-1")
	require.NoError(t, err)

	conn := dialWS(t, env, token)
	defer conn.Close(websocket.StatusNormalClosure, "done")
	readResponse(t, conn)

	sendControl(t, conn, MsgJoinProject, ProjectPayload{})
	resp := readResponse(t, conn)
	require.False(t, resp.Success)
	require.Contains(t, resp.Error, "project_id")
}

type recordingSink struct {
	ch chan string
}

func (s *recordingSink) HandleMessage(_ context.Context, identity auth.Identity, projectID string, content json.RawMessage) error {
	s.ch <- identity.Subject + "/" + projectID + "/" + string(content)
	return nil
}

func TestServerForwardsMessagesToSink(t *testing.T) {
	sink := &recordingSink{ch: make(chan string, 1)}
	env := newTestEnv(t, 60, sink)
	token, _, err := env.issuer.Issue("user-1")
	require.NoError(t, err)

	conn := dialWS(t, env, token)
	defer conn.Close(websocket.StatusNormalClosure, "done")
	readResponse(t, conn)

	sendControl(t, conn, MsgMessage, MessagePayload{
		ProjectID: "p1",
		Content:   json.RawMessage(`{"text":"hi"}`),
	})
	resp := readResponse(t, conn)
	require.True(t, resp.Success)

	select {
	case got := <-sink.ch:
		require.Equal(t, `user-1/p1/{"text":"hi"}`, got)
	case <-time.After(5 * time.Second):
		t.Fatal("sink never saw the message")
	}
}

func TestServerMessageWithoutSink(t *testing.T) {
	env := newTestEnv(t, 60, nil)
	token, _, err := env.issuer.Issue("user-1")
	require.NoError(t, err)

	conn := dialWS(t, env, token)
	defer conn.Close(websocket.StatusNormalClosure, "done")
	readResponse(t, conn)

	sendControl(t, conn, MsgMessage, MessagePayload{ProjectID: "p1"})
	resp := readResponse(t, conn)
	require.False(t, resp.Success)
}

func TestServerDetachesOnDisconnect(t *testing.T) {
	env := newTestEnv(t, 60, nil)
	token, _, err := env.issuer.Issue("user-1")
	require.NoError(t, err)

	conn := dialWS(t, env, token)
	readResponse(t, conn)
	sendControl(t, conn, MsgJoinProject, ProjectPayload{ProjectID: "p1"})
	readResponse(t, conn)

	require.Equal(t, 1, env.hub.Stats().Subscribers)
	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))

	require.Eventually(t, func() bool {
		return env.hub.Stats().Subscribers == 0
	}, 5*time.Second, 20*time.Millisecond)
}
