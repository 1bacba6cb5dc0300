// SPDX-License-Identifier: MIT

// Package ws implements the realtime channel: the server-side WebSocket
// endpoint that authenticates, admits and serves subscribers, and a
// reconnecting client for consumers.
package ws

import (
	"encoding/json"
	"time"
)

// Control message types accepted from clients.
const (
	MsgJoinProject          = "join_project"
	MsgLeaveProject         = "leave_project"
	MsgSubscribeExecution   = "subscribe_execution"
	MsgUnsubscribeExecution = "unsubscribe_execution"
	MsgMessage              = "message"
	MsgPing                 = "ping"
)

// Server-originated message types.
const (
	MsgConnectionAck = "connection_ack"
	MsgPong          = "pong"
)

// ControlMessage is the envelope for every client-to-server frame.
type ControlMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ProjectPayload carries the project reference for join/leave.
type ProjectPayload struct {
	ProjectID string `json:"project_id"`
}

// ExecutionPayload carries the execution reference for subscribe and
// unsubscribe.
type ExecutionPayload struct {
	ExecutionID string `json:"execution_id"`
}

// MessagePayload is an opaque user message forwarded to the command sink.
type MessagePayload struct {
	ProjectID string          `json:"project_id"`
	Content   json.RawMessage `json:"content"`
}

// Response is the envelope for every server-to-client frame that is not a
// pipeline event.
type Response struct {
	Success     bool           `json:"success"`
	MessageType string         `json:"message_type"`
	Data        map[string]any `json:"data,omitempty"`
	Error       string         `json:"error,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

func okResponse(msgType string, data map[string]any) Response {
	return Response{
		Success:     true,
		MessageType: msgType,
		Data:        data,
		Timestamp:   time.Now().UTC(),
	}
}

func errResponse(msgType, msg string) Response {
	return Response{
		Success:     false,
		MessageType: msgType,
		Error:       msg,
		Timestamp:   time.Now().UTC(),
	}
}
