// SPDX-License-Identifier: MIT

// Package event defines the pipeline event model carried from the
// orchestration process to subscribed clients.
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type identifies the kind of a pipeline event.
type Type string

const (
	TypeAgentMessage      Type = "agent_message"
	TypeExecutionStart    Type = "execution_start"
	TypeExecutionComplete Type = "execution_complete"
	TypeStageStart        Type = "stage_start"
	TypeFileCreated       Type = "file_created"
	TypeError             Type = "error"

	// TypeGap is synthetic: it marks a hole left where buffered events had
	// to be dropped for a slow consumer. It is never produced by the
	// pipeline itself.
	TypeGap Type = "stream_gap"
)

// Valid reports whether t is a known event type.
func (t Type) Valid() bool {
	switch t {
	case TypeAgentMessage, TypeExecutionStart, TypeExecutionComplete,
		TypeStageStart, TypeFileCreated, TypeError, TypeGap:
		return true
	}
	return false
}

// Critical reports whether events of this type must never be dropped under
// backpressure. Losing a terminal event silently would leave clients
// believing an execution is still running.
func (t Type) Critical() bool {
	return t == TypeError || t == TypeExecutionComplete
}

// Droppable reports whether an event of this type may be displaced from a
// full outbound queue.
func (t Type) Droppable() bool {
	return !t.Critical() && t != TypeGap
}

// Event is one pipeline event, immutable once emitted. Seq is assigned by
// the fan-out hub and increases monotonically per topic.
type Event struct {
	Type        Type            `json:"event_type"`
	Topic       string          `json:"topic"`
	Seq         uint64          `json:"seq"`
	Data        json.RawMessage `json:"data,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Source      string          `json:"source,omitempty"`
	ProjectID   string          `json:"project_id,omitempty"`
	ExecutionID string          `json:"execution_id,omitempty"`
}

// Validate checks the fields a publisher must supply. Seq is excluded: it is
// assigned at publish time.
func (e Event) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.Topic == "" {
		return fmt.Errorf("event of type %q has no topic", e.Type)
	}
	return nil
}

// Gap builds the synthetic marker enqueued in place of dropped events.
func Gap(topic string, ts time.Time) Event {
	return Event{
		Type:      TypeGap,
		Topic:     topic,
		Data:      json.RawMessage(`{"reason":"slow_consumer"}`),
		Timestamp: ts,
	}
}

// ProjectTopic returns the topic carrying all events of one project.
func ProjectTopic(projectID string) string {
	return "project:" + projectID
}

// ExecutionTopic returns the topic carrying all events of one execution.
func ExecutionTopic(executionID string) string {
	return "execution:" + executionID
}
