// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID    = "request_id"
	FieldConnectionID = "connection_id"
	FieldSubject      = "subject"
	FieldClientKey    = "client_key"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldReason    = "reason"

	// Stream fields
	FieldTopic     = "topic"
	FieldEventType = "event_type"
	FieldSeq       = "seq"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path fields
	FieldPath = "path"
)
