// SPDX-License-Identifier: MIT

package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTypeClassification(t *testing.T) {
	require.True(t, TypeError.Critical())
	require.True(t, TypeExecutionComplete.Critical())
	require.False(t, TypeAgentMessage.Critical())

	require.True(t, TypeAgentMessage.Droppable())
	require.True(t, TypeStageStart.Droppable())
	require.False(t, TypeError.Droppable())
	require.False(t, TypeExecutionComplete.Droppable())
	require.False(t, TypeGap.Droppable())

	require.False(t, Type("heartbeat").Valid())
}

func TestValidate(t *testing.T) {
	ev := Event{Type: TypeStageStart, Topic: ProjectTopic("proj-42")}
	require.NoError(t, ev.Validate())

	require.Error(t, Event{Type: "bogus", Topic: "t"}.Validate())
	require.Error(t, Event{Type: TypeStageStart}.Validate())
}

func TestWireFrameFields(t *testing.T) {
	ev := Event{
		Type:        TypeFileCreated,
		Topic:       ExecutionTopic("exec-9"),
		Seq:         7,
		Data:        json.RawMessage(`{"path":"main.go"}`),
		Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Source:      "engineer",
		ExecutionID: "exec-9",
	}

	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var frame map[string]any
	require.NoError(t, json.Unmarshal(raw, &frame))
	require.Equal(t, "file_created", frame["event_type"])
	require.Equal(t, "execution:exec-9", frame["topic"])
	require.Equal(t, float64(7), frame["seq"])
	require.Equal(t, "exec-9", frame["execution_id"])
	require.NotContains(t, frame, "project_id")
}
