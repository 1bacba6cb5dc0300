// SPDX-License-Identifier: MIT

package hub

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/UnknownEngineOfficial/XTeam/internal/event"
)

func publishEvent(h *Hub, typ event.Type, topic string) uint64 {
	return h.Publish(event.Event{
		Type:      typ,
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		Source:    "test",
	})
}

func TestHubSequencePerTopic(t *testing.T) {
	h := New(16)

	require.Equal(t, uint64(1), publishEvent(h, event.TypeAgentMessage, "project:a"))
	require.Equal(t, uint64(2), publishEvent(h, event.TypeAgentMessage, "project:a"))
	require.Equal(t, uint64(1), publishEvent(h, event.TypeAgentMessage, "project:b"))
	require.Equal(t, uint64(3), publishEvent(h, event.TypeAgentMessage, "project:a"))
}

func TestHubOrderingWithinTopic(t *testing.T) {
	h := New(64)
	q := h.Attach("conn-1")
	defer h.Detach("conn-1")
	require.True(t, h.Join("conn-1", "project:a"))

	for i := 0; i < 20; i++ {
		publishEvent(h, event.TypeAgentMessage, "project:a")
	}

	items, _ := q.PopAll()
	require.Len(t, items, 20)
	for i, it := range items {
		require.Equal(t, uint64(i+1), it.Seq)
	}
}

func TestHubFanOut(t *testing.T) {
	h := New(16)
	qa := h.Attach("conn-a")
	qb := h.Attach("conn-b")
	qc := h.Attach("conn-c")
	defer func() {
		h.Detach("conn-a")
		h.Detach("conn-b")
		h.Detach("conn-c")
	}()

	require.True(t, h.Join("conn-a", "project:a"))
	require.True(t, h.Join("conn-b", "project:a"))
	require.True(t, h.Join("conn-c", "project:other"))

	publishEvent(h, event.TypeFileCreated, "project:a")

	itemsA, _ := qa.PopAll()
	itemsB, _ := qb.PopAll()
	itemsC, _ := qc.PopAll()
	require.Len(t, itemsA, 1)
	require.Len(t, itemsB, 1)
	require.Empty(t, itemsC)
	require.Equal(t, itemsA[0].Seq, itemsB[0].Seq)
}

func TestHubJoinRequiresAttach(t *testing.T) {
	h := New(16)
	require.False(t, h.Join("ghost", "project:a"))
}

func TestHubJoinIdempotent(t *testing.T) {
	h := New(16)
	q := h.Attach("conn-1")
	defer h.Detach("conn-1")

	require.True(t, h.Join("conn-1", "project:a"))
	require.True(t, h.Join("conn-1", "project:a"))

	publishEvent(h, event.TypeAgentMessage, "project:a")
	items, _ := q.PopAll()
	require.Len(t, items, 1)
}

func TestHubLeaveStopsDelivery(t *testing.T) {
	h := New(16)
	q := h.Attach("conn-1")
	defer h.Detach("conn-1")
	h.Join("conn-1", "project:a")
	h.Leave("conn-1", "project:a")
	h.Leave("conn-1", "project:a") // idempotent

	publishEvent(h, event.TypeAgentMessage, "project:a")
	items, _ := q.PopAll()
	require.Empty(t, items)
}

func TestHubDetachIdempotent(t *testing.T) {
	h := New(16)
	q := h.Attach("conn-1")
	h.Join("conn-1", "project:a")

	h.Detach("conn-1")
	h.Detach("conn-1")

	require.True(t, q.Closed())
	require.Empty(t, h.Topics("conn-1"))

	// Publishing after detach must not panic or deliver.
	publishEvent(h, event.TypeAgentMessage, "project:a")
}

func TestHubSlowConsumerGetsGapNotStall(t *testing.T) {
	h := New(4)
	q := h.Attach("slow")
	defer h.Detach("slow")
	h.Join("slow", "project:a")

	for i := 0; i < 10; i++ {
		publishEvent(h, event.TypeAgentMessage, "project:a")
	}
	publishEvent(h, event.TypeError, "project:a")

	items, _ := q.PopAll()
	require.NotEmpty(t, items)
	require.Equal(t, event.TypeGap, items[0].Type)
	last := items[len(items)-1]
	require.Equal(t, event.TypeError, last.Type)
	require.Equal(t, uint64(11), last.Seq)
}

func TestHubStats(t *testing.T) {
	h := New(16)
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("conn-%d", i)
		h.Attach(id)
		h.Join(id, "project:a")
	}
	h.Join("conn-0", "project:b")

	s := h.Stats()
	require.Equal(t, 3, s.Subscribers)
	require.Equal(t, 2, s.Topics)
	require.Equal(t, 4, s.Subscriptions)

	for i := 0; i < 3; i++ {
		h.Detach(fmt.Sprintf("conn-%d", i))
	}
	s = h.Stats()
	require.Zero(t, s.Subscribers)
	require.Zero(t, s.Subscriptions)
}
