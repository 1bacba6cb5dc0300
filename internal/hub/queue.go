// SPDX-License-Identifier: MIT

package hub

import (
	"sync"
	"time"

	"github.com/UnknownEngineOfficial/XTeam/internal/event"
)

// PushOutcome reports what happened to an event pushed onto a queue.
type PushOutcome int

const (
	// PushOK: the event was enqueued without loss.
	PushOK PushOutcome = iota
	// PushDisplaced: the event was enqueued, but an older droppable event
	// was removed and a gap marker left in its place.
	PushDisplaced
	// PushRejected: the event itself was dropped (queue full of
	// undroppable entries). Never returned for critical events.
	PushRejected
	// PushClosed: the queue is closed; the connection is tearing down.
	PushClosed
)

// Queue is the bounded outbound queue owned by one connection session.
// Producers (the fan-out hub) push without blocking; the session's write
// pump drains it. When the queue is full the oldest droppable event is
// displaced by a synthetic gap marker; critical events are never dropped
// and may transiently exceed the capacity if everything buffered is
// critical.
type Queue struct {
	mu       sync.Mutex
	items    []event.Event
	capacity int
	closed   bool
	notify   chan struct{}
}

// NewQueue creates a queue holding at most capacity events.
func NewQueue(capacity int) *Queue {
	return &Queue{
		items:    make([]event.Event, 0, capacity),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Notify returns a channel that receives a signal whenever the queue goes
// non-empty, and is closed when the queue closes.
func (q *Queue) Notify() <-chan struct{} { return q.notify }

// Push enqueues ev, applying the displacement policy on overflow.
func (q *Queue) Push(ev event.Event) PushOutcome {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return PushClosed
	}

	outcome := PushOK
	if len(q.items) >= q.capacity {
		freed := q.displaceOldest()
		switch {
		case freed:
			outcome = PushDisplaced
		case ev.Type.Critical():
			// Everything buffered is undroppable. The critical event
			// still goes in; capacity is exceeded until the drain
			// catches up.
			outcome = PushDisplaced
		default:
			// No slot and the incoming event is droppable: it is the
			// one that gets lost. Make sure the tail records the hole.
			if n := len(q.items); n == 0 || q.items[n-1].Type != event.TypeGap {
				gap := event.Gap(ev.Topic, time.Now())
				gap.Seq = ev.Seq
				q.items = append(q.items, gap)
				q.signal()
			}
			return PushRejected
		}
	}

	q.items = append(q.items, ev)
	q.signal()
	return outcome
}

// displaceOldest frees one slot by removing the oldest droppable event,
// leaving (or merging into) a gap marker so the consumer can tell that
// something is missing. Returns false if nothing was droppable.
// Caller must hold q.mu.
func (q *Queue) displaceOldest() bool {
	idx := -1
	for i, it := range q.items {
		if it.Type.Droppable() {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	if idx > 0 && q.items[idx-1].Type == event.TypeGap {
		// Merge into the preceding gap: remove outright, slot freed.
		q.items = append(q.items[:idx], q.items[idx+1:]...)
		return true
	}

	// Replace with a gap marker carrying the displaced event's position,
	// then free a slot by removing the next droppable event if there is
	// one.
	gap := event.Gap(q.items[idx].Topic, time.Now())
	gap.Seq = q.items[idx].Seq
	q.items[idx] = gap

	for j := idx + 1; j < len(q.items); j++ {
		if q.items[j].Type.Droppable() {
			q.items = append(q.items[:j], q.items[j+1:]...)
			return true
		}
	}
	return false
}

// PopAll drains every buffered event. The second return is false once the
// queue is closed and empty.
func (q *Queue) PopAll() ([]event.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, !q.closed
	}
	out := q.items
	q.items = make([]event.Event, 0, q.capacity)
	return out, true
}

// Len returns the number of buffered events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close releases the queue. Pending events are discarded and the notify
// channel is closed so the drain loop unblocks promptly. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	close(q.notify)
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// signal wakes the drain loop. Caller must hold q.mu and have checked
// q.closed, so the send never races with close(q.notify).
func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
