// SPDX-License-Identifier: MIT

package hub

import "sync"

// registry tracks which subscriber IDs are joined to which topics. All
// methods are safe for concurrent use; lookups return snapshots so callers
// never hold the lock while fanning out.
type registry struct {
	mu       sync.RWMutex
	byTopic  map[string]map[string]struct{}
	byMember map[string]map[string]struct{}
}

func newRegistry() *registry {
	return &registry{
		byTopic:  make(map[string]map[string]struct{}),
		byMember: make(map[string]map[string]struct{}),
	}
}

// join subscribes id to topic. Idempotent; returns false if the pair was
// already present.
func (r *registry) join(id, topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.byTopic[topic]
	if !ok {
		members = make(map[string]struct{})
		r.byTopic[topic] = members
	}
	if _, dup := members[id]; dup {
		return false
	}
	members[id] = struct{}{}

	topics, ok := r.byMember[id]
	if !ok {
		topics = make(map[string]struct{})
		r.byMember[id] = topics
	}
	topics[topic] = struct{}{}
	return true
}

// leave removes the subscription. Idempotent; returns false if the pair
// was not present.
func (r *registry) leave(id, topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(id, topic)
}

func (r *registry) leaveLocked(id, topic string) bool {
	members, ok := r.byTopic[topic]
	if !ok {
		return false
	}
	if _, present := members[id]; !present {
		return false
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.byTopic, topic)
	}
	if topics := r.byMember[id]; topics != nil {
		delete(topics, topic)
		if len(topics) == 0 {
			delete(r.byMember, id)
		}
	}
	return true
}

// dropAll removes every subscription held by id and returns how many were
// removed.
func (r *registry) dropAll(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	topics, ok := r.byMember[id]
	if !ok {
		return 0
	}
	n := 0
	for topic := range topics {
		if r.leaveLocked(id, topic) {
			n++
		}
	}
	return n
}

// subscribersOf returns a snapshot of the IDs joined to topic.
func (r *registry) subscribersOf(topic string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.byTopic[topic]
	if len(members) == 0 {
		return nil
	}
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

// topicsOf returns a snapshot of the topics id is joined to.
func (r *registry) topicsOf(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := r.byMember[id]
	if len(topics) == 0 {
		return nil
	}
	out := make([]string, 0, len(topics))
	for t := range topics {
		out = append(out, t)
	}
	return out
}

// counts returns (distinct topics, total subscriptions).
func (r *registry) counts() (topics, subscriptions int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, members := range r.byTopic {
		subscriptions += len(members)
	}
	return len(r.byTopic), subscriptions
}
