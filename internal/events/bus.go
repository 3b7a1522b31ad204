// Package events is a small in-process broadcast bus for UI and telemetry
// hooks. Publishing never blocks and never fails: the core's correctness
// does not depend on anyone listening.
package events

import (
	"sync"
	"time"
)

// Event types published by the fleet registry and the job engine.
const (
	TypeAgentRegistered   = "agent:registered"
	TypeAgentDeregistered = "agent:deregistered"
	TypeAgentHeartbeat    = "agent:heartbeat"
	TypeAgentAuth         = "agent:auth"
	TypeJobQueued         = "job:queued"
	TypeJobRunning        = "job:running"
	TypeJobCompleted      = "job:completed"
	TypeJobFailed         = "job:failed"
	TypeJobCancelled      = "job:cancelled"
)

// Event is one published occurrence.
type Event struct {
	Type    string    `json:"type"`
	AgentID string    `json:"agent_id,omitempty"`
	JobID   string    `json:"job_id,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	Time    time.Time `json:"time"`
}

const subscriberBuffer = 64

// Bus fans events out to subscribers. Safe for concurrent use.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a receive channel and a cancel func. Slow subscribers
// drop events once their buffer fills; they never stall a publisher.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber that has buffer space.
func (b *Bus) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
