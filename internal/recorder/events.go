package recorder

import (
	"sync"
	"time"

	"github.com/dj-oyu/screen-recorder/pkg/types"
)

// EventType identifies an outbound recorder event
type EventType string

const (
	EventSegmentFinalized EventType = "segment_finalized"
	EventFatalError       EventType = "fatal_error"
)

// Event is published to subscribers
type Event struct {
	Type      EventType          `json:"type"`
	SessionID string             `json:"session_id,omitempty"`
	Segment   *types.SegmentInfo `json:"segment,omitempty"`
	Cause     string             `json:"cause,omitempty"`
	At        time.Time          `json:"at"`
}

const subscriberBuffer = 16

// Broadcaster fans events out to subscribers. Slow subscribers miss events
// instead of blocking the recorder.
type Broadcaster struct {
	mu      sync.Mutex
	clients map[int]chan Event
	nextID  int
	dropped uint64
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[int]chan Event)}
}

// Subscribe adds a client and returns its id and channel
func (b *Broadcaster) Subscribe() (int, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.clients[id] = ch
	return id, ch
}

// Unsubscribe removes a client and closes its channel
func (b *Broadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.clients[id]; ok {
		close(ch)
		delete(b.clients, id)
	}
}

// Publish delivers ev to every subscriber with room in its buffer
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.clients {
		select {
		case ch <- ev:
		default:
			b.dropped++
		}
	}
}

// Dropped returns how many deliveries were skipped for slow subscribers
func (b *Broadcaster) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
