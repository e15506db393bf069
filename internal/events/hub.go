// Package events fans period change notifications out to live subscribers
// such as open dashboard streams.
package events

import (
	"sync"
	"time"

	"halfmonth/internal/core"
)

type Kind string

const (
	PeriodChanged Kind = "period-changed"
	PeriodDeleted Kind = "period-deleted"
)

type Event struct {
	Kind   Kind           `json:"kind"`
	UserID string         `json:"-"`
	Key    core.PeriodKey `json:"key"`
	At     time.Time      `json:"at"`
}

const subscriberBuffer = 16

// Hub delivers events to every subscriber of the event's user. Sends never
// block: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]chan Event
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[uint64]chan Event)}
}

// Subscribe registers a listener for userID. The returned cancel func
// unregisters it and closes the channel; it is safe to call twice.
func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[uint64]chan Event)
	}
	h.subs[userID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[userID], id)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			close(ch)
		})
	}
}

// Publish delivers e and reports how many subscribers received it.
func (h *Hub) Publish(e Event) int {
	if h == nil {
		return 0
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, ch := range h.subs[e.UserID] {
		select {
		case ch <- e:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers counts the listeners of userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
