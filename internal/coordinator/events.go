package coordinator

import (
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/phishguard/internal/model"
)

// EventScanCompleted is the type of the event published for every accepted
// scan result.
const EventScanCompleted = "scan_completed"

// Event is pushed to subscribers, typically open UI surfaces.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// Type is the event type.
	Type string `json:"type"`

	// Result is the accepted scan result.
	Result model.ScanResult `json:"result"`

	// Badge is the tab's badge after the result was applied.
	Badge model.Badge `json:"badge"`

	// Time is when the event was published.
	Time time.Time `json:"time"`
}

// Subscribe registers a new subscriber. Events are delivered on the
// returned channel until the unsubscribe function is called or the
// coordinator is closed. A subscriber that falls behind loses events
// instead of blocking the coordinator.
func (c *Coordinator) Subscribe() (<-chan Event, func()) {
	id := uuid.NewString()
	ch := make(chan Event, c.subBuffer)

	c.subsMu.Lock()
	if c.subsClosed {
		c.subsMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.subs[id] = ch
	c.subsMu.Unlock()

	unsubscribe := func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
	return ch, unsubscribe
}

// SubscriberCount returns the number of active subscribers.
func (c *Coordinator) SubscriberCount() int {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	return len(c.subs)
}

// publish fans result out to every subscriber without blocking.
func (c *Coordinator) publish(result model.ScanResult) {
	ev := Event{
		ID:     uuid.NewString(),
		Type:   EventScanCompleted,
		Result: result,
		Badge:  c.badges.Get(result.TabID),
		Time:   time.Now(),
	}

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for id, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			c.logger.Warn("subscriber is not keeping up, dropping event", "subscriber", id, "tab", result.TabID)
		}
	}
}
