package host

import (
	"sync"
	"time"
)

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 16

// EventReload asks a dependent to reload itself.
const EventReload = "reload"

// Event is delivered to the subscribers of a dependent.
type Event struct {
	Type        string    `json:"type"`
	DependentID string    `json:"dependent_id"`
	At          time.Time `json:"at"`
}

// Broker fans events out to the subscribers of each dependent.
// It is safe for concurrent use.
//
// Open topics are dropped once their last subscriber leaves. Closed topics are
// retained as markers so that late subscribers (those subscribing after a
// dependent was removed) receive a closed channel instead of blocking forever.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*topic
}

type topic struct {
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		topics: make(map[string]*topic),
	}
}

// Subscribe returns a channel that receives events for the given dependent
// and an unsubscribe function. If the dependent's topic was closed, the
// returned channel is immediately closed.
func (b *Broker) Subscribe(dependentID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[dependentID]
	if !ok {
		t = &topic{subs: make(map[int]chan Event)}
		b.topics[dependentID] = t
	}

	ch := make(chan Event, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
		if !t.closed && len(t.subs) == 0 && b.topics[dependentID] == t {
			delete(b.topics, dependentID)
		}
	}
}

// Publish sends an event to all subscribers of the given dependent and
// returns how many received it. Events are dropped for subscribers whose
// buffers are full.
func (b *Broker) Publish(dependentID string, ev Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[dependentID]
	if !ok || t.closed {
		return 0
	}

	delivered := 0
	for _, ch := range t.subs {
		select {
		case ch <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

// Close signals that no more events will be published for the given
// dependent. All subscriber channels are closed and future Subscribe calls
// return a closed channel.
func (b *Broker) Close(dependentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[dependentID]
	if !ok {
		b.topics[dependentID] = &topic{subs: make(map[int]chan Event), closed: true}
		return
	}
	t.close()
}

// CloseAll closes every open topic, ending all subscriptions.
func (b *Broker) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, t := range b.topics {
		t.close()
	}
}

func (t *topic) close() {
	if t.closed {
		return
	}
	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}
