// Package bus implements the process-wide change notifier used by read-side
// views to invalidate without polling.
package bus

import "sync"

// EntityKind identifies the family of records a mutation touched.
type EntityKind string

const (
	// KindProduct covers product master data and the stock quantity projection.
	KindProduct EntityKind = "product"
	// KindCustomer covers customer master data.
	KindCustomer EntityKind = "customer"
	// KindMovement covers stock ledger movements.
	KindMovement EntityKind = "movement"
	// KindInvoice covers fiscal documents and their lines.
	KindInvoice EntityKind = "invoice"
	// KindSubscription covers subscription and activation state.
	KindSubscription EntityKind = "subscription"
)

// AllKinds lists every entity kind, used for full-reset events.
func AllKinds() []EntityKind {
	return []EntityKind{KindProduct, KindCustomer, KindMovement, KindInvoice, KindSubscription}
}

// Event describes one committed mutation batch.
type Event struct {
	Kinds []EntityKind
	// Reset signals a wholesale store replacement; observers must refetch
	// everything regardless of Kinds.
	Reset bool
}

// Touches reports whether the event affects the given kind.
func (e Event) Touches(kind EntityKind) bool {
	if e.Reset {
		return true
	}
	for _, k := range e.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Listener receives events. Listeners run synchronously on the publishing
// goroutine and must not block on I/O.
type Listener func(Event)

type subscriber struct {
	id int64
	fn Listener
}

// Bus fans committed-mutation events out to subscribers. Fan-out happens under
// the bus lock, so every listener observes publishes in the order they were
// issued.
type Bus struct {
	mu     sync.Mutex
	nextID int64
	subs   []subscriber
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers a listener and returns its unsubscribe handle.
func (b *Bus) Subscribe(fn Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscriber{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subs {
			if sub.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers the event to every subscriber before returning.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		sub.fn(ev)
	}
}

// PublishKinds is shorthand for publishing a non-reset event.
func (b *Bus) PublishKinds(kinds ...EntityKind) {
	b.Publish(Event{Kinds: kinds})
}

// PublishReset announces a wholesale store replacement.
func (b *Bus) PublishReset() {
	b.Publish(Event{Kinds: AllKinds(), Reset: true})
}
