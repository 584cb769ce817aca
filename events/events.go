// Package events is the in-process broadcast channel for session lifecycle
// events. Events are momentary values: they are delivered synchronously to
// the listeners subscribed at emission time and are never queued or replayed.
package events

import "sync"

// Type classifies session lifecycle events.
type Type int

const (
	TokenExpired   Type = iota // access token entered the expiry grace window
	TokenRefreshed             // refresh succeeded, new token in place
	SessionCleared             // logout completed, all local state wiped
	LoginRequired              // no usable session, UI must re-authenticate
)

func (t Type) String() string {
	switch t {
	case TokenExpired:
		return "token_expired"
	case TokenRefreshed:
		return "token_refreshed"
	case SessionCleared:
		return "session_cleared"
	case LoginRequired:
		return "login_required"
	default:
		return "unknown"
	}
}

// Event carries the type and an optional reason for logs. Listeners must not
// block; emission runs on the caller's goroutine.
type Event struct {
	Type   Type
	Reason string
}

type listener struct {
	id int
	fn func(Event)
}

// Bus fans events out to subscribers. Emission is synchronous and
// re-entrant safe: handlers may subscribe, unsubscribe and emit.
type Bus struct {
	mu        sync.Mutex
	nextID    int
	listeners []listener
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns its unsubscribe handle. Listeners are
// invoked in subscription order.
func (b *Bus) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, listener{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, l := range b.listeners {
			if l.id == id {
				b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers ev to a snapshot of the current listeners. A listener added
// during emission does not see the event that triggered its registration.
func (b *Bus) Emit(ev Event) {
	b.mu.Lock()
	snapshot := make([]listener, len(b.listeners))
	copy(snapshot, b.listeners)
	b.mu.Unlock()

	for _, l := range snapshot {
		l.fn(ev)
	}
}
