// ABOUTME: Transport session wrapping a single live push channel to a caller.
// ABOUTME: Send and Close are safe for concurrent use; Close is idempotent.

package session

import (
	"errors"
	"sync"
	"time"
)

// ErrSessionClosed is returned by Send after the session has been closed.
var ErrSessionClosed = errors.New("session closed")

// Event is a named server-sent event queued for delivery to the caller.
type Event struct {
	Name string
	Data string
}

// Session is one live push channel identified by a session key. The HTTP
// layer drains Events and writes them to the wire; everything else only
// calls Send.
type Session struct {
	key       string
	createdAt time.Time

	mu     sync.Mutex
	closed bool

	events chan Event
	done   chan struct{}

	onDisconnect   func()
	disconnectOnce sync.Once
}

// New creates a session with the given key and event buffer size.
func New(key string, buffer int) *Session {
	if buffer <= 0 {
		buffer = 16
	}
	return &Session{
		key:       key,
		createdAt: time.Now(),
		events:    make(chan Event, buffer),
		done:      make(chan struct{}),
	}
}

// Key returns the session's unique key.
func (s *Session) Key() string {
	return s.key
}

// CreatedAt returns when the session was established.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Events returns the channel the transport writer drains. The channel is
// never closed; writers must also select on Done.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// OnDisconnect registers a callback fired exactly once when the session
// closes, regardless of how many times Close is called. Must be set before
// the session is shared across goroutines.
func (s *Session) OnDisconnect(fn func()) {
	s.onDisconnect = fn
}

// Send queues an event for delivery. It blocks while the buffer is full and
// returns ErrSessionClosed once the session is closed.
func (s *Session) Send(ev Event) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.mu.Unlock()

	select {
	case s.events <- ev:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

// SendMessage queues a "message" event carrying a JSON payload. Responses
// and notifications to the caller all flow through here.
func (s *Session) SendMessage(data []byte) error {
	return s.Send(Event{Name: "message", Data: string(data)})
}

// Close tears down the session. Subsequent calls are no-ops; the disconnect
// callback fires at most once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.disconnectOnce.Do(func() {
		if s.onDisconnect != nil {
			s.onDisconnect()
		}
	})
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
