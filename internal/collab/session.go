package collab

import (
	"sync"

	"github.com/google/uuid"
)

// Session is one authenticated realtime connection. A session belongs to at
// most one room at a time. Outbound events are queued on a buffered channel
// drained by the transport's write pump; a session that cannot keep up has
// events dropped rather than stalling the room.
type Session struct {
	ID     string
	UserID string
	Name   string

	out  chan *Event
	done chan struct{}
	once sync.Once

	mu   sync.Mutex
	room *room
}

// NewSession creates a session for the given user with the given outbound
// buffer size.
func NewSession(userID, name string, buffer int) *Session {
	if buffer <= 0 {
		buffer = 1
	}
	return &Session{
		ID:     uuid.New().String(),
		UserID: userID,
		Name:   name,
		out:    make(chan *Event, buffer),
		done:   make(chan struct{}),
	}
}

// Events returns the outbound event queue for the transport's write pump.
func (s *Session) Events() <-chan *Event {
	return s.out
}

// Close stops delivery to the session. Safe to call more than once.
func (s *Session) Close() {
	s.once.Do(func() { close(s.done) })
}

// Done is closed when the session stops accepting events.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Notify queues an event to this session only, typically an error
// notification for an event that failed. It reports false when the session
// is closed or its buffer is full.
func (s *Session) Notify(ev *Event) bool {
	return s.deliver(ev)
}

// deliver queues the event without blocking. It reports false when the
// session is closed or its buffer is full.
func (s *Session) deliver(ev *Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- ev:
		return true
	default:
		return false
	}
}

// currentRoom returns the room the session is joined to, or nil.
func (s *Session) currentRoom() *room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *Session) setRoom(r *room) {
	s.mu.Lock()
	s.room = r
	s.mu.Unlock()
}
