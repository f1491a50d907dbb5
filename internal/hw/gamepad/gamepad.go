// Package gamepad exposes input devices as a blocking sequence of events.
package gamepad

import (
	"io"
	"sync"
)

// EventType classifies an input event.
type EventType int

const (
	Other    EventType = iota // sync, misc, anything not handled
	Key                       // button press/release
	Absolute                  // absolute axis position
)

func (t EventType) String() string {
	switch t {
	case Key:
		return "key"
	case Absolute:
		return "abs"
	default:
		return "other"
	}
}

// Key event values.
const (
	KeyReleased = 0
	KeyPressed  = 1
)

// Absolute axis buckets reported by three-position sticks.
const (
	AbsLow    = 0
	AbsCenter = 1
	AbsHigh   = 2
)

// Event is one input event.
type Event struct {
	Type  EventType
	Code  uint16
	Value int32
}

// Source is a blocking sequence of input events.
// Next blocks until the next event is available.
type Source interface {
	Next() (Event, error)
	Close() error
}

// Scripted replays a fixed list of events, then returns io.EOF.
type Scripted struct {
	mu     sync.Mutex
	events []Event
}

// Script creates a finite source.
func Script(events ...Event) *Scripted {
	return &Scripted{events: events}
}

func (s *Scripted) Next() (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *Scripted) Close() error { return nil }

// Feed is a source driven by Push; Next blocks until an event is pushed
// or the feed is closed.
type Feed struct {
	events chan Event
	once   sync.Once
	done   chan struct{}
}

// NewFeed creates an open feed.
func NewFeed() *Feed {
	return &Feed{
		events: make(chan Event),
		done:   make(chan struct{}),
	}
}

// Push delivers an event to the reader. It blocks until the event is
// taken or the feed is closed, and reports whether it was delivered.
func (f *Feed) Push(ev Event) bool {
	select {
	case f.events <- ev:
		return true
	case <-f.done:
		return false
	}
}

func (f *Feed) Next() (Event, error) {
	select {
	case ev := <-f.events:
		return ev, nil
	case <-f.done:
		return Event{}, io.EOF
	}
}

func (f *Feed) Close() error {
	f.once.Do(func() { close(f.done) })
	return nil
}
