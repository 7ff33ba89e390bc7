// Package presencetest provides a recording presence.Conn for tests.
package presencetest

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Event is one frame emitted to a Conn
type Event struct {
	Name    string
	Payload interface{}
}

// Conn records every emitted event
type Conn struct {
	id     string
	mu     sync.Mutex
	events []Event
	closed bool
}

// NewConn returns a Conn with a random handle
func NewConn() *Conn {
	return &Conn{id: uuid.NewString()}
}

func (c *Conn) ID() string {
	return c.id
}

// Emit records the event. It fails after Close.
func (c *Conn) Emit(event string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	c.events = append(c.events, Event{Name: event, Payload: payload})
	return nil
}

// Close makes subsequent Emit calls fail
func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Events returns a copy of everything emitted so far
func (c *Conn) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Named returns the emitted events with the given name
func (c *Conn) Named(name string) []Event {
	var out []Event
	for _, e := range c.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
