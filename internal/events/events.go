// Package events publishes session lifecycle notifications — handshake
// completion, per-session errors, end of transmission — to any number of
// subscribers, without the emitter and listener packages having to manage
// subscriber lists. It is a thin domain wrapper around
// github.com/docker/go-events' Broadcaster.
package events

import (
	"fmt"

	goevents "github.com/docker/go-events"
)

// Kind discriminates the lifecycle events a session publishes.
type Kind int

const (
	Handshake Kind = iota
	Error
	EndOfTransmission
)

func (k Kind) String() string {
	switch k {
	case Handshake:
		return "handshake"
	case Error:
		return "error"
	case EndOfTransmission:
		return "end-of-transmission"
	default:
		return "unknown"
	}
}

// Event is one session lifecycle notification. Err is set only for Kind ==
// Error. Invalid is set on a Handshake event when the peer's handshake
// payload could not even be decoded. PendingCount is set on an
// EndOfTransmission event to the number of calls cut off by an abrupt
// teardown, zero for a graceful one.
type Event struct {
	Kind         Kind
	SessionID    string
	Err          error
	Invalid      bool
	PendingCount int
}

func (e Event) String() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("session %s: %s: %v", e.SessionID, e.Kind, e.Err)
	case e.Kind == Handshake && e.Invalid:
		return fmt.Sprintf("session %s: %s: invalid", e.SessionID, e.Kind)
	case e.Kind == EndOfTransmission:
		return fmt.Sprintf("session %s: %s: pending=%d", e.SessionID, e.Kind, e.PendingCount)
	default:
		return fmt.Sprintf("session %s: %s", e.SessionID, e.Kind)
	}
}

// Source publishes events to every subscribed sink. A nil *Source is valid
// and publishes to nobody, so callers that hold an optional Source never
// need a separate nil check before using it.
type Source struct {
	broadcaster *goevents.Broadcaster
}

// NewSource returns a Source with no subscribers.
func NewSource() *Source {
	return &Source{broadcaster: goevents.NewBroadcaster()}
}

// Publish hands e to the broadcaster, which writes it to every subscribed
// sink in turn. Sinks are not given queues of their own: a sink that is
// slow to return delays the events after e, and a Publish call waits while
// the broadcaster is still busy with an earlier event.
func (s *Source) Publish(e Event) {
	if s == nil {
		return
	}
	_ = s.broadcaster.Write(e)
}

// Subscribe attaches sink to receive every event published from now on.
func (s *Source) Subscribe(sink goevents.Sink) {
	if s == nil {
		return
	}
	s.broadcaster.Add(sink)
}

// Unsubscribe detaches a previously subscribed sink.
func (s *Source) Unsubscribe(sink goevents.Sink) error {
	if s == nil {
		return nil
	}
	return s.broadcaster.Remove(sink)
}

// Close shuts the source down, closing every subscribed sink.
func (s *Source) Close() error {
	if s == nil {
		return nil
	}
	return s.broadcaster.Close()
}
