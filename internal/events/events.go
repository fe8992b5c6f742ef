// Package events carries domain notifications out of the engines.
//
// Engines publish after their transaction commits. A Sink only hands the
// event to a delivery system, and a failure there never undoes the state
// change that produced the event.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Type names a domain event.
type Type string

const (
	WarStarted   Type = "war_started"
	VotingOpened Type = "voting_opened"
	VoteCast     Type = "vote_cast"
	RoundClosed  Type = "round_closed"
	WarCompleted Type = "war_completed"
	MatchMade    Type = "match_made"
)

// Event is the unit handed to a Sink.
type Event struct {
	Type      Type           `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// New builds an event stamped with at.
func New(t Type, at time.Time, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{Type: t, Payload: payload, Timestamp: at.UTC()}
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Sink publishes events to whoever delivers them.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// OrNop returns s, or Nop when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return Nop{}
	}
	return s
}

// Recorder keeps published events in memory. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error // returned from Publish when set
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns recorded events of type t in publish order.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []Type {
	var out []Type
	for _, e := range r.Events() {
		out = append(out, e.Type)
	}
	return out
}
