package chat

import (
	"time"

	"github.com/jansunwai/assistant/internal/model/geo"
)

// EventType names what changed in a session.
type EventType string

const (
	EventMessage      EventType = "message"
	EventTyping       EventType = "typing"
	EventLifecycle    EventType = "lifecycle"
	EventAuthRequired EventType = "auth_required"
	EventLocation     EventType = "location"
)

// Event is published to session subscribers. Only the field matching Type is
// set.
type Event struct {
	Type      EventType     `json:"type"`
	SessionID string        `json:"sessionId"`
	Message   *Message      `json:"message,omitempty"`
	Typing    *bool         `json:"typing,omitempty"`
	State     State         `json:"state,omitempty"`
	Location  *geo.Snapshot `json:"location,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Clone returns a copy of e whose payload pointers are not shared with e.
func (e Event) Clone() Event {
	if e.Message != nil {
		msg := e.Message.Clone()
		e.Message = &msg
	}
	if e.Typing != nil {
		typing := *e.Typing
		e.Typing = &typing
	}
	if e.Location != nil {
		loc := *e.Location
		e.Location = &loc
	}
	return e
}
