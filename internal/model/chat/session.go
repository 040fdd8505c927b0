package chat

import (
	"time"

	"github.com/jansunwai/assistant/internal/model/geo"
)

// State is the lifecycle state of a chat widget session.
type State string

const (
	StateClosed  State = "closed"
	StateOpening State = "opening"
	StateOpen    State = "open"
	StateClosing State = "closing"
)

// Accepting reports whether user input may be submitted in this state.
func (s State) Accepting() bool {
	return s == StateOpening || s == StateOpen
}

// SessionInfo is the public view of a session.
type SessionInfo struct {
	ID        string        `json:"id"`
	ClientID  string        `json:"clientId"`
	State     State         `json:"state"`
	Typing    bool          `json:"typing"`
	Location  *geo.Snapshot `json:"location,omitempty"`
	Messages  int           `json:"messageCount"`
	CreatedAt time.Time     `json:"createdAt"`
}
