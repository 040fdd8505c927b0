package chat

import (
	"time"

	"github.com/jansunwai/assistant/internal/model/geo"
)

// Sender identifies who authored a conversational turn.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Attachment is an image carried inline as a data URL.
type Attachment struct {
	DataURL  string `json:"dataUrl"`
	Name     string `json:"imageName"`
	MIMEType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// Message is one turn of the chat log. Messages are never modified once
// appended.
type Message struct {
	ID        string        `json:"id"`
	Text      string        `json:"text"`
	Sender    Sender        `json:"sender"`
	Timestamp time.Time     `json:"timestamp"`
	Location  *geo.Snapshot `json:"location,omitempty"`
	Image     *Attachment   `json:"image,omitempty"`
}

// Clone returns a copy of m that shares no attachment or location with it.
func (m Message) Clone() Message {
	if m.Location != nil {
		loc := *m.Location
		m.Location = &loc
	}
	if m.Image != nil {
		img := *m.Image
		m.Image = &img
	}
	return m
}
