package speech

import "time"

// Audio is a finalized clip.
type Audio struct {
	Data     []byte        `json:"-"`
	Format   string        `json:"format"`
	MIMEType string        `json:"mimeType"`
	Duration time.Duration `json:"duration"`
}

// ASRResponse is the answer of the speech-to-text endpoint.
type ASRResponse struct {
	Text    string `json:"text"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// TTSResponse holds synthesized audio.
type TTSResponse struct {
	SessionID string `json:"sessionId"`
	AudioData []byte `json:"-"`
	Format    string `json:"format"`
	Voice     string `json:"voice,omitempty"`
	Lang      string `json:"lang,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	// Duration is reported by the engine in milliseconds.
	Duration  int64     `json:"duration,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
