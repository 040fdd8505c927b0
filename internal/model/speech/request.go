package speech

// Voice is an installed synthesis voice.
type Voice struct {
	Name    string `json:"name" yaml:"name"`
	ID      string `json:"id" yaml:"id"`
	Lang    string `json:"lang" yaml:"lang"`
	Default bool   `json:"default,omitempty" yaml:"default"`
}

// Utterance is a single text-to-speech request.
type Utterance struct {
	Text   string  `json:"text"`
	Lang   string  `json:"lang"`
	Rate   float32 `json:"rate"`
	Pitch  float32 `json:"pitch"`
	Volume float32 `json:"volume"`
	// Voice is nil when the platform default voice should be used.
	Voice *Voice `json:"voice,omitempty"`
}

// TTSRequest is the body of the synthesize endpoint.
type TTSRequest struct {
	SessionID string  `json:"sessionId"`
	Text      string  `json:"text"`
	Format    string  `json:"format"`
	Voice     string  `json:"voice,omitempty"`
	Lang      string  `json:"lang,omitempty"`
	Rate      float32 `json:"rate,omitempty"`
	Volume    float32 `json:"volume,omitempty"`
}
