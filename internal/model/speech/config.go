package speech

import "time"

// SpeechConfig carries the settings of the speech bridge.
type SpeechConfig struct {
	// Speech-to-text endpoint of the municipal backend
	TranscribeURL      string        `json:"transcribeUrl"`
	TranscribeTimeout  time.Duration `json:"transcribeTimeout"`
	TranscribeAttempts int           `json:"transcribeAttempts"`

	// Volcengine TTS credentials
	AppID       string `json:"appId"`
	AccessToken string `json:"accessToken"`
	TTSURL      string `json:"ttsUrl"`
	TTSResource string `json:"ttsResource"`

	// Voice catalog and playback defaults
	VoicesFile   string        `json:"voicesFile"`
	DefaultVoice string        `json:"defaultVoice"`
	PollInterval time.Duration `json:"pollInterval"`
}
