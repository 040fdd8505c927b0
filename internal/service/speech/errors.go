package speech

import "errors"

var (
	// ErrAlreadyRecording is returned by Start while a recording is active.
	ErrAlreadyRecording = errors.New("speech: recording already in progress")
	// ErrNotRecording is returned by Stop when nothing is being recorded.
	ErrNotRecording = errors.New("speech: no active recording")
	// ErrDeviceUnavailable wraps failures to open the audio input.
	ErrDeviceUnavailable = errors.New("speech: audio input unavailable")
	// ErrTranscriptionFailed is the single error surfaced for speech-to-text.
	ErrTranscriptionFailed = errors.New("speech: transcription failed")
	// ErrSynthesisFailed is the single error surfaced for text-to-speech.
	ErrSynthesisFailed = errors.New("speech: synthesis failed")
	// ErrSynthesisDisabled is returned when no TTS engine is configured.
	ErrSynthesisDisabled = errors.New("speech: synthesis not configured")
)
