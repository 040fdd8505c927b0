package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	speechmodel "github.com/jansunwai/assistant/internal/model/speech"
	"github.com/jansunwai/assistant/internal/service/auth"
)

// Transcriber uploads finalized clips to the backend speech-to-text endpoint.
// Uploads are idempotent, so transport errors, 5xx and 429 are retried.
type Transcriber struct {
	endpoint   string
	timeout    time.Duration
	attempts   int
	backoff    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewTranscriber builds a transcriber from the speech configuration.
func NewTranscriber(cfg *speechmodel.SpeechConfig, logger *zap.Logger) *Transcriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Transcriber{
		timeout:    30 * time.Second,
		attempts:   2,
		backoff:    500 * time.Millisecond,
		httpClient: &http.Client{},
		logger:     logger.Named("transcriber"),
		tracer:     otel.Tracer("github.com/jansunwai/assistant/internal/service/speech"),
	}
	if cfg != nil {
		t.endpoint = strings.TrimSpace(cfg.TranscribeURL)
		if cfg.TranscribeTimeout > 0 {
			t.timeout = cfg.TranscribeTimeout
		}
		if cfg.TranscribeAttempts > 0 {
			t.attempts = cfg.TranscribeAttempts
		}
	}
	return t
}

type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// Transcribe returns the recognised text of audio.
func (t *Transcriber) Transcribe(ctx context.Context, creds auth.Credentials, audio speechmodel.Audio) (string, error) {
	ctx, span := t.tracer.Start(ctx, "speech.Transcribe", trace.WithAttributes(
		attribute.Int("speech.audio_bytes", len(audio.Data)),
	))
	defer span.End()

	if t.endpoint == "" {
		return "", fmt.Errorf("%w: endpoint not configured", ErrTranscriptionFailed)
	}
	if len(audio.Data) == 0 {
		return "", fmt.Errorf("%w: empty audio", ErrTranscriptionFailed)
	}

	var lastErr error
attempts:
	for attempt := 1; attempt <= t.attempts; attempt++ {
		text, err := t.upload(ctx, creds, audio)
		if err == nil {
			span.SetAttributes(attribute.Int("speech.attempts", attempt))
			return text, nil
		}
		lastErr = err

		var retry retryableError
		if !errors.As(err, &retry) || attempt == t.attempts {
			break
		}

		t.logger.Warn("transcription attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-time.After(time.Duration(attempt) * t.backoff):
		case <-ctx.Done():
			lastErr = ctx.Err()
			break attempts
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	t.logger.Error("transcription failed", zap.Error(lastErr))
	return "", fmt.Errorf("%w: %v", ErrTranscriptionFailed, lastErr)
}

func (t *Transcriber) upload(ctx context.Context, creds auth.Credentials, audio speechmodel.Audio) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	body, contentType, err := multipartAudio(audio)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	creds.Apply(req)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", retryableError{fmt.Errorf("call transcription endpoint: %w", err)}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", retryableError{fmt.Errorf("read transcription response: %w", err)}
	}

	var result speechmodel.ASRResponse
	decodeErr := json.Unmarshal(payload, &result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("transcription endpoint returned status %d: %s", resp.StatusCode, serverReason(result, payload))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return "", retryableError{err}
		}
		return "", err
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode transcription response: %w", decodeErr)
	}

	if result.Text == "" && (result.Error != "" || result.Message != "") {
		return "", fmt.Errorf("transcription rejected: %s", serverReason(result, payload))
	}
	return strings.TrimSpace(result.Text), nil
}

func multipartAudio(audio speechmodel.Audio) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	format := audio.Format
	if format == "" {
		format = "wav"
	}
	mimeType := audio.MIMEType
	if mimeType == "" {
		mimeType = "audio/" + format
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename="recording.%s"`, format))
	header.Set("Content-Type", mimeType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create audio part: %w", err)
	}
	if _, err := part.Write(audio.Data); err != nil {
		return nil, "", fmt.Errorf("write audio part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

func serverReason(result speechmodel.ASRResponse, raw []byte) string {
	switch {
	case result.Error != "":
		return result.Error
	case result.Message != "":
		return result.Message
	default:
		return strings.TrimSpace(string(raw))
	}
}
