package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jansunwai/assistant/internal/middleware"
	speechmodel "github.com/jansunwai/assistant/internal/model/speech"
	"github.com/jansunwai/assistant/internal/service/auth"
	speechsvc "github.com/jansunwai/assistant/internal/service/speech"
)

type fakeSpeechService struct {
	mu       sync.Mutex
	audio    speechmodel.Audio
	creds    auth.Credentials
	text     string
	err      error
	synthErr error
	enabled  bool
}

func (f *fakeSpeechService) Transcribe(_ context.Context, creds auth.Credentials, audio speechmodel.Audio) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = audio
	f.creds = creds
	return f.text, f.err
}

func (f *fakeSpeechService) lastAudio() (speechmodel.Audio, auth.Credentials) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.audio, f.creds
}

func (f *fakeSpeechService) Synthesize(_ context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	if !f.enabled {
		return nil, speechsvc.ErrSynthesisDisabled
	}
	if f.synthErr != nil {
		return nil, f.synthErr
	}
	return &speechmodel.TTSResponse{AudioData: []byte("mp3:" + req.Text), Format: "mp3", Lang: "en-US"}, nil
}

func (f *fakeSpeechService) SynthesisEnabled() bool { return f.enabled }

func (f *fakeSpeechService) NewSpeaker(player speechsvc.Player) *speechsvc.Speaker {
	if !f.enabled {
		return nil
	}
	return speechsvc.NewSpeaker(playerSynth{player: player}, 10*time.Millisecond, nil)
}

type playerSynth struct {
	player speechsvc.Player
}

func (playerSynth) Voices(context.Context) ([]speechmodel.Voice, error) {
	return []speechmodel.Voice{{Name: "Test", ID: "test-en", Lang: "en-US", Default: true}}, nil
}

func (s playerSynth) Speak(ctx context.Context, u speechmodel.Utterance) error {
	return s.player.Play(ctx, speechmodel.Audio{Data: []byte(u.Text), Format: "mp3", MIMEType: "audio/mpeg"})
}

func setupRouter(svc *fakeSpeechService) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Credentials([]string{auth.TokenCookie}))
	New(svc, nil).RegisterRoutes(r)
	return r
}

func audioForm(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile err: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write audio err: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer.Close err: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestTranscribeForwardsAudioAndCredentials(t *testing.T) {
	svc := &fakeSpeechService{text: "garbage not collected"}
	r := setupRouter(svc)

	body, ct := audioForm(t, "audio", "recording.wav", []byte("RIFF...."))
	req := httptest.NewRequest(http.MethodPost, "/speech/transcribe", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", "Bearer citizen")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var out speechmodel.ASRResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if out.Text != "garbage not collected" {
		t.Fatalf("unexpected text %q", out.Text)
	}

	audio, creds := svc.lastAudio()
	if audio.Format != "wav" || string(audio.Data) != "RIFF...." {
		t.Fatalf("unexpected audio %+v", audio)
	}
	if creds.Token != "citizen" {
		t.Fatalf("credentials not forwarded, got %q", creds.Token)
	}
}

func TestTranscribeFailureIsGeneric(t *testing.T) {
	svc := &fakeSpeechService{err: errors.New("upstream exploded with details")}
	r := setupRouter(svc)

	body, ct := audioForm(t, "audio", "recording.wav", []byte("RIFF"))
	req := httptest.NewRequest(http.MethodPost, "/speech/transcribe", body)
	req.Header.Set("Content-Type", ct)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), TranscriptionFailedText) || strings.Contains(resp.Body.String(), "exploded") {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestTranscribeRequiresAudioField(t *testing.T) {
	r := setupRouter(&fakeSpeechService{})

	body, ct := audioForm(t, "file", "recording.wav", []byte("RIFF"))
	req := httptest.NewRequest(http.MethodPost, "/speech/transcribe", body)
	req.Header.Set("Content-Type", ct)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestSynthesizeReturnsAudio(t *testing.T) {
	r := setupRouter(&fakeSpeechService{enabled: true})

	req := httptest.NewRequest(http.MethodPost, "/speech/synthesize", strings.NewReader(`{"text":"Your complaint is registered"}`))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "audio/mp3" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if resp.Body.String() != "mp3:Your complaint is registered" {
		t.Fatalf("unexpected body %q", resp.Body.String())
	}
}

func TestSynthesizeErrors(t *testing.T) {
	cases := []struct {
		name string
		svc  *fakeSpeechService
		body string
		want int
	}{
		{"disabled", &fakeSpeechService{}, `{"text":"hi"}`, http.StatusServiceUnavailable},
		{"empty text", &fakeSpeechService{enabled: true}, `{"text":"  "}`, http.StatusBadRequest},
		{"bad json", &fakeSpeechService{enabled: true}, `{`, http.StatusBadRequest},
		{"engine failure", &fakeSpeechService{enabled: true, synthErr: speechsvc.ErrSynthesisFailed}, `{"text":"hi"}`, http.StatusBadGateway},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/speech/synthesize", strings.NewReader(tc.body))
		resp := httptest.NewRecorder()
		setupRouter(tc.svc).ServeHTTP(resp, req)
		if resp.Code != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.want, resp.Code)
		}
	}
}

func TestHealthReportsSynthesis(t *testing.T) {
	resp := httptest.NewRecorder()
	setupRouter(&fakeSpeechService{enabled: true}).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/speech/health", nil))

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if out["status"] != "healthy" || out["synthesis"] != true {
		t.Fatalf("unexpected health %+v", out)
	}
}

func TestInferAudioFormat(t *testing.T) {
	for name, want := range map[string]string{"a.WEBM": "webm", "b.mp3": "mp3", "c": "wav", "d.flac": "wav"} {
		if got := inferAudioFormat(name); got != want {
			t.Errorf("inferAudioFormat(%q) = %q, want %q", name, got, want)
		}
	}
}
