package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	speechmodel "github.com/jansunwai/assistant/internal/model/speech"
)

type fakeTTSServer struct {
	t *testing.T

	mu        sync.Mutex
	resources []string
	requests  []volcengineTTSRequest

	// reject answers with a resource mismatch for these resource ids
	reject map[string]bool
}

func (s *fakeTTSServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.t.Errorf("upgrade: %v", err)
		return
	}
	defer conn.Close()

	resource := r.Header.Get("X-Api-Resource-Id")
	if r.Header.Get("X-Api-App-Key") != "app" || r.Header.Get("X-Api-Access-Key") != "key" {
		s.t.Errorf("missing credentials headers")
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		s.t.Errorf("read request: %v", err)
		return
	}
	f, err := decodeFrame(data)
	if err != nil {
		s.t.Errorf("decode request: %v", err)
		return
	}
	body, err := f.payload()
	if err != nil {
		s.t.Errorf("request payload: %v", err)
		return
	}
	var req volcengineTTSRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.t.Errorf("unmarshal request: %v", err)
		return
	}

	s.mu.Lock()
	s.resources = append(s.resources, resource)
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.reject[resource] {
		_ = conn.WriteMessage(websocket.BinaryMessage, encodeFrame(&frame{
			Type:      frameError,
			ErrorCode: 45000000,
			Payload:   []byte(`{"error":"resource ID is mismatched with speaker related resource"}`),
		}))
		return
	}

	meta, _ := json.Marshal(map[string]any{"reqid": "req-1", "code": 0, "addition": map[string]string{"duration": "1200"}})
	_ = conn.WriteMessage(websocket.BinaryMessage, encodeFrame(&frame{Type: frameFullServerResponse, Serialization: serializationJSON, Payload: meta}))
	_ = conn.WriteMessage(websocket.BinaryMessage, encodeFrame(&frame{Type: frameAudioOnlyResponse, Flags: flagPositiveSequence, Sequence: 1, Payload: []byte("ID3-part1")}))
	_ = conn.WriteMessage(websocket.BinaryMessage, encodeFrame(&frame{Type: frameAudioOnlyResponse, Flags: flagNegativeSequence, Sequence: -2, Payload: []byte("-part2")}))
}

func newFakeTTS(t *testing.T, reject map[string]bool) (*fakeTTSServer, *VolcengineTTSClient, func()) {
	fake := &fakeTTSServer{t: t, reject: reject}
	srv := httptest.NewServer(fake)
	cfg := &speechmodel.SpeechConfig{
		AppID:        "app",
		AccessToken:  "key",
		TTSURL:       "ws" + strings.TrimPrefix(srv.URL, "http"),
		TTSResource:  "seed-tts-2.0",
		DefaultVoice: "en_female_amy_jupiter_bigtts",
	}
	return fake, NewVolcengineTTSClient(cfg, nil), srv.Close
}

func TestSynthesizeCollectsAudio(t *testing.T) {
	fake, client, done := newFakeTTS(t, nil)
	defer done()

	resp, err := client.Synthesize(context.Background(), &speechmodel.TTSRequest{Text: "Complaint registered", Lang: "en-US", Rate: 0.8})
	if err != nil {
		t.Fatalf("Synthesize err: %v", err)
	}
	if string(resp.AudioData) != "ID3-part1-part2" {
		t.Fatalf("unexpected audio %q", resp.AudioData)
	}
	if resp.RequestID != "req-1" || resp.Duration != 1200 || resp.Format != "mp3" {
		t.Fatalf("unexpected response %+v", resp)
	}

	req := fake.requests[0]
	if req.ReqParams.Speaker != "en_female_amy_jupiter_bigtts" || req.ReqParams.Language != "en" {
		t.Fatalf("unexpected request params %+v", req.ReqParams)
	}
	if req.ReqParams.AudioParams.SpeedRatio != 0.8 {
		t.Fatalf("expected reduced speed ratio, got %v", req.ReqParams.AudioParams.SpeedRatio)
	}
}

func TestSynthesizeFallsBackOnResourceMismatch(t *testing.T) {
	fake, client, done := newFakeTTS(t, map[string]bool{"seed-tts-2.0": true})
	defer done()

	if _, err := client.Synthesize(context.Background(), &speechmodel.TTSRequest{Text: "hello"}); err != nil {
		t.Fatalf("Synthesize err: %v", err)
	}
	want := []string{"seed-tts-2.0", "volc.service_type.10029"}
	if !reflect.DeepEqual(fake.resources, want) {
		t.Fatalf("resources tried = %v, want %v", fake.resources, want)
	}
}

func TestSynthesizeCompressesLargeRequests(t *testing.T) {
	fake, client, done := newFakeTTS(t, nil)
	defer done()

	text := strings.Repeat("सड़क पर गड्ढा है। ", 100)
	if _, err := client.Synthesize(context.Background(), &speechmodel.TTSRequest{Text: text}); err != nil {
		t.Fatalf("Synthesize err: %v", err)
	}
	if fake.requests[0].ReqParams.Text != text {
		t.Fatal("large request text did not survive compression")
	}
}

func TestSynthesizeRequiresCredentials(t *testing.T) {
	client := NewVolcengineTTSClient(&speechmodel.SpeechConfig{}, nil)
	_, err := client.Synthesize(context.Background(), &speechmodel.TTSRequest{Text: "hi"})
	if !errors.Is(err, ErrSynthesisDisabled) {
		t.Fatalf("expected ErrSynthesisDisabled, got %v", err)
	}
}

func TestResourceCandidates(t *testing.T) {
	tests := []struct {
		name       string
		voice      string
		configured string
		want       []string
	}{
		{name: "legacy voice", voice: "en_male_organizer", want: []string{"volc.service_type.10029", "seed-tts-2.0"}},
		{name: "bigtts voice", voice: "en_female_amy_jupiter_bigtts", want: []string{"seed-tts-2.0", "volc.service_type.10029"}},
		{name: "clone voice", voice: "S_clone_speaker", want: []string{"volc.megatts.default"}},
		{name: "configured first", voice: "en_male_organizer", configured: "seed-tts-2.0", want: []string{"seed-tts-2.0", "volc.service_type.10029"}},
	}

	for _, tt := range tests {
		if got := resourceCandidates(tt.voice, tt.configured); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: resourceCandidates(%q, %q) = %v, want %v", tt.name, tt.voice, tt.configured, got, tt.want)
		}
	}
}

func TestSpeakerCandidates(t *testing.T) {
	if got := speakerCandidates("EN_voice", "en_voice"); !reflect.DeepEqual(got, []string{"EN_voice"}) {
		t.Fatalf("duplicates should collapse, got %v", got)
	}
	if got := speakerCandidates("", ""); len(got) != 1 {
		t.Fatalf("expected built-in fallback speaker, got %v", got)
	}
}

func TestDecodeFrameRejectsTruncatedPayload(t *testing.T) {
	data := encodeFrame(&frame{Type: frameAudioOnlyResponse, Payload: []byte("abcdef")})
	if _, err := decodeFrame(data[:len(data)-3]); err == nil {
		t.Fatal("expected error for truncated frame")
	}
}
