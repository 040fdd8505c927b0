package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/jansunwai/assistant/internal/middleware"
	chatmodel "github.com/jansunwai/assistant/internal/model/chat"
	intakemodel "github.com/jansunwai/assistant/internal/model/intake"
	"github.com/jansunwai/assistant/internal/service/auth"
	chatservice "github.com/jansunwai/assistant/internal/service/chat"
	geosvc "github.com/jansunwai/assistant/internal/service/geo"
)

type scriptedIntake struct {
	mu       sync.Mutex
	requests []intakemodel.Request
	replies  []intakemodel.Response
}

func (s *scriptedIntake) Submit(_ context.Context, _ auth.Credentials, req intakemodel.Request) (intakemodel.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.requests) > len(s.replies) {
		return intakemodel.FAQ{Answer: "ok"}, nil
	}
	return s.replies[len(s.requests)-1], nil
}

func (s *scriptedIntake) calls() []intakemodel.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]intakemodel.Request(nil), s.requests...)
}

type wireMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type bridgeEnv struct {
	conn    *websocket.Conn
	session *chatservice.Session
	intake  *scriptedIntake
	speech  *fakeSpeechService
}

func newBridgeEnv(t *testing.T, replies ...intakemodel.Response) *bridgeEnv {
	t.Helper()
	in := &scriptedIntake{replies: replies}
	bridge := geosvc.NewBridge(geosvc.DefaultOptions(), nil)
	chatSvc := chatservice.NewService(chatservice.Config{
		Timing: chatservice.Timing{EnterDelay: time.Hour, ExitDelay: time.Millisecond, MaxImageBytes: 1024},
		Intake: in,
		Locators: func(id string) chatservice.Locator {
			return bridge.Helper(id)
		},
		OnRemove: bridge.Release,
	})
	session, err := chatSvc.Open(context.Background(), "tab-1", auth.Credentials{})
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}

	svc := &fakeSpeechService{enabled: true, text: "streetlight broken"}
	r := chi.NewRouter()
	r.Use(middleware.Credentials([]string{auth.TokenCookie}))
	NewWebSocketHandler(svc, chatSvc, bridge, nil, nil).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/sessions/" + session.ID() + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Cookie": {"token=opaque-session"}})
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	env := &bridgeEnv{conn: conn, session: session, intake: in, speech: svc}
	env.expect(t, "connected")
	return env
}

func (e *bridgeEnv) write(t *testing.T, kind string, data any) {
	t.Helper()
	if err := e.conn.WriteJSON(map[string]any{"type": kind, "data": data}); err != nil {
		t.Fatalf("write %s: %v", kind, err)
	}
}

// expect reads until a message of kind arrives.
func (e *bridgeEnv) expect(t *testing.T, kind string) wireMessage {
	t.Helper()
	return e.expectMatch(t, kind, func(wireMessage) bool { return true })
}

func (e *bridgeEnv) expectMatch(t *testing.T, kind string, match func(wireMessage) bool) wireMessage {
	t.Helper()
	_ = e.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg wireMessage
		if err := e.conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", kind, err)
		}
		if msg.Type == kind && match(msg) {
			return msg
		}
	}
}

func botMessage(containing string) func(wireMessage) bool {
	return func(m wireMessage) bool {
		var ev chatmodel.Event
		if err := json.Unmarshal(m.Data, &ev); err != nil || ev.Message == nil {
			return false
		}
		return ev.Message.Sender == chatmodel.SenderBot && strings.Contains(ev.Message.Text, containing)
	}
}

func TestBridgeSendUsesHandshakeCredentials(t *testing.T) {
	env := newBridgeEnv(t)

	env.write(t, "send", map[string]string{"text": "When is garbage pickup?"})
	env.expectMatch(t, "event", botMessage("ok"))

	if calls := env.intake.calls(); len(calls) != 1 || calls[0].RawText != "When is garbage pickup?" {
		t.Fatalf("unexpected submissions %+v", calls)
	}
}

func TestBridgeAnswersLocationRequests(t *testing.T) {
	env := newBridgeEnv(t,
		intakemodel.NewComplaint{Message: "Need location"},
		intakemodel.NewComplaint{TicketID: "T-77", Status: "open", Department: "roads"},
	)

	env.write(t, "send", map[string]string{"text": "Pothole near bus stop"})

	msg := env.expect(t, "location_request")
	var req locationRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.RequestID == "" {
		t.Fatalf("bad location request %s", msg.Data)
	}
	if !req.EnableHighAccuracy || req.TimeoutMillis != 15000 || req.MaximumAgeMillis != 300000 {
		t.Fatalf("unexpected options %+v", req)
	}

	env.write(t, "location_response", map[string]any{
		"requestId": req.RequestID,
		"latitude":  22.5726,
		"longitude": 88.3639,
		"accuracy":  12,
	})
	env.expectMatch(t, "event", botMessage("T-77"))

	calls := env.intake.calls()
	if len(calls) != 2 || !calls[1].HasCoordinates() || *calls[1].Lat != 22.5726 {
		t.Fatalf("unexpected submissions %+v", calls)
	}
}

func TestBridgeLocationDenied(t *testing.T) {
	env := newBridgeEnv(t, intakemodel.NewComplaint{Message: "Need location"})

	env.write(t, "send", map[string]string{"text": "Water logging"})
	msg := env.expect(t, "location_request")
	var req locationRequest
	_ = json.Unmarshal(msg.Data, &req)

	env.write(t, "location_response", map[string]any{
		"requestId": req.RequestID,
		"error":     map[string]string{"code": "1", "message": "User denied Geolocation"},
	})
	env.expectMatch(t, "event", botMessage("couldn't get your location"))

	if n := len(env.intake.calls()); n != 1 {
		t.Fatalf("expected no resubmission, got %d submissions", n)
	}
}

func TestBridgeRecordingCycle(t *testing.T) {
	env := newBridgeEnv(t)

	env.write(t, "record_stop", nil)
	env.expect(t, "error")

	env.write(t, "record_start", nil)
	env.expect(t, "recording")
	env.write(t, "record_start", nil)
	env.expect(t, "error")

	pcm := make([]byte, 3200)
	if err := env.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	env.write(t, "record_stop", nil)
	env.expect(t, "recording")

	msg := env.expect(t, "transcript")
	var out textPayload
	_ = json.Unmarshal(msg.Data, &out)
	if out.Text != "streetlight broken" {
		t.Fatalf("unexpected transcript %q", out.Text)
	}

	audio, creds := env.speech.lastAudio()
	if len(audio.Data) != 44+len(pcm) || string(audio.Data[:4]) != "RIFF" {
		t.Fatalf("expected one WAV clip, got %d bytes", len(audio.Data))
	}
	if creds.Token != "opaque-session" {
		t.Fatalf("expected handshake credentials, got %q", creds.Token)
	}
}

func TestBridgeSpeaksAndStops(t *testing.T) {
	env := newBridgeEnv(t)

	env.write(t, "speak", map[string]string{"text": "Namaste"})
	msg := env.expect(t, "tts")
	var out ttsPayload
	_ = json.Unmarshal(msg.Data, &out)
	if decoded, _ := base64.StdEncoding.DecodeString(out.AudioData); string(decoded) != "Namaste" {
		t.Fatalf("unexpected audio %q", out.AudioData)
	}

	env.write(t, "config", map[string]bool{"autoSpeak": true})
	env.expect(t, "config")
	env.write(t, "send", map[string]string{"text": "hello"})
	msg = env.expect(t, "tts")
	_ = json.Unmarshal(msg.Data, &out)
	if decoded, _ := base64.StdEncoding.DecodeString(out.AudioData); string(decoded) != "ok" {
		t.Fatalf("expected bot reply to be spoken, got %q", decoded)
	}
}

func TestBridgeClosesWithSession(t *testing.T) {
	env := newBridgeEnv(t)
	env.session.Close()
	env.expect(t, "closed")
}

func TestBridgeLateBrowserAnswersOpenLocationRequest(t *testing.T) {
	bridge := geosvc.NewBridge(geosvc.DefaultOptions(), nil)
	chatSvc := chatservice.NewService(chatservice.Config{
		Timing: chatservice.Timing{EnterDelay: 10 * time.Millisecond, ExitDelay: time.Millisecond, MaxImageBytes: 1024},
		Intake: &scriptedIntake{},
		Locators: func(id string) chatservice.Locator {
			return bridge.Helper(id)
		},
		OnRemove: bridge.Release,
	})
	session, err := chatSvc.Open(context.Background(), "tab-1", auth.Credentials{})
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}

	r := chi.NewRouter()
	NewWebSocketHandler(nil, chatSvc, bridge, nil, nil).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	// the browser learns the session id and connects after the session opened
	time.Sleep(100 * time.Millisecond)
	if session.State() != chatmodel.StateOpen {
		t.Fatalf("expected open session, got %s", session.State())
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/sessions/" + session.ID() + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	env := &bridgeEnv{conn: conn, session: session}

	msg := env.expect(t, "location_request")
	var req locationRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.RequestID == "" {
		t.Fatalf("bad location request %s: %v", msg.Data, err)
	}
	env.write(t, "location_response", map[string]any{
		"requestId": req.RequestID,
		"latitude":  26.8467,
		"longitude": 80.9462,
		"accuracy":  20,
	})
	env.expectMatch(t, "event", botMessage("Location detected (26.8467, 80.9462)"))

	if snap, ok := session.Location(); !ok || snap.Latitude != 26.8467 {
		t.Fatalf("expected cached snapshot, got %+v %v", snap, ok)
	}
	for _, m := range session.Messages() {
		if strings.Contains(m.Text, "unavailable") {
			t.Fatalf("unexpected failure notice %q", m.Text)
		}
	}
}

func TestBridgeChecksOrigin(t *testing.T) {
	chatSvc := chatservice.NewService(chatservice.Config{
		Timing: chatservice.Timing{EnterDelay: time.Hour, ExitDelay: time.Millisecond, MaxImageBytes: 1024},
		Intake: &scriptedIntake{},
	})
	session, err := chatSvc.Open(context.Background(), "tab-1", auth.Credentials{})
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}

	r := chi.NewRouter()
	NewWebSocketHandler(nil, chatSvc, nil, []string{"https://portal.jansunwai.example"}, nil).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/sessions/" + session.ID() + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://elsewhere.example"}})
	if err == nil {
		t.Fatal("foreign origin must be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %+v", resp)
	}

	for _, origin := range []string{"https://portal.jansunwai.example", srv.URL} {
		conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {origin}})
		if err != nil {
			t.Fatalf("origin %s refused: %v", origin, err)
		}
		conn.Close()
	}
}

func TestBridgeUnknownSession(t *testing.T) {
	chatSvc := chatservice.NewService(chatservice.Config{Intake: &scriptedIntake{}})
	r := chi.NewRouter()
	NewWebSocketHandler(nil, chatSvc, nil, nil, nil).RegisterRoutes(r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/chat/sessions/missing/ws", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestApplyConfigRequiresSynthesis(t *testing.T) {
	c := &connection{}
	on := true
	c.applyConfig(ConfigMessage{AutoSpeak: &on})
	if c.autoSpeak.Load() {
		t.Fatal("auto speak needs a speaker")
	}
}
