package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jansunwai/assistant/internal/middleware"
	chatmodel "github.com/jansunwai/assistant/internal/model/chat"
	geomodel "github.com/jansunwai/assistant/internal/model/geo"
	speechmodel "github.com/jansunwai/assistant/internal/model/speech"
	"github.com/jansunwai/assistant/internal/service/auth"
	chatservice "github.com/jansunwai/assistant/internal/service/chat"
	geosvc "github.com/jansunwai/assistant/internal/service/geo"
	speechsvc "github.com/jansunwai/assistant/internal/service/speech"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// BridgeSpeech is the speech capability used by a websocket connection.
type BridgeSpeech interface {
	SpeechService
	NewSpeaker(player speechsvc.Player) *speechsvc.Speaker
}

// WebSocketHandler bridges one browser widget to its chat session: session
// events, location requests and synthesized audio go out; location answers,
// microphone audio, messages and playback control come in.
type WebSocketHandler struct {
	speechSvc BridgeSpeech
	chatSvc   *chatservice.Service
	geo       *geosvc.Bridge
	upgrader  websocket.Upgrader
	logger    *zap.Logger
}

// NewWebSocketHandler creates the session bridge. geo may be nil when
// locations come from elsewhere. Cross-origin handshakes are accepted only
// from allowedOrigins.
func NewWebSocketHandler(speechSvc BridgeSpeech, chatSvc *chatservice.Service, geo *geosvc.Bridge, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	allow := middleware.OriginMatcher(allowedOrigins)
	return &WebSocketHandler{
		speechSvc: speechSvc,
		chatSvc:   chatSvc,
		geo:       geo,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
					return true
				}
				return allow(origin)
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger: logger.Named("websocket"),
	}
}

// RegisterRoutes mounts the bridge route on r.
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/sessions/{sessionID}/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type textPayload struct {
	Text string `json:"text"`
}

// ConfigMessage tunes a connection.
type ConfigMessage struct {
	AutoSpeak *bool `json:"autoSpeak,omitempty"`
}

type locationRequest struct {
	RequestID          string `json:"requestId"`
	EnableHighAccuracy bool   `json:"enableHighAccuracy"`
	TimeoutMillis      int64  `json:"timeout"`
	MaximumAgeMillis   int64  `json:"maximumAge"`
}

type locationResponse struct {
	RequestID string  `json:"requestId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
	// Timestamp is epoch milliseconds as reported by the browser.
	Timestamp int64 `json:"timestamp"`
	Error     *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type ttsPayload struct {
	AudioData      string `json:"audioData"`
	Format         string `json:"format"`
	MIMEType       string `json:"mimeType"`
	DurationMillis int64  `json:"durationMs"`
}

// wsConn serializes writes to one websocket.
type wsConn struct {
	conn      *websocket.Conn
	sessionID string
	mu        sync.Mutex
}

func (c *wsConn) send(kind string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(outgoingMessage{
		Type:      kind,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (c *wsConn) sendError(message string) {
	_ = c.send("error", map[string]string{"message": message})
}

// RequestLocation implements geo.Requester.
func (c *wsConn) RequestLocation(_ context.Context, requestID string, opts geomodel.Options) error {
	return c.send("location_request", locationRequest{
		RequestID:          requestID,
		EnableHighAccuracy: opts.HighAccuracy,
		TimeoutMillis:      opts.Timeout.Milliseconds(),
		MaximumAgeMillis:   opts.MaximumAge.Milliseconds(),
	})
}

// wsPlayer plays synthesized audio in the browser. Play returns after the
// clip duration so utterances never overlap.
type wsPlayer struct {
	conn *wsConn
}

func (p wsPlayer) Play(ctx context.Context, audio speechmodel.Audio) error {
	if err := p.conn.send("tts", ttsPayload{
		AudioData:      base64.StdEncoding.EncodeToString(audio.Data),
		Format:         audio.Format,
		MIMEType:       audio.MIMEType,
		DurationMillis: audio.Duration.Milliseconds(),
	}); err != nil {
		return err
	}
	if audio.Duration <= 0 {
		return nil
	}

	t := time.NewTimer(audio.Duration)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		_ = p.conn.send("tts_stop", nil)
		return ctx.Err()
	}
}

type connection struct {
	h         *WebSocketHandler
	ws        *wsConn
	session   *chatservice.Session
	creds     auth.Credentials
	provider  *geosvc.RemoteProvider
	source    *speechsvc.ChunkSource
	recorder  *speechsvc.Recorder
	speaker   *speechsvc.Speaker
	autoSpeak atomic.Bool
	wg        sync.WaitGroup
	logger    *zap.Logger
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.chatSvc.Get(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &connection{
		h:       h,
		ws:      &wsConn{conn: conn, sessionID: sessionID},
		session: session,
		creds:   auth.FromContext(r.Context()),
		source:  speechsvc.NewChunkSource(speechsvc.DefaultPCMFormat),
		logger:  h.logger.With(zap.String("session_id", sessionID)),
	}
	c.recorder = speechsvc.NewRecorder(c.source, c.logger)
	if h.speechSvc != nil {
		c.speaker = h.speechSvc.NewSpeaker(wsPlayer{conn: c.ws})
	}
	if h.geo != nil {
		c.provider = h.geo.Provider(sessionID)
		detach := c.provider.Attach(c.ws)
		defer detach()
	}

	events, unsubscribe := session.Subscribe()
	defer c.shutdown(cancel, unsubscribe)

	c.logger.Info("websocket connected")

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go h.pingLoop(ctx, c.ws)
	c.wg.Add(1)
	go c.forwardEvents(ctx, events)

	_ = c.ws.send("connected", map[string]any{
		"session":   session.Info(),
		"synthesis": c.speaker != nil,
	})

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("read error", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		switch kind {
		case websocket.BinaryMessage:
			if !c.source.Push(data) {
				c.logger.Debug("dropping audio chunk outside recording", zap.Int("bytes", len(data)))
			}
		case websocket.TextMessage:
			var msg inboundMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				c.ws.sendError("invalid message")
				continue
			}
			c.handleMessage(ctx, &msg)
		}
	}
}

func (c *connection) shutdown(cancel context.CancelFunc, unsubscribe func()) {
	cancel()
	unsubscribe()
	if c.speaker != nil {
		c.speaker.Stop()
	}
	if c.recorder.Recording() {
		_, _ = c.recorder.Stop()
	}
	c.wg.Wait()
	c.logger.Info("websocket disconnected")
}

// forwardEvents relays session events until the session ends, then closes
// the socket.
func (c *connection) forwardEvents(ctx context.Context, events <-chan chatmodel.Event) {
	defer c.wg.Done()

	for ev := range events {
		if err := c.ws.send("event", ev); err != nil {
			c.logger.Debug("forward event failed", zap.Error(err))
			continue
		}
		if ev.Type == chatmodel.EventMessage && ev.Message != nil &&
			ev.Message.Sender == chatmodel.SenderBot && c.autoSpeak.Load() {
			c.speak(ctx, ev.Message.Text)
		}
	}

	if ctx.Err() != nil {
		return
	}
	_ = c.ws.send("closed", nil)
	c.ws.mu.Lock()
	_ = c.ws.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
		time.Now().Add(writeTimeout))
	c.ws.mu.Unlock()
	_ = c.ws.conn.Close()
}

func (c *connection) handleMessage(ctx context.Context, msg *inboundMessage) {
	switch msg.Type {
	case "send":
		c.handleSend(ctx, msg.Data)
	case "location_response":
		c.handleLocation(msg.Data)
	case "record_start":
		c.handleRecordStart(ctx)
	case "record_stop":
		c.handleRecordStop(ctx)
	case "speak":
		var p textPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.ws.sendError("invalid speak payload")
			return
		}
		c.speak(ctx, p.Text)
	case "stop_speaking":
		if c.speaker != nil {
			c.speaker.Stop()
		}
	case "config":
		c.handleConfig(msg.Data)
	default:
		c.ws.sendError("unsupported message type: " + msg.Type)
	}
}

func (c *connection) handleSend(ctx context.Context, raw json.RawMessage) {
	var p textPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.ws.sendError("invalid send payload")
		return
	}
	c.session.SetCredentials(c.creds)
	if _, err := c.session.Send(ctx, p.Text); err != nil {
		// the auth_required event already reached the client
		if !errors.Is(err, chatservice.ErrAuthRequired) {
			c.ws.sendError(err.Error())
		}
	}
}

func (c *connection) handleLocation(raw json.RawMessage) {
	var p locationResponse
	if err := json.Unmarshal(raw, &p); err != nil || p.RequestID == "" {
		c.ws.sendError("invalid location payload")
		return
	}
	if c.provider == nil {
		return
	}

	var matched bool
	if p.Error != nil {
		matched = c.provider.Reject(p.RequestID, geomodel.ParseErrorCode(p.Error.Code), p.Error.Message)
	} else {
		ts := time.Now()
		if p.Timestamp > 0 {
			ts = time.UnixMilli(p.Timestamp)
		}
		matched = c.provider.Resolve(p.RequestID, geomodel.Snapshot{
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
			Accuracy:  p.Accuracy,
			Timestamp: ts.UTC(),
		})
	}
	if !matched {
		c.logger.Debug("location response without pending request", zap.String("request_id", p.RequestID))
	}
}

func (c *connection) handleRecordStart(ctx context.Context) {
	if err := c.recorder.Start(ctx); err != nil {
		c.ws.sendError(err.Error())
		return
	}
	_ = c.ws.send("recording", map[string]bool{"recording": true})
}

func (c *connection) handleRecordStop(ctx context.Context) {
	audio, err := c.recorder.Stop()
	if err != nil {
		c.ws.sendError(err.Error())
		return
	}
	_ = c.ws.send("recording", map[string]bool{"recording": false})

	if c.h.speechSvc == nil {
		_ = c.ws.send("transcription_error", map[string]string{"message": TranscriptionFailedText})
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		text, err := c.h.speechSvc.Transcribe(ctx, c.creds, audio)
		if err != nil {
			c.logger.Warn("transcription failed", zap.Error(err))
			_ = c.ws.send("transcription_error", map[string]string{"message": TranscriptionFailedText})
			return
		}
		_ = c.ws.send("transcript", textPayload{Text: text})
	}()
}

func (c *connection) speak(ctx context.Context, text string) {
	if c.speaker == nil {
		c.ws.sendError(speechsvc.ErrSynthesisDisabled.Error())
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.speaker.Speak(ctx, text); err != nil && ctx.Err() == nil {
			c.logger.Warn("speech playback failed", zap.Error(err))
			_ = c.ws.send("tts_error", map[string]string{"message": "speech playback failed"})
		}
	}()
}

func (c *connection) handleConfig(raw json.RawMessage) {
	var cfg ConfigMessage
	if err := json.Unmarshal(raw, &cfg); err != nil {
		c.ws.sendError("invalid config payload")
		return
	}
	c.applyConfig(cfg)
	_ = c.ws.send("config", map[string]bool{
		"autoSpeak": c.autoSpeak.Load(),
		"synthesis": c.speaker != nil,
	})
}

func (c *connection) applyConfig(cfg ConfigMessage) {
	if cfg.AutoSpeak != nil {
		c.autoSpeak.Store(*cfg.AutoSpeak && c.speaker != nil)
	}
}

func (h *WebSocketHandler) pingLoop(ctx context.Context, ws *wsConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ws.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
