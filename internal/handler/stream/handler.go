package stream

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	chatservice "github.com/jansunwai/assistant/internal/service/chat"
	"github.com/jansunwai/assistant/pkg/utils"
)

const defaultKeepAlive = 15 * time.Second

// Handler streams chat session events as Server-Sent Events.
type Handler struct {
	chatSvc   *chatservice.Service
	keepAlive time.Duration
	logger    *zap.Logger
}

// New creates the stream handler.
func New(chatSvc *chatservice.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{chatSvc: chatSvc, keepAlive: defaultKeepAlive, logger: logger.Named("stream")}
}

// RegisterRoutes mounts the event stream route on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/sessions/{sessionID}/events", h.handleEvents)
}

// handleEvents sends a "session" snapshot first, then every session event
// until the client goes away or the session ends.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.chatSvc.Get(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, cancel := session.Subscribe()
	defer cancel()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	logger := h.logger.With(zap.String("session_id", sessionID))
	logger.Debug("event stream opened")

	if err := utils.SendSSEEvent(w, flusher, "session", session.Info()); err != nil {
		logger.Warn("write session snapshot failed", zap.Error(err))
		return
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Debug("event stream closed by client")
			return
		case ev, ok := <-events:
			if !ok {
				_ = utils.SendSSEEvent(w, flusher, "end", map[string]string{"sessionId": sessionID})
				logger.Debug("event stream ended with session")
				return
			}
			if err := utils.SendSSEEvent(w, flusher, string(ev.Type), ev); err != nil {
				logger.Warn("write event failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "keep-alive"); err != nil {
				return
			}
		}
	}
}
