package chat

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	chatmodel "github.com/jansunwai/assistant/internal/model/chat"
	"github.com/jansunwai/assistant/internal/service/auth"
	chatservice "github.com/jansunwai/assistant/internal/service/chat"
	"github.com/jansunwai/assistant/pkg/utils"
)

// ClientHeader identifies the browser tab or terminal owning a widget.
const ClientHeader = "X-Client-ID"

// multipart overhead allowed on top of the image itself
const formOverhead = 1 << 20

// Handler exposes chat widget sessions over HTTP.
type Handler struct {
	chatSvc *chatservice.Service
	logger  *zap.Logger
}

// New creates the chat handler.
func New(chatSvc *chatservice.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{chatSvc: chatSvc, logger: logger.Named("chat_handler")}
}

// RegisterRoutes mounts the chat routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/chat", func(cr chi.Router) {
		cr.Post("/open-signal", h.handleOpenSignal)
		cr.Get("/sessions", h.handleListSessions)
		cr.Post("/sessions", h.handleOpenSession)
		cr.Get("/sessions/{sessionID}", h.handleGetSession)
		cr.Delete("/sessions/{sessionID}", h.handleCloseSession)
		cr.Get("/sessions/{sessionID}/messages", h.handleListMessages)
		cr.Post("/sessions/{sessionID}/messages", h.handleSendMessage)
		cr.Post("/sessions/{sessionID}/attachments", h.handleAttach)
	})
}

type openRequest struct {
	ClientID string `json:"clientId"`
}

func (h *Handler) clientID(r *http.Request) (string, error) {
	var payload openRequest
	if r.ContentLength != 0 && r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
	}
	if payload.ClientID == "" {
		payload.ClientID = r.Header.Get(ClientHeader)
	}
	return strings.TrimSpace(payload.ClientID), nil
}

func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	clientID, err := h.clientID(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.chatSvc.Open(r.Context(), clientID, auth.FromContext(r.Context()))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session.Info())
}

func (h *Handler) handleOpenSignal(w http.ResponseWriter, r *http.Request) {
	clientID, err := h.clientID(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.chatSvc.Signal(r.Context(), clientID, auth.FromContext(r.Context()))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session.Info())
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.chatSvc.List(r.Context()))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, session.Info())
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.Close(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": string(chatmodel.StateClosing)})
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, session.Messages())
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session.SetCredentials(auth.FromContext(r.Context()))
	msg, err := session.Send(r.Context(), payload.Text)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, msg)
}

func (h *Handler) handleAttach(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	limit := h.chatSvc.Timing().MaxImageBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+formOverhead)
	if err := r.ParseMultipartForm(limit + formOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondServiceError(w, chatservice.ErrImageTooLarge)
			return
		}
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	// reading one byte past the limit is enough to reject the upload
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	msg, err := session.Attach(r.Context(), header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, msg)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*chatservice.Session, bool) {
	session, err := h.chatSvc.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, err)
		return nil, false
	}
	return session, true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("chat request failed", zap.Error(err))
	}
	utils.RespondError(w, status, err.Error())
}

// StatusFor maps chat errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, chatservice.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatservice.ErrEmptyMessage), errors.Is(err, chatservice.ErrNotImage):
		return http.StatusBadRequest
	case errors.Is(err, chatservice.ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.Is(err, chatservice.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, chatservice.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}
