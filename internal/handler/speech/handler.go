package speech

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	speechmodel "github.com/jansunwai/assistant/internal/model/speech"
	"github.com/jansunwai/assistant/internal/service/auth"
	speechsvc "github.com/jansunwai/assistant/internal/service/speech"
	"github.com/jansunwai/assistant/pkg/utils"
)

// maximum accepted upload for transcription
const maxAudioBytes = 32 << 20

// TranscriptionFailedText is the one error shown to citizens when a voice
// note could not be transcribed.
const TranscriptionFailedText = "Sorry, I couldn't understand the recording. Please try again or type your message."

// SpeechService abstracts the speech bridge for the HTTP layer.
type SpeechService interface {
	Transcribe(ctx context.Context, creds auth.Credentials, audio speechmodel.Audio) (string, error)
	Synthesize(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error)
	SynthesisEnabled() bool
}

// Handler exposes transcription and synthesis over HTTP.
type Handler struct {
	speechSvc SpeechService
	logger    *zap.Logger
}

// New creates the speech handler.
func New(speechSvc SpeechService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{speechSvc: speechSvc, logger: logger.Named("speech_handler")}
}

// RegisterRoutes mounts the speech routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(sr chi.Router) {
		sr.Post("/transcribe", h.handleTranscribe)
		sr.Post("/synthesize", h.handleSynthesize)
		sr.Get("/health", h.handleHealth)
	})
}

func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes)
	if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read audio")
		return
	}

	format := inferAudioFormat(header.Filename)
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = "audio/" + format
	}

	text, err := h.speechSvc.Transcribe(r.Context(), auth.FromContext(r.Context()), speechmodel.Audio{
		Data:     data,
		Format:   format,
		MIMEType: mimeType,
	})
	if err != nil {
		h.logger.Warn("transcription failed", zap.Error(err))
		utils.RespondError(w, http.StatusBadGateway, TranscriptionFailedText)
		return
	}

	utils.RespondJSON(w, http.StatusOK, speechmodel.ASRResponse{Text: text})
}

func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req speechmodel.TTSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	resp, err := h.speechSvc.Synthesize(r.Context(), &req)
	if err != nil {
		if errors.Is(err, speechsvc.ErrSynthesisDisabled) {
			utils.RespondError(w, http.StatusServiceUnavailable, "speech synthesis is not configured")
			return
		}
		h.logger.Warn("synthesis failed", zap.Error(err))
		utils.RespondError(w, http.StatusBadGateway, "speech synthesis failed")
		return
	}

	if len(resp.AudioData) == 0 {
		utils.RespondJSON(w, http.StatusOK, resp)
		return
	}

	format := resp.Format
	if format == "" {
		format = "mpeg"
	}
	w.Header().Set("Content-Type", "audio/"+format)
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.AudioData)))
	w.Header().Set("Content-Disposition", "attachment; filename=speech."+format)
	if resp.Lang != "" {
		w.Header().Set("Content-Language", resp.Lang)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.AudioData); err != nil {
		h.logger.Debug("write audio response failed", zap.Error(err))
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   "speech",
		"synthesis": h.speechSvc.SynthesisEnabled(),
	})
}

func inferAudioFormat(filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".mp3", ".wav", ".webm", ".ogg", ".m4a":
		return strings.TrimPrefix(ext, ".")
	}
	return "wav"
}
