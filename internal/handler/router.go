package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/jansunwai/assistant/internal/handler/chat"
	"github.com/jansunwai/assistant/internal/handler/speech"
	"github.com/jansunwai/assistant/internal/handler/stream"
	"github.com/jansunwai/assistant/internal/middleware"
	chatservice "github.com/jansunwai/assistant/internal/service/chat"
	geosvc "github.com/jansunwai/assistant/internal/service/geo"
	"github.com/jansunwai/assistant/pkg/utils"
)

// Options tunes the HTTP surface.
type Options struct {
	AllowedOrigins    []string
	CredentialCookies []string
}

// NewRouter wires HTTP routes to core services. geoBridge may be nil when
// sessions locate themselves without a browser.
func NewRouter(chatSvc *chatservice.Service, speechSvc speech.BridgeSpeech, geoBridge *geosvc.Bridge, opts Options, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger.Named("http")))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(opts.AllowedOrigins))
	r.Use(middleware.Credentials(opts.CredentialCookies))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		chat.New(chatSvc, logger).RegisterRoutes(api)
		stream.New(chatSvc, logger).RegisterRoutes(api)
		speech.NewWebSocketHandler(speechSvc, chatSvc, geoBridge, opts.AllowedOrigins, logger).RegisterRoutes(api)
		if speechSvc != nil {
			speech.New(speechSvc, logger).RegisterRoutes(api)
		}
	})

	return r
}
