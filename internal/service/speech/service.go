package speech

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	speechmodel "github.com/jansunwai/assistant/internal/model/speech"
	"github.com/jansunwai/assistant/internal/service/auth"
)

// Service bundles the speech bridge components shared by all sessions.
type Service struct {
	config      *speechmodel.SpeechConfig
	transcriber *Transcriber
	tts         *VolcengineTTSClient
	catalog     *Catalog
	logger      *zap.Logger
}

// NewService creates the speech service. Synthesis stays disabled when no
// engine credentials are configured.
func NewService(config *speechmodel.SpeechConfig, logger *zap.Logger) *Service {
	if config == nil {
		config = &speechmodel.SpeechConfig{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("speech")

	s := &Service{
		config:      config,
		transcriber: NewTranscriber(config, logger),
		catalog:     LoadCatalog(config.VoicesFile, logger),
		logger:      logger,
	}
	if strings.TrimSpace(config.AppID) != "" && strings.TrimSpace(config.AccessToken) != "" {
		s.tts = NewVolcengineTTSClient(config, logger)
	}
	return s
}

// SynthesisEnabled reports whether a TTS engine is configured.
func (s *Service) SynthesisEnabled() bool {
	return s.tts != nil
}

// Catalog returns the voice catalog.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// Transcribe converts a finalized clip to text.
func (s *Service) Transcribe(ctx context.Context, creds auth.Credentials, audio speechmodel.Audio) (string, error) {
	return s.transcriber.Transcribe(ctx, creds, audio)
}

// Synthesize renders text to audio without playing it. Voice and language
// are chosen like Speaker does when the request leaves them empty.
func (s *Service) Synthesize(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	if s.tts == nil {
		return nil, ErrSynthesisDisabled
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: text is empty", ErrSynthesisFailed)
	}

	if req.Voice == "" {
		u := BuildUtterance(req.Text, s.catalog.Voices())
		if u.Voice != nil {
			req.Voice = u.Voice.ID
		}
		if req.Lang == "" {
			req.Lang = u.Lang
		}
		if req.Rate == 0 {
			req.Rate = u.Rate
		}
	}

	resp, err := s.tts.Synthesize(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("synthesis failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	return resp, nil
}

// NewSpeaker returns a speaker playing through player, or nil when
// synthesis is disabled.
func (s *Service) NewSpeaker(player Player) *Speaker {
	if s.tts == nil {
		return nil
	}
	synth := NewVolcengineSynthesizer(s.tts, s.catalog, player, s.logger)
	return NewSpeaker(synth, s.config.PollInterval, s.logger)
}

// NewRecorder returns a recorder reading from source.
func (s *Service) NewRecorder(source AudioSource) *Recorder {
	return NewRecorder(source, s.logger)
}
