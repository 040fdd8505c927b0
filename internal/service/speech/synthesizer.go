package speech

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	speechmodel "github.com/jansunwai/assistant/internal/model/speech"
)

// Player outputs synthesized audio. Play blocks until playback ended or ctx
// is canceled.
type Player interface {
	Play(ctx context.Context, audio speechmodel.Audio) error
}

// Engine renders text to audio.
type Engine interface {
	Synthesize(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error)
}

// VolcengineSynthesizer implements Synthesizer with a TTS engine, a voice
// catalog and a playback sink.
type VolcengineSynthesizer struct {
	engine  Engine
	catalog *Catalog
	player  Player
	logger  *zap.Logger
}

// NewVolcengineSynthesizer wires engine, catalog and player together.
func NewVolcengineSynthesizer(engine Engine, catalog *Catalog, player Player, logger *zap.Logger) *VolcengineSynthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VolcengineSynthesizer{engine: engine, catalog: catalog, player: player, logger: logger}
}

// Voices implements Synthesizer.
func (s *VolcengineSynthesizer) Voices(context.Context) ([]speechmodel.Voice, error) {
	if s.catalog == nil {
		return nil, nil
	}
	return s.catalog.Voices(), nil
}

// Speak implements Synthesizer.
func (s *VolcengineSynthesizer) Speak(ctx context.Context, u speechmodel.Utterance) error {
	req := &speechmodel.TTSRequest{
		Text:   u.Text,
		Format: "mp3",
		Lang:   u.Lang,
		Rate:   u.Rate,
		Volume: u.Volume,
	}
	if u.Voice != nil {
		req.Voice = u.Voice.ID
	}

	resp, err := s.engine.Synthesize(ctx, req)
	if err != nil {
		return err
	}
	if s.player == nil {
		return nil
	}
	return s.player.Play(ctx, speechmodel.Audio{
		Data:     resp.AudioData,
		Format:   resp.Format,
		MIMEType: "audio/" + resp.Format,
		Duration: time.Duration(resp.Duration) * time.Millisecond,
	})
}

// FilePlayer writes each clip into Dir.
type FilePlayer struct {
	Dir    string
	Logger *zap.Logger
}

// Play implements Player.
func (p FilePlayer) Play(ctx context.Context, audio speechmodel.Audio) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := p.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	format := audio.Format
	if format == "" {
		format = "mp3"
	}
	path := filepath.Join(dir, fmt.Sprintf("utterance-%s.%s", uuid.NewString(), format))
	if err := os.WriteFile(path, audio.Data, 0o644); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	if p.Logger != nil {
		p.Logger.Info("utterance saved", zap.String("path", path), zap.Int("bytes", len(audio.Data)))
	}
	return nil
}
