package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	speechmodel "github.com/jansunwai/assistant/internal/model/speech"
)

// Synthesizer is the platform text-to-speech capability. Speak blocks until
// the utterance finished playing or ctx is canceled.
type Synthesizer interface {
	Voices(ctx context.Context) ([]speechmodel.Voice, error)
	Speak(ctx context.Context, u speechmodel.Utterance) error
}

// Speaker reads bot messages aloud, one utterance at a time.
type Speaker struct {
	synth        Synthesizer
	pollInterval time.Duration
	logger       *zap.Logger

	mu      sync.Mutex
	current *utterance
}

type utterance struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSpeaker builds a speaker. pollInterval is how often the voice list is
// checked while still empty.
func NewSpeaker(synth Synthesizer, pollInterval time.Duration, logger *zap.Logger) *Speaker {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Speaker{synth: synth, pollInterval: pollInterval, logger: logger.Named("speaker")}
}

// Speak cancels any utterance in flight, waits for it to end and then reads
// text. Being interrupted by Stop or a newer Speak is not an error.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if s.synth == nil {
		return ErrSynthesisDisabled
	}

	uctx, cancel := context.WithCancel(ctx)
	self := &utterance{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	prev := s.current
	s.current = self
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.current == self {
			s.current = nil
		}
		s.mu.Unlock()
		cancel()
		close(self.done)
	}()

	if prev != nil {
		prev.cancel()
		<-prev.done
	}
	if uctx.Err() != nil {
		// superseded before it started
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}

	voices, err := s.waitForVoices(uctx)
	if err == nil {
		u := BuildUtterance(text, voices)
		s.logger.Debug("speaking",
			zap.String("lang", u.Lang),
			zap.Float32("rate", u.Rate),
			zap.Bool("default_voice", u.Voice == nil),
		)
		err = s.synth.Speak(uctx, u)
	}

	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case uctx.Err() != nil:
		return nil
	case errors.Is(err, ErrSynthesisFailed):
		return err
	default:
		s.logger.Warn("synthesis failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
}

// Stop interrupts the current utterance, if any, and waits for it to end.
func (s *Speaker) Stop() {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur == nil {
		return
	}
	cur.cancel()
	<-cur.done
}

// Speaking reports whether an utterance is in flight.
func (s *Speaker) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

func (s *Speaker) waitForVoices(ctx context.Context) ([]speechmodel.Voice, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		voices, err := s.synth.Voices(ctx)
		if err != nil {
			return nil, err
		}
		if len(voices) > 0 {
			return voices, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
