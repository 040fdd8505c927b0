package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	speechmodel "github.com/jansunwai/assistant/internal/model/speech"
)

// AudioSource opens the audio input device.
type AudioSource interface {
	Open(ctx context.Context) (AudioStream, error)
}

// AudioStream yields raw PCM until closed.
type AudioStream interface {
	io.ReadCloser
	Format() PCMFormat
}

// Recorder captures one clip at a time: Idle -> Recording -> Idle.
type Recorder struct {
	source AudioSource
	logger *zap.Logger

	mu     sync.Mutex
	active *recording
}

type recording struct {
	stream AudioStream
	done   chan struct{}

	mu  sync.Mutex
	buf bytes.Buffer
	err error
}

// NewRecorder builds a recorder over source.
func NewRecorder(source AudioSource, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{source: source, logger: logger.Named("recorder")}
}

// Recording reports whether a clip is being captured.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Start opens the input and begins buffering. An active recording is left
// untouched and ErrAlreadyRecording is returned.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return ErrAlreadyRecording
	}
	if r.source == nil {
		return ErrDeviceUnavailable
	}

	stream, err := r.source.Open(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	rec := &recording{stream: stream, done: make(chan struct{})}
	r.active = rec
	go rec.capture()
	return nil
}

// Stop finalizes the buffered chunks into one WAV clip and releases the
// input.
func (r *Recorder) Stop() (speechmodel.Audio, error) {
	r.mu.Lock()
	rec := r.active
	r.active = nil
	r.mu.Unlock()

	if rec == nil {
		return speechmodel.Audio{}, ErrNotRecording
	}

	if err := rec.stream.Close(); err != nil {
		r.logger.Warn("close audio stream", zap.Error(err))
	}
	<-rec.done

	rec.mu.Lock()
	pcm := append([]byte(nil), rec.buf.Bytes()...)
	readErr := rec.err
	rec.mu.Unlock()

	if readErr != nil {
		r.logger.Warn("audio stream ended with error", zap.Error(readErr))
	}

	format := rec.stream.Format()
	return speechmodel.Audio{
		Data:     EncodeWAV(pcm, format),
		Format:   "wav",
		MIMEType: "audio/wav",
		Duration: format.Duration(len(pcm)),
	}, nil
}

func (rec *recording) capture() {
	defer close(rec.done)

	chunk := make([]byte, 4096)
	for {
		n, err := rec.stream.Read(chunk)
		if n > 0 {
			rec.mu.Lock()
			rec.buf.Write(chunk[:n])
			rec.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				rec.mu.Lock()
				rec.err = err
				rec.mu.Unlock()
			}
			return
		}
	}
}
