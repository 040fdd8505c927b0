package speech

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ChunkSource is an AudioSource fed by pushed chunks, such as binary frames
// arriving from a browser microphone.
type ChunkSource struct {
	format PCMFormat

	mu     sync.Mutex
	writer *io.PipeWriter
}

// NewChunkSource creates a source producing audio in format.
func NewChunkSource(format PCMFormat) *ChunkSource {
	return &ChunkSource{format: format.normalized()}
}

// Open implements AudioSource.
func (s *ChunkSource) Open(ctx context.Context) (AudioStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer != nil {
		return nil, errors.New("chunk source already open")
	}

	pr, pw := io.Pipe()
	s.writer = pw
	return &chunkStream{PipeReader: pr, source: s, writer: pw, format: s.format}, nil
}

// Push feeds a chunk to the open stream. Chunks arriving while no stream is
// open are discarded and false is returned.
func (s *ChunkSource) Push(chunk []byte) bool {
	s.mu.Lock()
	w := s.writer
	s.mu.Unlock()
	if w == nil || len(chunk) == 0 {
		return false
	}
	_, err := w.Write(chunk)
	return err == nil
}

func (s *ChunkSource) release(w *io.PipeWriter) {
	s.mu.Lock()
	if s.writer == w {
		s.writer = nil
	}
	s.mu.Unlock()
}

type chunkStream struct {
	*io.PipeReader
	source *ChunkSource
	writer *io.PipeWriter
	format PCMFormat
}

func (c *chunkStream) Format() PCMFormat {
	return c.format
}

func (c *chunkStream) Close() error {
	c.source.release(c.writer)
	return c.PipeReader.Close()
}
