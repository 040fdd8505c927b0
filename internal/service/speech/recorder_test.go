package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

type failingSource struct{}

func (failingSource) Open(context.Context) (AudioStream, error) {
	return nil, errors.New("microphone busy")
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestRecorderStartStopProducesWAV(t *testing.T) {
	source := NewChunkSource(DefaultPCMFormat)
	rec := NewRecorder(source, nil)

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	pcm := bytes.Repeat([]byte{0x01, 0x02}, 1600)
	if !source.Push(pcm) {
		t.Fatal("push rejected while recording")
	}

	audio, err := rec.Stop()
	if err != nil {
		t.Fatalf("Stop err: %v", err)
	}
	if audio.Format != "wav" || audio.MIMEType != "audio/wav" {
		t.Fatalf("unexpected format %q %q", audio.Format, audio.MIMEType)
	}
	if string(audio.Data[0:4]) != "RIFF" || string(audio.Data[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE header")
	}
	if size := binary.LittleEndian.Uint32(audio.Data[40:44]); int(size) != len(pcm) {
		t.Fatalf("data chunk size %d, want %d", size, len(pcm))
	}
	if !bytes.Equal(audio.Data[44:], pcm) {
		t.Fatal("pcm payload altered")
	}
	if audio.Duration != 100*time.Millisecond {
		t.Fatalf("unexpected duration %s", audio.Duration)
	}
	if rec.Recording() {
		t.Fatal("recorder should be idle after Stop")
	}
}

func TestRecorderRejectsSecondStartWithoutTouchingBuffer(t *testing.T) {
	source := NewChunkSource(DefaultPCMFormat)
	rec := NewRecorder(source, nil)

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	source.Push([]byte{1, 2, 3, 4})

	if err := rec.Start(context.Background()); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("expected ErrAlreadyRecording, got %v", err)
	}
	source.Push([]byte{5, 6})

	audio, err := rec.Stop()
	if err != nil {
		t.Fatalf("Stop err: %v", err)
	}
	if !bytes.Equal(audio.Data[44:], []byte{1, 2, 3, 4, 5, 6}) {
		t.Fatalf("buffer altered: %v", audio.Data[44:])
	}
}

func TestRecorderStopWithoutRecording(t *testing.T) {
	rec := NewRecorder(NewChunkSource(DefaultPCMFormat), nil)
	if _, err := rec.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("expected ErrNotRecording, got %v", err)
	}
}

func TestRecorderDeviceUnavailable(t *testing.T) {
	rec := NewRecorder(failingSource{}, nil)
	if err := rec.Start(context.Background()); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if rec.Recording() {
		t.Fatal("failed start must leave the recorder idle")
	}
}

func TestChunkSourceDropsChunksWhileIdle(t *testing.T) {
	source := NewChunkSource(DefaultPCMFormat)
	if source.Push([]byte{1}) {
		t.Fatal("push must fail without an open stream")
	}

	rec := NewRecorder(source, nil)
	_ = rec.Start(context.Background())
	_, _ = rec.Stop()
	waitFor(t, func() bool { return !source.Push([]byte{1}) })
}
