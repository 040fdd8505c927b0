package speech

import (
	"bytes"
	"encoding/binary"
	"time"
)

// PCMFormat describes raw little-endian PCM audio.
type PCMFormat struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// DefaultPCMFormat is what browsers stream to the bridge: 16 kHz mono PCM16.
var DefaultPCMFormat = PCMFormat{SampleRate: 16000, Channels: 1, BitsPerSample: 16}

func (f PCMFormat) normalized() PCMFormat {
	if f.SampleRate <= 0 {
		f.SampleRate = DefaultPCMFormat.SampleRate
	}
	if f.Channels <= 0 {
		f.Channels = DefaultPCMFormat.Channels
	}
	if f.BitsPerSample <= 0 {
		f.BitsPerSample = DefaultPCMFormat.BitsPerSample
	}
	return f
}

func (f PCMFormat) blockAlign() int {
	return f.Channels * f.BitsPerSample / 8
}

// Duration returns the play time of size bytes of audio.
func (f PCMFormat) Duration(size int) time.Duration {
	f = f.normalized()
	bytesPerSecond := f.SampleRate * f.blockAlign()
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(size) * time.Second / time.Duration(bytesPerSecond)
}

// EncodeWAV wraps pcm in a RIFF/WAVE container.
func EncodeWAV(pcm []byte, f PCMFormat) []byte {
	f = f.normalized()
	dataLen := uint32(len(pcm))

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, 36+dataLen)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(f.Channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(f.SampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(f.SampleRate*f.blockAlign()))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(f.blockAlign()))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(f.BitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, dataLen)
	buf.Write(pcm)

	return buf.Bytes()
}
