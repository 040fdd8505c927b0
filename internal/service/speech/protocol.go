package speech

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Binary frame layout of the Volcengine streaming TTS websocket:
//
//	byte 0: version(4) | header size in words(4)
//	byte 1: message type(4) | flags(4)
//	byte 2: serialization(4) | compression(4)
//	byte 3: reserved
//
// followed by optional sequence, event metadata, error code and a
// length-prefixed payload. All integers are big endian.
const frameVersion = 0b0001

type frameType uint8

const (
	frameFullClientRequest  frameType = 0b0001
	frameFullServerResponse frameType = 0b1001
	frameAudioOnlyResponse  frameType = 0b1011
	frameError              frameType = 0b1111
)

type frameFlags uint8

const (
	flagNoSequence       frameFlags = 0b0000
	flagPositiveSequence frameFlags = 0b0001
	flagLastNoSequence   frameFlags = 0b0010
	flagNegativeSequence frameFlags = 0b0011
	flagWithEvent        frameFlags = 0b0100
)

type serialization uint8

const (
	serializationNone serialization = 0b0000
	serializationJSON serialization = 0b0001
)

type compression uint8

const (
	compressionNone compression = 0b0000
	compressionGzip compression = 0b0001
)

type eventType int32

const (
	eventStartConnection    eventType = 1
	eventFinishConnection   eventType = 2
	eventConnectionStarted  eventType = 50
	eventConnectionFailed   eventType = 51
	eventConnectionFinished eventType = 52
	eventSessionFinished    eventType = 152
	eventSessionFailed      eventType = 153
)

type frame struct {
	Type          frameType
	Flags         frameFlags
	Serialization serialization
	Compression   compression

	Sequence  int32
	Event     eventType
	SessionID string
	ConnectID string
	ErrorCode uint32
	Payload   []byte
}

func (f *frame) hasSequence() bool {
	switch f.Flags & 0b0011 {
	case flagPositiveSequence, flagNegativeSequence:
		return true
	}
	return false
}

func (f *frame) hasEvent() bool {
	return f.Flags&flagWithEvent == flagWithEvent
}

func (f *frame) last() bool {
	switch f.Flags & 0b0011 {
	case flagLastNoSequence, flagNegativeSequence:
		return true
	}
	return false
}

func eventSkipsSessionID(e eventType) bool {
	switch e {
	case eventStartConnection, eventFinishConnection,
		eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	}
	return false
}

func eventHasConnectID(e eventType) bool {
	switch e {
	case eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	}
	return false
}

// gzipThreshold is the request size above which payloads are compressed.
const gzipThreshold = 1024

func newClientRequest(payload []byte) (*frame, error) {
	f := &frame{
		Type:          frameFullClientRequest,
		Flags:         flagNoSequence,
		Serialization: serializationJSON,
		Compression:   compressionNone,
		Payload:       payload,
	}
	if len(payload) > gzipThreshold {
		compressed, err := gzipBytes(payload)
		if err != nil {
			return nil, err
		}
		f.Compression = compressionGzip
		f.Payload = compressed
	}
	return f, nil
}

func encodeFrame(f *frame) []byte {
	var buf bytes.Buffer
	buf.WriteByte(frameVersion<<4 | 0b0001)
	buf.WriteByte(uint8(f.Type)<<4 | uint8(f.Flags))
	buf.WriteByte(uint8(f.Serialization)<<4 | uint8(f.Compression))
	buf.WriteByte(0)

	if f.hasSequence() {
		_ = binary.Write(&buf, binary.BigEndian, f.Sequence)
	}
	if f.hasEvent() {
		_ = binary.Write(&buf, binary.BigEndian, int32(f.Event))
		if !eventSkipsSessionID(f.Event) {
			writeSized(&buf, []byte(f.SessionID))
		}
		if eventHasConnectID(f.Event) {
			writeSized(&buf, []byte(f.ConnectID))
		}
	}
	if f.Type == frameError {
		_ = binary.Write(&buf, binary.BigEndian, f.ErrorCode)
	}
	writeSized(&buf, f.Payload)
	return buf.Bytes()
}

func writeSized(buf *bytes.Buffer, data []byte) {
	_ = binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.Write(data)
}

func decodeFrame(data []byte) (*frame, error) {
	r := bytes.NewReader(data)

	head := make([]byte, 4)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}
	if version := head[0] >> 4; version != frameVersion {
		return nil, fmt.Errorf("unsupported frame version %d", version)
	}
	if extra := int(head[0]&0x0F)*4 - 4; extra > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(extra)); err != nil {
			return nil, fmt.Errorf("read extended header: %w", err)
		}
	}

	f := &frame{
		Type:          frameType(head[1] >> 4),
		Flags:         frameFlags(head[1] & 0x0F),
		Serialization: serialization(head[2] >> 4),
		Compression:   compression(head[2] & 0x0F),
	}

	if f.hasSequence() {
		if err := binary.Read(r, binary.BigEndian, &f.Sequence); err != nil {
			return nil, fmt.Errorf("read sequence: %w", err)
		}
	}

	if f.hasEvent() {
		var event int32
		if err := binary.Read(r, binary.BigEndian, &event); err != nil {
			return nil, fmt.Errorf("read event: %w", err)
		}
		f.Event = eventType(event)

		if !eventSkipsSessionID(f.Event) {
			id, err := readSized(r)
			if err != nil {
				return nil, fmt.Errorf("read session id: %w", err)
			}
			f.SessionID = string(id)
		}
		if eventHasConnectID(f.Event) {
			id, err := readSized(r)
			if err != nil {
				return nil, fmt.Errorf("read connect id: %w", err)
			}
			f.ConnectID = string(id)
		}
	}

	if f.Type == frameError {
		if err := binary.Read(r, binary.BigEndian, &f.ErrorCode); err != nil {
			return nil, fmt.Errorf("read error code: %w", err)
		}
	}

	payload, err := readSized(r)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	f.Payload = payload
	return f, nil
}

func readSized(r *bytes.Reader) ([]byte, error) {
	var size uint32
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return nil, err
	}
	if int64(size) > int64(r.Len()) {
		return nil, fmt.Errorf("size %d exceeds remaining %d bytes", size, r.Len())
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// payload returns the frame payload with compression removed.
func (f *frame) payload() ([]byte, error) {
	switch f.Compression {
	case compressionNone:
		return f.Payload, nil
	case compressionGzip:
		return gunzip(f.Payload)
	default:
		return nil, fmt.Errorf("unsupported compression %d", f.Compression)
	}
}
