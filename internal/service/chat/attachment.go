package chat

import (
	"context"
	"encoding/base64"
	"mime"
	"net/http"
	"strings"
	"time"

	chatmodel "github.com/jansunwai/assistant/internal/model/chat"
)

// Attach validates an image and appends it as a user message. One synthetic
// acknowledgment follows after the configured delay; images are not sent to
// the backend.
func (s *Session) Attach(ctx context.Context, name, mimeType string, data []byte) (chatmodel.Message, error) {
	if err := ctx.Err(); err != nil {
		return chatmodel.Message{}, err
	}
	if int64(len(data)) >= s.timing.MaxImageBytes {
		return chatmodel.Message{}, ErrImageTooLarge
	}

	mediaType, ok := imageType(mimeType, data)
	if !ok {
		return chatmodel.Message{}, ErrNotImage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended || !s.state.Accepting() {
		return chatmodel.Message{}, ErrSessionClosed
	}

	msg := chatmodel.Message{
		Sender: chatmodel.SenderUser,
		Image: &chatmodel.Attachment{
			DataURL:  "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data),
			Name:     name,
			MIMEType: mediaType,
			Size:     int64(len(data)),
		},
	}
	s.appendLocked(msg)
	msg = s.messages[len(s.messages)-1].Clone()

	s.wg.Add(1)
	go s.acknowledgeImage()

	return msg, nil
}

func (s *Session) acknowledgeImage() {
	defer s.wg.Done()

	t := time.NewTimer(s.timing.ImageAckDelay)
	defer t.Stop()

	select {
	case <-t.C:
		s.appendBot(textImageReceived)
	case <-s.ctx.Done():
	}
}

// imageType returns the media type of an image upload. Undeclared or
// generic types are sniffed from the content.
func imageType(declared string, data []byte) (string, bool) {
	declared = strings.TrimSpace(declared)
	if declared == "" || strings.HasPrefix(declared, "application/octet-stream") {
		declared = http.DetectContentType(data)
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return "", false
	}
	return mediaType, strings.HasPrefix(mediaType, "image/")
}
