package chat

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session is closed")
	ErrEmptyMessage    = errors.New("message is empty")
	ErrAuthRequired    = errors.New("sign in required")
	ErrImageTooLarge   = errors.New("image must be smaller than 5 MB")
	ErrNotImage        = errors.New("file is not an image")
)
