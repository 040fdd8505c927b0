package geo

import (
	"fmt"
	"time"
)

// Snapshot is a single position reading.
type Snapshot struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

// Options are the hints passed to a position provider.
type Options struct {
	HighAccuracy bool          `json:"enableHighAccuracy"`
	Timeout      time.Duration `json:"-"`
	MaximumAge   time.Duration `json:"-"`
}

// ErrorCode classifies geolocation failures.
type ErrorCode string

const (
	PermissionDenied    ErrorCode = "permission-denied"
	PositionUnavailable ErrorCode = "position-unavailable"
	Timeout             ErrorCode = "timeout"
	Unknown             ErrorCode = "unknown"
)

// ParseErrorCode maps a provider supplied code to a known ErrorCode.
func ParseErrorCode(raw string) ErrorCode {
	switch ErrorCode(raw) {
	case PermissionDenied, PositionUnavailable, Timeout:
		return ErrorCode(raw)
	}
	// numeric codes of the browser Geolocation API
	switch raw {
	case "1":
		return PermissionDenied
	case "2":
		return PositionUnavailable
	case "3":
		return Timeout
	}
	return Unknown
}

// Error is a coded geolocation failure.
type Error struct {
	Code ErrorCode
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("geolocation %s: %v", e.Code, e.Err)
	}
	return "geolocation " + string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}
