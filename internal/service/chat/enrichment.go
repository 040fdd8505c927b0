package chat

import (
	intakemodel "github.com/jansunwai/assistant/internal/model/intake"
)

type enrichState int

const (
	enrichIdle enrichState = iota
	enrichAwaitingCoordinates
	enrichResubmitting
	enrichDone
)

func (s enrichState) String() string {
	switch s {
	case enrichIdle:
		return "idle"
	case enrichAwaitingCoordinates:
		return "awaiting_coordinates"
	case enrichResubmitting:
		return "resubmitting"
	case enrichDone:
		return "done"
	}
	return "unknown"
}

// enrichment is the coordinate continuation of one submission round. It
// moves idle -> awaitingCoordinates -> resubmitting -> done exactly once, so
// the original text can never be resubmitted twice.
type enrichment struct {
	state    enrichState
	original intakemodel.Request
}

func newEnrichment(original intakemodel.Request) *enrichment {
	return &enrichment{original: original}
}

// begin starts waiting for coordinates. It reports false when the round was
// already enriched.
func (e *enrichment) begin() bool {
	if e.state != enrichIdle {
		return false
	}
	e.state = enrichAwaitingCoordinates
	return true
}

// resubmit returns the original request carrying the coordinates.
func (e *enrichment) resubmit(lat, lng float64) (intakemodel.Request, bool) {
	if e.state != enrichAwaitingCoordinates {
		return intakemodel.Request{}, false
	}
	e.state = enrichResubmitting
	return e.original.WithCoordinates(lat, lng), true
}

func (e *enrichment) finish() {
	e.state = enrichDone
}
