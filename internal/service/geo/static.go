package geo

import (
	"context"
	"time"

	geomodel "github.com/jansunwai/assistant/internal/model/geo"
)

// StaticProvider always reports the same coordinates. Terminal sessions use
// it since they have no positioning hardware.
type StaticProvider struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
}

// Position returns a fresh snapshot of the configured coordinates.
func (p StaticProvider) Position(ctx context.Context, _ geomodel.Options) (geomodel.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return geomodel.Snapshot{}, err
	}
	return geomodel.Snapshot{
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Accuracy:  p.Accuracy,
		Timestamp: time.Now(),
	}, nil
}

// DeniedProvider refuses every request. It stands in when no location
// source is configured.
type DeniedProvider struct{}

// Position always fails with permission-denied.
func (DeniedProvider) Position(context.Context, geomodel.Options) (geomodel.Snapshot, error) {
	return geomodel.Snapshot{}, &geomodel.Error{Code: geomodel.PermissionDenied}
}
