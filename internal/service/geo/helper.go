package geo

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	geomodel "github.com/jansunwai/assistant/internal/model/geo"
)

// Provider is the platform positioning capability.
type Provider interface {
	Position(ctx context.Context, opts geomodel.Options) (geomodel.Snapshot, error)
}

// DefaultOptions are the acquisition hints used by the chat widget.
func DefaultOptions() geomodel.Options {
	return geomodel.Options{
		HighAccuracy: true,
		Timeout:      15 * time.Second,
		MaximumAge:   5 * time.Minute,
	}
}

// Helper performs single-shot location acquisition. It neither caches nor
// retries; callers own both decisions.
type Helper struct {
	provider Provider
	opts     geomodel.Options
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewHelper wraps provider. Zero option fields fall back to DefaultOptions.
func NewHelper(provider Provider, opts geomodel.Options, logger *zap.Logger) *Helper {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaximumAge <= 0 {
		opts.MaximumAge = def.MaximumAge
	}
	opts.HighAccuracy = true
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Helper{
		provider: provider,
		opts:     opts,
		logger:   logger.Named("geo"),
		tracer:   otel.Tracer("github.com/jansunwai/assistant/internal/service/geo"),
		now:      time.Now,
	}
}

// Options returns the hints passed to the provider.
func (h *Helper) Options() geomodel.Options {
	return h.opts
}

// Acquire requests one position fix. Every failure is a *geo.Error.
func (h *Helper) Acquire(ctx context.Context) (geomodel.Snapshot, error) {
	ctx, span := h.tracer.Start(ctx, "geo.Acquire")
	defer span.End()

	snap, err := h.acquire(ctx)
	if err != nil {
		var geoErr *geomodel.Error
		if errors.As(err, &geoErr) {
			span.SetAttributes(attribute.String("geo.error_code", string(geoErr.Code)))
		}
		span.SetStatus(codes.Error, err.Error())
		h.logger.Info("location acquisition failed", zap.Error(err))
		return geomodel.Snapshot{}, err
	}
	span.SetAttributes(attribute.Float64("geo.accuracy", snap.Accuracy))
	return snap, nil
}

func (h *Helper) acquire(ctx context.Context) (geomodel.Snapshot, error) {
	if h.provider == nil {
		return geomodel.Snapshot{}, &geomodel.Error{Code: geomodel.PositionUnavailable}
	}

	ctx, cancel := context.WithTimeout(ctx, h.opts.Timeout)
	defer cancel()

	snap, err := h.provider.Position(ctx, h.opts)
	if err != nil {
		return geomodel.Snapshot{}, classify(ctx, err)
	}
	if ctx.Err() != nil {
		return geomodel.Snapshot{}, classify(ctx, ctx.Err())
	}

	if snap.Timestamp.IsZero() {
		snap.Timestamp = h.now()
	}
	if age := h.now().Sub(snap.Timestamp); age > h.opts.MaximumAge {
		return geomodel.Snapshot{}, &geomodel.Error{Code: geomodel.PositionUnavailable, Err: errors.New("cached position too old")}
	}
	return snap, nil
}

func classify(ctx context.Context, err error) error {
	var geoErr *geomodel.Error
	if errors.As(err, &geoErr) {
		return geoErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &geomodel.Error{Code: geomodel.Timeout, Err: err}
	}
	return &geomodel.Error{Code: geomodel.Unknown, Err: err}
}

// Notice returns the user-facing text for a failed opportunistic fetch.
func Notice(err error) string {
	var geoErr *geomodel.Error
	code := geomodel.Unknown
	if errors.As(err, &geoErr) {
		code = geoErr.Code
	}

	switch code {
	case geomodel.PermissionDenied:
		return "📍 Location access was denied. You can still tell me where the problem is in your message."
	case geomodel.PositionUnavailable:
		return "📍 Your location is unavailable right now. Please mention the area or landmark in your message."
	case geomodel.Timeout:
		return "📍 Finding your location took too long. Please mention the area or landmark in your message."
	default:
		return "📍 I couldn't detect your location. Please mention the area or landmark in your message."
	}
}
