package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	intakemodel "github.com/jansunwai/assistant/internal/model/intake"
	"github.com/jansunwai/assistant/internal/service/auth"
)

const maxResponseBytes = 1 << 20

// Submitter sends complaint text to the backend.
type Submitter interface {
	Submit(ctx context.Context, creds auth.Credentials, req intakemodel.Request) (intakemodel.Response, error)
}

// StatusError is returned for non-2xx answers.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("intake endpoint returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("intake endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// Client calls the complaint-intake endpoint. Requests are never retried:
// the endpoint files complaints, so a repeated call could register twice.
type Client struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
	tracer     trace.Tracer
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient builds a client for endpoint with a per-request timeout.
func NewClient(endpoint string, timeout time.Duration, logger *zap.Logger, opts ...Option) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("intake endpoint is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	c := &Client{
		endpoint:   endpoint,
		timeout:    timeout,
		httpClient: &http.Client{},
		logger:     logger.Named("intake"),
		tracer:     otel.Tracer("github.com/jansunwai/assistant/internal/service/intake"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Submit posts req and decodes the typed answer.
func (c *Client) Submit(ctx context.Context, creds auth.Credentials, req intakemodel.Request) (intakemodel.Response, error) {
	ctx, span := c.tracer.Start(ctx, "intake.Submit", trace.WithAttributes(
		attribute.Bool("intake.with_coordinates", req.HasCoordinates()),
	))
	defer span.End()

	resp, err := c.submit(ctx, creds, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("intake.kind", resp.Kind()))
	return resp, nil
}

func (c *Client) submit(ctx context.Context, creds auth.Credentials, req intakemodel.Request) (intakemodel.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode intake request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build intake request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	creds.Apply(httpReq)

	started := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call intake endpoint: %w", err)
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read intake response: %w", err)
	}

	c.logger.Debug("intake response",
		zap.Int("status", httpResp.StatusCode),
		zap.Duration("elapsed", time.Since(started)),
		zap.Bool("with_coordinates", req.HasCoordinates()),
	)

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: httpResp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	return intakemodel.Decode(payload)
}
