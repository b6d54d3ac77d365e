// Copyright (c) 2025 Wayfare
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package backend is the HTTP client for the identity endpoints: login, register,
// logout, token refresh and the current-user lookup. Every failure is returned as a
// typed *errors.E; transport failures are retried with exponential backoff.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"wayfare/cli/internal/auth"
	autherrors "wayfare/cli/internal/errors"
	"wayfare/cli/internal/httperrors"
	"wayfare/cli/internal/logging"
	"wayfare/cli/internal/manifest"
)

const (
	tracerName = "wayfare/cli/internal/backend"
	maxBody    = 1 << 20
)

// API defines the identity operations the session manager depends on.
type API interface {
	Login(ctx context.Context, c auth.Credentials) (*auth.AuthData, error)
	Register(ctx context.Context, r auth.Registration) (*auth.Enrollment, error)
	Logout(ctx context.Context, accessToken string) error
	Refresh(ctx context.Context, refreshToken string) (*auth.AuthData, error)
	GetCurrentUser(ctx context.Context, accessToken string) (*auth.User, error)
}

var (
	_ API          = (*HTTP)(nil)
	_ auth.Backend = (*HTTP)(nil)
)

// Config holds the client settings.
type Config struct {
	BaseURL        string
	Endpoints      manifest.Endpoints
	RequestTimeout time.Duration
	Retry          RetryPolicy
	// DeviceID is the stable installation identifier sent as X-Device-ID.
	DeviceID string
	Version  string
}

// Option customizes an HTTP client.
type Option func(*HTTP)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTP) { h.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *HTTP) { h.log = l }
}

// WithTracerProvider sets the OpenTelemetry provider. The global provider is the default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(h *HTTP) { h.tracer = tp.Tracer(tracerName) }
}

// WithClock overrides time.Now for expiry fallbacks.
func WithClock(now func() time.Time) Option {
	return func(h *HTTP) { h.now = now }
}

// HTTP implements API over the REST endpoints.
type HTTP struct {
	baseURL   string
	endpoints manifest.Endpoints
	timeout   time.Duration
	retry     RetryPolicy
	deviceID  string
	userAgent string

	client *http.Client
	log    *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// New creates the client. Zero config values fall back to defaults.
func New(cfg Config, opts ...Option) *HTTP {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	h := &HTTP{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		endpoints: cfg.Endpoints.WithDefaults(),
		timeout:   cfg.RequestTimeout,
		retry:     cfg.Retry.normalized(),
		deviceID:  cfg.DeviceID,
		userAgent: "wayfare-cli/" + cfg.Version,
		client:    &http.Client{},
		log:       logging.Discard(),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// request describes one logical call.
type request struct {
	op     string
	method string
	path   string
	bearer string
	body   any
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r *response) ok() bool { return r.status >= 200 && r.status < 300 }

// call performs r with retries and tracing. A non-nil response means the server
// answered; its status is not interpreted here.
func (h *HTTP) call(ctx context.Context, r request) (*response, error) {
	ctx, span := h.tracer.Start(ctx, "backend."+r.op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", r.method),
			attribute.String("url.path", r.path),
		))
	defer span.End()

	var payload []byte
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return nil, autherrors.Wrap(autherrors.BadRequest, "Could not encode request", err)
		}
		payload = b
	}

	var attempts atomic.Int32
	resp, err := run(ctx, h.retry, func() (*response, error) {
		n := attempts.Add(1)
		return h.attempt(ctx, r, payload, int(n))
	}, func(err error, d time.Duration) {
		h.log.Debug("retrying request", "op", r.op, "after", d, "error", logging.Mask(err.Error()))
	})

	span.SetAttributes(attribute.Int("wayfare.attempts", int(attempts.Load())))
	if err != nil {
		if ctx.Err() != nil && !autherrors.Is(err, autherrors.NetworkError) && !autherrors.Is(err, autherrors.RequestTimeout) {
			err = autherrors.Wrap(autherrors.NetworkError, "The request was cancelled.", ctx.Err())
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, autherrors.MessageOf(err))
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.status))
	if resp.status >= 500 {
		span.SetStatus(codes.Error, http.StatusText(resp.status))
	}
	return resp, nil
}

// attempt sends one request under its own deadline. Only transport failures are
// returned as retryable.
func (h *HTTP) attempt(ctx context.Context, r request, payload []byte, n int) (*response, error) {
	actx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(actx, r.method, h.baseURL+r.path, body)
	if err != nil {
		return nil, autherrors.Wrap(autherrors.BadRequest, "Invalid request", err)
	}
	h.setStandardHeaders(req)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.bearer)
	}

	h.log.Debug("backend request", "op", r.op, "attempt", n, "method", r.method, "path", r.path)
	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, h.transportError(ctx, actx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, h.transportError(ctx, actx, err)
	}
	h.log.Debug("backend response", "op", r.op, "status", resp.StatusCode, "elapsed", time.Since(start))
	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

// transportError classifies a failed round trip: caller cancellation and the
// per-attempt deadline stop retrying, anything else is retried.
func (h *HTTP) transportError(ctx, actx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return autherrors.Wrap(autherrors.NetworkError, "The request was cancelled.", err)
	case errors.Is(actx.Err(), context.DeadlineExceeded) || httperrors.Classify(err) == httperrors.ClassTimeout:
		return autherrors.Wrap(autherrors.RequestTimeout,
			fmt.Sprintf("The server did not respond within %s.", h.timeout), err)
	}
	h.log.Debug("transport failure", "class", httperrors.Classify(err).String(), "error", logging.Mask(err.Error()))
	return &retryable{err: autherrors.Wrap(autherrors.NetworkError, httperrors.Describe(err), err)}
}

func (h *HTTP) setStandardHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if h.deviceID != "" {
		req.Header.Set("X-Device-ID", h.deviceID)
	}
}
