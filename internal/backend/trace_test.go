package backend

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"wayfare/cli/internal/testkit/identity"
)

func recordingClient(t *testing.T, baseURL string) (*HTTP, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	c := newClient(t, baseURL)
	WithTracerProvider(tp)(c)
	return c, rec
}

func spanAttr(s sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range s.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracing_RetriedLogin(t *testing.T) {
	srv := identity.Start(t)
	srv.AddUser("a@x.com", "Secret1!")
	srv.Fail(identity.EndpointLogin, identity.Failure{Drop: true})
	c, rec := recordingClient(t, srv.URL())

	_, err := c.Login(context.Background(), creds())
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, "backend.Login", s.Name())
	assert.Equal(t, trace.SpanKindClient, s.SpanKind())
	attempts, ok := spanAttr(s, "wayfare.attempts")
	require.True(t, ok)
	assert.Equal(t, int64(2), attempts.AsInt64())
	status, ok := spanAttr(s, "http.status_code")
	require.True(t, ok)
	assert.Equal(t, int64(http.StatusOK), status.AsInt64())
	assert.Equal(t, codes.Unset, s.Status().Code)
}

func TestTracing_FailedCallsMarkError(t *testing.T) {
	t.Run("transport exhausted", func(t *testing.T) {
		srv := identity.Start(t)
		for i := 0; i < 5; i++ {
			srv.Fail(identity.EndpointLogin, identity.Failure{Drop: true})
		}
		c, rec := recordingClient(t, srv.URL())

		_, err := c.Login(context.Background(), creds())
		require.Error(t, err)

		spans := rec.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status().Code)
		attempts, _ := spanAttr(spans[0], "wayfare.attempts")
		assert.Equal(t, int64(fastRetry.MaxAttempts+1), attempts.AsInt64())
		assert.NotEmpty(t, spans[0].Events(), "error is recorded on the span")
	})

	t.Run("server error", func(t *testing.T) {
		srv := identity.Start(t)
		srv.Fail(identity.EndpointLogin, identity.Failure{Status: http.StatusServiceUnavailable, Body: `{}`})
		c, rec := recordingClient(t, srv.URL())

		_, err := c.Login(context.Background(), creds())
		require.Error(t, err)

		spans := rec.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status().Code)
		attempts, _ := spanAttr(spans[0], "wayfare.attempts")
		assert.Equal(t, int64(1), attempts.AsInt64())
	})
}
