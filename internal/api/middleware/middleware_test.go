package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formbricks/forms/internal/observability"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "valid key", header: "Bearer secret", want: http.StatusOK},
		{name: "scheme is case insensitive", header: "bearer secret", want: http.StatusOK},
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic secret", want: http.StatusUnauthorized},
		{name: "wrong key", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "empty key", header: "Bearer ", want: http.StatusUnauthorized},
	}

	handler := Auth("secret")(okHandler())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/v1/templates", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string

	handler := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(observability.RequestIDKey).(string)
	}))

	t.Run("propagates client id", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/health", nil)
		r.Header.Set(requestIDHeader, "abc-123")

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, "abc-123", seen)
		assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
	})

	t.Run("generates id", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, w.Header().Get(requestIDHeader))
	})
}

type countingRecorder struct {
	bodyTooLarge atomic.Int32
	rateLimited  atomic.Int32
}

func (c *countingRecorder) RecordRequestBodyTooLarge(context.Context) { c.bodyTooLarge.Add(1) }
func (c *countingRecorder) RecordRateLimited(context.Context)         { c.rateLimited.Add(1) }

func TestMaxBody(t *testing.T) {
	readAll := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusBadRequest)

			return
		}

		w.WriteHeader(http.StatusNoContent)
	})

	recorder := &countingRecorder{}
	handler := MaxBody(8, recorder)(readAll)

	t.Run("within limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}")))

		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("over limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"answers":{}}`)))

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, int32(1), recorder.bodyTooLarge.Load())
	})
}

func TestRateLimit(t *testing.T) {
	recorder := &countingRecorder{}
	handler := RateLimit(NewClientLimiter(0.001, 2), recorder)(okHandler())

	request := func(addr string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/public/sessions", nil)
		r.RemoteAddr = addr

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		return w
	}

	assert.Equal(t, http.StatusOK, request("10.0.0.1:5000").Code)
	assert.Equal(t, http.StatusOK, request("10.0.0.1:5001").Code)

	limited := request("10.0.0.1:5002")
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))
	assert.Equal(t, int32(1), recorder.rateLimited.Load())

	assert.Equal(t, http.StatusOK, request("10.0.0.2:5000").Code, "other clients keep their own budget")
}

func TestClientLimiter_RejectedRequestDoesNotConsume(t *testing.T) {
	limiter := NewClientLimiter(0.001, 1)

	ok, _ := limiter.Reserve("a")
	require.True(t, ok)

	for range 3 {
		ok, wait := limiter.Reserve("a")
		assert.False(t, ok)
		assert.Positive(t, wait)
	}
}

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/v1/templates/0190c4a2-0000-7000-8000-000000000001", "/v1/templates/{id}"},
		{"/public/sessions/0190c4a2-0000-7000-8000-000000000001/answers", "/public/sessions/{id}/answers"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeRoute(tt.path))
	}
}

func TestStatusToClass(t *testing.T) {
	assert.Equal(t, "2xx", statusToClass(204))
	assert.Equal(t, "4xx", statusToClass(429))
	assert.Equal(t, "5xx", statusToClass(503))
	assert.Equal(t, "unknown", statusToClass(0))
}

func TestLogging_PassesThrough(t *testing.T) {
	handler := Logging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/templates", nil))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}
