package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/formbricks/forms/internal/api/response"
)

const (
	// clients tracked at once; the least recently seen is forgotten first
	maxTrackedClients = 10000
	clientIdleTTL     = 10 * time.Minute
)

// RateLimitedRecorder records requests rejected by RateLimit. Pass nil when metrics are disabled.
type RateLimitedRecorder interface {
	RecordRateLimited(ctx context.Context)
}

// ClientLimiter hands out one token bucket per client key.
type ClientLimiter struct {
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	clients *expirable.LRU[string, *rate.Limiter]
}

// NewClientLimiter allows each client perSecond requests with the given burst.
func NewClientLimiter(perSecond float64, burst int) *ClientLimiter {
	return &ClientLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		clients: expirable.NewLRU[string, *rate.Limiter](maxTrackedClients, nil, clientIdleTTL),
	}
}

// Reserve takes a token for key. When none is available it returns false and
// how long until one is.
func (c *ClientLimiter) Reserve(key string) (bool, time.Duration) {
	c.mu.Lock()

	limiter, ok := c.clients.Get(key)
	if !ok {
		limiter = rate.NewLimiter(c.limit, c.burst)
		c.clients.Add(key, limiter)
	}

	c.mu.Unlock()

	now := time.Now()

	r := limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}

	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)

		return false, delay
	}

	return true, 0
}

// RateLimit rejects requests over the client's budget with 429 and a Retry-After header.
// Clients are keyed by remote IP.
func RateLimit(limiter *ClientLimiter, recorder RateLimitedRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := limiter.Reserve(clientIP(r))
			if !ok {
				if recorder != nil {
					recorder.RecordRateLimited(r.Context())
				}

				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				response.RespondTooManyRequests(w, "rate limit exceeded")

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
