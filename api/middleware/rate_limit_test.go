package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/quickcart/quickcart-backend/pkg/types"
)

type fakeLimiter struct {
	counts map[string]int64
	err    error
}

func (f *fakeLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if f.err != nil {
		return false, 0, f.err
	}
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitBlocksAfterLimit(t *testing.T) {
	limiter := &fakeLimiter{}
	h := RateLimit(NewRateLimitPolicy("checkout", 2, time.Minute), limiter, nil)(okHandler())
	userID := uuid.New()

	var codes []int
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
		req = req.WithContext(WithPrincipal(req.Context(), types.UserPrincipal(userID)))
		last = httptest.NewRecorder()
		h.ServeHTTP(last, req)
		codes = append(codes, last.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "60", last.Header().Get("Retry-After"))
	assert.Contains(t, limiter.counts, "checkout:user:"+userID.String())
}

func TestRateLimitFallsBackToClientIP(t *testing.T) {
	limiter := &fakeLimiter{}
	h := RateLimit(NewRateLimitPolicy("checkout", 5, time.Minute), limiter, nil)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Contains(t, limiter.counts, "checkout:ip:10.0.0.1")
}

func TestRateLimitFailsOpen(t *testing.T) {
	h := RateLimit(NewRateLimitPolicy("checkout", 1, time.Minute), &fakeLimiter{err: errors.New("redis down")}, nil)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitDisabledPolicy(t *testing.T) {
	limiter := &fakeLimiter{}
	h := RateLimit(NewRateLimitPolicy("checkout", 0, time.Minute), limiter, nil)(okHandler())

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil))
	assert.Empty(t, limiter.counts)
}
