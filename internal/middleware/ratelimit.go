package middleware

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/kestrelai/agentkit/internal/errkind"
)

// RateLimitMiddleware enforces a per-minute admission control on
// intercepted calls, backed by golang.org/x/time/rate configured for a
// steady rate of perMinute events with a small burst allowance.
type RateLimitMiddleware struct {
	Base
	limiter   *rate.Limiter
	perMinute int
	burst     int
	// Blocking selects between waiting for an allowance (spec: "blocks
	// until allowed") and raising RateLimitError immediately.
	Blocking bool
}

// NewRateLimitMiddleware returns a middleware allowing perMinute calls per
// rolling minute, with burst allowed to smooth bursts up to burst calls.
func NewRateLimitMiddleware(perMinute int, burst int) *RateLimitMiddleware {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitMiddleware{
		limiter:   rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst),
		perMinute: perMinute,
		burst:     burst,
		Blocking:  true,
	}
}

func (m *RateLimitMiddleware) Name() string { return "rate_limit" }

// PerMinute returns the configured steady rate.
func (m *RateLimitMiddleware) PerMinute() int { return m.perMinute }

// Burst returns the configured burst allowance.
func (m *RateLimitMiddleware) Burst() int { return m.burst }

func (m *RateLimitMiddleware) ProcessRequest(ctx *Context) error {
	if m.Blocking {
		if err := m.limiter.Wait(context.Background()); err != nil {
			return errkind.Wrap(errkind.RateLimit, err, fmt.Sprintf("rate limit wait for %s", ctx.Operation))
		}
		return nil
	}
	if !m.limiter.Allow() {
		return errkind.New(errkind.RateLimit, fmt.Sprintf("rate limit exceeded for %s", ctx.Operation))
	}
	return nil
}
