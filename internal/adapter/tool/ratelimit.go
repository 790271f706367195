package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"weatherdine/internal/domain"
)

// RateLimitedTool caps how often a tool may hit its upstream API. Calls over
// budget fail with a retryable result and never reach the wrapped tool.
type RateLimitedTool struct {
	domain.Tool
	limiter *rate.Limiter
	now     func() time.Time
}

// WithRateLimit allows perMinute calls per minute, refilled evenly, with a
// full minute's budget available as a burst. perMinute <= 0 returns t as is.
func WithRateLimit(t domain.Tool, perMinute int) domain.Tool {
	if perMinute <= 0 {
		return t
	}
	return &RateLimitedTool{
		Tool:    t,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		now:     time.Now,
	}
}

func (r *RateLimitedTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	if !r.limiter.AllowN(r.now(), 1) {
		msg := fmt.Sprintf("rate limit exceeded for %s (%d calls per minute), try again shortly", r.Name(), r.limiter.Burst())
		return domain.NewToolFailure(msg, true), nil
	}
	return r.Tool.Execute(ctx, params)
}
