package courier

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit caps a provider's throughput. Zero fields are unlimited.
type RateLimit struct {
	RPM int // requests per minute
	// TPM is tokens per minute (input + output). It is a soft limit: the
	// request that overspends completes and later requests wait for the
	// budget to refill.
	TPM int
}

// rateLimitProvider blocks requests until the minute budgets allow them.
type rateLimitProvider struct {
	inner    Provider
	requests *rate.Limiter
	tokens   *rate.Limiter
	tpm      int
}

// WithRateLimit wraps p with proactive rate limiting. Place it inside
// WithRetry so every attempt is counted:
//
//	chatLLM = courier.WithRetry(courier.WithRateLimit(provider, courier.RateLimit{RPM: 15}))
func WithRateLimit(p Provider, lim RateLimit) Provider {
	r := &rateLimitProvider{inner: p, tpm: lim.TPM}
	if lim.RPM > 0 {
		r.requests = rate.NewLimiter(perMinute(lim.RPM), lim.RPM)
	}
	if lim.TPM > 0 {
		r.tokens = rate.NewLimiter(perMinute(lim.TPM), lim.TPM)
	}
	return r
}

func perMinute(n int) rate.Limit {
	return rate.Every(time.Minute / time.Duration(n))
}

func (r *rateLimitProvider) Name() string { return r.inner.Name() }

func (r *rateLimitProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if r.requests != nil {
		if err := r.requests.Wait(ctx); err != nil {
			return ChatResponse{}, err
		}
	}
	if r.tokens != nil {
		// Wait for the bucket to climb out of debt left by earlier responses.
		if err := r.tokens.Wait(ctx); err != nil {
			return ChatResponse{}, err
		}
	}
	resp, err := r.inner.Chat(ctx, req)
	if err == nil {
		r.spend(resp.Usage)
	}
	return resp, err
}

// spend charges the response's tokens against the TPM bucket. The one
// token taken by Wait is already counted.
func (r *rateLimitProvider) spend(u Usage) {
	if r.tokens == nil {
		return
	}
	n := min(u.InputTokens+u.OutputTokens-1, r.tpm)
	if n <= 0 {
		return
	}
	r.tokens.ReserveN(time.Now(), n)
}

var _ Provider = (*rateLimitProvider)(nil)
