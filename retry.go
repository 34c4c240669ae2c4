package courier

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net"
	"time"
)

// RetryPolicy bounds retries of one external call site.
type RetryPolicy struct {
	MaxAttempts    int           // total attempts including the first; < 1 means 1
	BaseDelay      time.Duration // delay before the second attempt, doubled each time
	MaxDelay       time.Duration // cap on the backoff delay; 0 = uncapped
	AttemptTimeout time.Duration // per-attempt deadline; 0 = none
}

// DefaultRetryPolicy returns three attempts with 500ms base backoff capped
// at 4s and a 30s deadline per attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       4 * time.Second,
		AttemptTimeout: 30 * time.Second,
	}
}

// retryProvider wraps a Provider and retries transient failures with
// exponential backoff.
type retryProvider struct {
	inner  Provider
	policy RetryPolicy
	logger *slog.Logger
}

// RetryOption configures a retryProvider.
type RetryOption func(*retryProvider)

// RetryMaxAttempts sets the maximum number of attempts (default: 3).
func RetryMaxAttempts(n int) RetryOption {
	return func(r *retryProvider) { r.policy.MaxAttempts = n }
}

// RetryBaseDelay sets the initial backoff delay before the second attempt
// (default: 500ms). Each subsequent delay doubles.
func RetryBaseDelay(d time.Duration) RetryOption {
	return func(r *retryProvider) { r.policy.BaseDelay = d }
}

// RetryMaxDelay caps a single backoff delay (default: 4s). A server
// Retry-After longer than the cap still wins.
func RetryMaxDelay(d time.Duration) RetryOption {
	return func(r *retryProvider) { r.policy.MaxDelay = d }
}

// RetryAttemptTimeout bounds each individual attempt (default: 30s). An
// attempt that runs out of time counts as transient and is retried.
func RetryAttemptTimeout(d time.Duration) RetryOption {
	return func(r *retryProvider) { r.policy.AttemptTimeout = d }
}

// RetryLogger sets the structured logger for retry events. Retries log at
// WARN, exhaustion at ERROR.
func RetryLogger(l *slog.Logger) RetryOption {
	return func(r *retryProvider) { r.logger = l }
}

// WithRetry wraps p with automatic retry on transient errors: HTTP 429 and
// 5xx, per-attempt timeouts, and network timeouts.
//
//	llm = courier.WithRetry(gemini.New(apiKey, model))
//	llm = courier.WithRetry(gemini.New(apiKey, model), courier.RetryMaxAttempts(2))
func WithRetry(p Provider, opts ...RetryOption) Provider {
	r := &retryProvider{inner: p, policy: DefaultRetryPolicy()}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = NopLogger
	}
	return r
}

// Name delegates to the inner provider.
func (r *retryProvider) Name() string { return r.inner.Name() }

// Chat implements Provider with retry.
func (r *retryProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	return Retry(ctx, r.policy, r.inner.Name(), r.logger, func(ctx context.Context) (ChatResponse, error) {
		return r.inner.Chat(ctx, req)
	})
}

// Retry calls fn until it succeeds, fails with a non-transient error, the
// attempts run out, or ctx is done. Each attempt receives its own context
// bounded by policy.AttemptTimeout.
func Retry[T any](ctx context.Context, policy RetryPolicy, name string, logger *slog.Logger, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if logger == nil {
		logger = NopLogger
	}
	attempts := max(policy.MaxAttempts, 1)
	var last error
	for i := 0; i < attempts; i++ {
		actx, cancel := withAttemptTimeout(ctx, policy.AttemptTimeout)
		result, err := fn(actx)
		cancel()
		if err == nil {
			return result, nil
		}
		// The caller gave up; whatever the attempt said is moot.
		if ctx.Err() != nil {
			return zero, err
		}
		if !IsTransient(err) {
			return zero, err
		}
		last = err
		logger.Warn("retrying transient error",
			"call", name,
			"status", statusOf(err),
			"attempt", i+1,
			"max_attempts", attempts,
			"error", err)
		if i < attempts-1 {
			timer := time.NewTimer(retryDelay(policy, i, err))
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}
	logger.Error("all retry attempts exhausted",
		"call", name,
		"attempts", attempts,
		"error", last)
	return zero, last
}

func withAttemptTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// IsTransient reports whether err is worth retrying: HTTP 429 or 5xx, an
// expired attempt deadline, or a network timeout.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var he *ErrHTTP
	if errors.As(err, &he) {
		return he.Status == 429 || he.Status >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// statusOf extracts the HTTP status code from an ErrHTTP, or 0.
func statusOf(err error) int {
	var e *ErrHTTP
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// retryAfterOf extracts the Retry-After duration from an ErrHTTP, or 0.
func retryAfterOf(err error) time.Duration {
	var e *ErrHTTP
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// retryDelay is max(backoff, Retry-After).
func retryDelay(p RetryPolicy, i int, err error) time.Duration {
	backoff := retryBackoff(p.BaseDelay, p.MaxDelay, i)
	if ra := retryAfterOf(err); ra > backoff {
		return ra
	}
	return backoff
}

// retryBackoff returns the delay for retry i (0-indexed):
// base * 2^i plus up to 50% jitter, capped at maxDelay when set.
func retryBackoff(base, maxDelay time.Duration, i int) time.Duration {
	if base <= 0 {
		return 0
	}
	exp := base * (1 << i)
	if maxDelay > 0 && exp > maxDelay {
		exp = maxDelay
	}
	d := exp + time.Duration(rand.Int63n(int64(exp)/2+1))
	if maxDelay > 0 && d > maxDelay {
		d = maxDelay
	}
	return d
}

var _ Provider = (*retryProvider)(nil)
