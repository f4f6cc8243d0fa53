package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/stagewire/dispatch/pkg/codec"
	"github.com/stagewire/dispatch/pkg/common"
	"github.com/stagewire/dispatch/pkg/store"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

// RateLimitConfig defines a fixed-window quota: at most Limit operations
// per subject per Window. Routes that share a Scope share the quota.
//
// The window resets entirely at expiry rather than sliding, so a client
// can legally issue 2×Limit requests across a window boundary. Callers
// needing smoother limiting should compose multiple shorter windows.
type RateLimitConfig struct {
	// Scope is the key namespace for this quota.
	Scope string

	// Limit is the maximum number of requests per window.
	Limit int

	// Window is the quota window length.
	Window time.Duration

	// ExceededHandler, when set, produces the response for rejected
	// requests instead of the default 429 envelope.
	ExceededHandler http.Handler
}

func (c *RateLimitConfig) key(subjectID string) string {
	return c.Scope + ":" + subjectID
}

// admission is the outcome of one quota check.
type admission struct {
	allowed   bool
	remaining int
	reset     time.Duration
}

// RateLimit enforces a per-subject quota against the shared counter store.
// It requires a resolved subject: an anonymous request is rejected with an
// authentication-required response, not a rate-limit one. When the store
// is unreachable the middleware degrades to a per-process leaky-bucket
// limiter scaled to the same rate, instead of failing open.
func RateLimit(config *RateLimitConfig, counters store.CounterStore, logger *zap.Logger) common.Middleware {
	local := newLocalLimiter(config)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, ok := common.SubjectID(r)
			if !ok {
				_ = codec.WriteError(w, r, common.Unauthenticated("authentication required"))
				return
			}

			var (
				res admission
				err error
			)
			if counters != nil {
				res, err = admit(r.Context(), counters, config, config.key(subject))
			}
			if counters == nil || err != nil {
				if err != nil {
					logger.Warn("Counter store unavailable, using local rate limiter",
						zap.String("trace_id", common.TraceID(r)),
						zap.String("scope", config.Scope),
						zap.Error(err),
					)
				}
				res = local.admit(config.Window)
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(res.reset).Unix(), 10))

			if !res.allowed {
				w.Header().Set("Retry-After", strconv.FormatInt(int64(res.reset.Seconds()), 10))
				logger.Warn("Rate limit exceeded",
					zap.String("trace_id", common.TraceID(r)),
					zap.String("scope", config.Scope),
					zap.String("subject_id", subject),
					zap.Int("limit", config.Limit),
				)

				if config.ExceededHandler != nil {
					config.ExceededHandler.ServeHTTP(w, r)
				} else {
					_ = codec.WriteError(w, r, common.RateLimited("rate limit exceeded"))
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// admit consumes one quota slot. Stores exposing an atomic increment get a
// race-free admission decided on the post-increment value. Plain stores
// fall back to read-then-write: under concurrent requests from one subject
// two requests can both read the same count and both be admitted, so the
// limit is soft by up to the degree of concurrency.
func admit(ctx context.Context, counters store.CounterStore, config *RateLimitConfig, key string) (admission, error) {
	if inc, ok := counters.(store.AtomicIncrementer); ok {
		count, err := inc.IncrementWithExpiry(ctx, key, 1, config.Window)
		if err != nil {
			return admission{}, err
		}
		return admission{
			allowed:   count <= int64(config.Limit),
			remaining: clampRemaining(config.Limit, count),
			reset:     resetIn(ctx, counters, key, config.Window),
		}, nil
	}

	count, err := counters.Get(ctx, key)
	switch {
	case store.IsKeyNotFound(err):
		if err := counters.Set(ctx, key, 1, config.Window); err != nil {
			return admission{}, err
		}
		return admission{allowed: true, remaining: clampRemaining(config.Limit, 1), reset: config.Window}, nil
	case err != nil:
		return admission{}, err
	}

	reset := resetIn(ctx, counters, key, config.Window)
	if count >= int64(config.Limit) {
		return admission{allowed: false, remaining: 0, reset: reset}, nil
	}

	count++
	// Re-set with the remaining window so the increment does not extend it.
	if err := counters.Set(ctx, key, count, reset); err != nil {
		return admission{}, err
	}
	return admission{allowed: true, remaining: clampRemaining(config.Limit, count), reset: reset}, nil
}

// Remaining reports the quota left for a subject without consuming any,
// for usage-reporting endpoints: max(0, limit−count) and the window's
// reset time. A subject with no active window has the full limit left.
func Remaining(ctx context.Context, counters store.CounterStore, config *RateLimitConfig, subjectID string) (int, time.Duration, error) {
	key := config.key(subjectID)

	count, err := counters.Get(ctx, key)
	if store.IsKeyNotFound(err) {
		return config.Limit, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}

	return clampRemaining(config.Limit, count), resetIn(ctx, counters, key, config.Window), nil
}

func clampRemaining(limit int, count int64) int {
	remaining := limit - int(count)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// resetIn reports the active window's remaining lifetime, falling back to
// the full window when the store cannot say.
func resetIn(ctx context.Context, counters store.CounterStore, key string, window time.Duration) time.Duration {
	ttl, err := counters.TTL(ctx, key)
	if err != nil || ttl <= 0 {
		return window
	}
	return ttl
}

// localLimiter is the degraded-mode limiter used while the counter store
// is unreachable. It smooths requests to limit/window per process and
// scope; it cannot distinguish subjects or report a remaining count.
type localLimiter struct {
	limiter ratelimit.Limiter
}

func newLocalLimiter(config *RateLimitConfig) *localLimiter {
	rps := 1
	if config.Window > 0 {
		if perSecond := int(float64(config.Limit) / config.Window.Seconds()); perSecond > 1 {
			rps = perSecond
		}
	}
	return &localLimiter{limiter: ratelimit.New(rps)}
}

// admit takes from the leaky bucket and rejects requests that had to wait
// more than a second for their permit.
func (l *localLimiter) admit(window time.Duration) admission {
	now := time.Now()
	next := l.limiter.Take()
	return admission{
		allowed: next.Sub(now) <= time.Second,
		reset:   window,
	}
}
