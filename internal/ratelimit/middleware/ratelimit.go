// Package middleware limits unauthenticated intake traffic per client IP.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/ratelimit/metrics"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/ratelimit/models"
	dErrors "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain-errors"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/httputil"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/requestcontext"
)

// BucketStore counts requests in a sliding window.
type BucketStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (models.Result, error)
}

type Middleware struct {
	store    BucketStore
	limit    int
	window   time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	disabled bool
}

type Option func(*Middleware)

// WithDisabled turns the limiter into a pass-through.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = mt
	}
}

// New admits at most limit requests per client IP in any window.
func New(store BucketStore, limit int, window time.Duration, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		store:  store,
		limit:  limit,
		window: window,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("intake rate limiting disabled")
	}
	return m
}

// Intake wraps the public intake routes. Store failures fail open.
func (m *Middleware) Intake(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		ip := requestcontext.ClientIP(ctx)
		result, err := m.store.Allow(ctx, models.IntakeKey(ip), m.limit, m.window)
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to check intake rate limit",
				"error", err, "request_id", requestcontext.RequestID(ctx))
			if m.metrics != nil {
				m.metrics.IncrementStoreErrors()
			}
			next.ServeHTTP(w, r)
			return
		}

		addRateLimitHeaders(w, result)
		if !result.Allowed {
			if m.metrics != nil {
				m.metrics.IncrementDenied()
			}
			m.logger.WarnContext(ctx, "intake rate limit exceeded",
				"request_id", requestcontext.RequestID(ctx), "limit", result.Limit)
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter(requestcontext.Now(ctx))))
			httputil.WriteError(w, r, dErrors.New(dErrors.CodeRateLimited, "too many requests, try again later"))
			return
		}
		if m.metrics != nil {
			m.metrics.IncrementAllowed()
		}
		next.ServeHTTP(w, r)
	})
}

func addRateLimitHeaders(w http.ResponseWriter, result models.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
