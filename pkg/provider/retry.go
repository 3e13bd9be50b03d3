package provider

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	searchRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "searchagg_upstream_retries_total",
		Help: "Total number of retry attempts by error kind",
	}, []string{"kind"})

	searchRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "searchagg_upstream_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error kind",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30},
	}, []string{"kind"})

	searchRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "searchagg_upstream_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error kind",
	}, []string{"kind"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// retryWithBackoff executes fn with exponential backoff retry logic.
// Only retryable SearchError kinds are retried; everything else is returned
// immediately. Respects context cancellation and adds jitter to backoff.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, logger zerolog.Logger, fn func() error) error {
	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Int("attempt", attempt).
					Msg("Upstream call succeeded after retry")
			}
			return nil
		}

		lastErr = err

		var searchErr *SearchError
		if !errors.As(err, &searchErr) || !shouldRetry(searchErr) {
			return lastErr
		}

		// Last attempt, don't wait
		if attempt >= cfg.MaxAttempts {
			break
		}

		kind := string(searchErr.Kind)
		searchRetriesTotal.WithLabelValues(kind).Inc()

		// Add jitter (±20% randomness)
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		searchRetryBackoffSeconds.WithLabelValues(kind).Observe(jitter.Seconds())

		logger.Debug().
			Str("kind", kind).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying upstream call after backoff")

		select {
		case <-ctx.Done():
			logger.Warn().
				Str("kind", kind).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(jitter):
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	var searchErr *SearchError
	if errors.As(lastErr, &searchErr) {
		searchRetryExhaustedTotal.WithLabelValues(string(searchErr.Kind)).Inc()
	}
	logger.Warn().
		Int("max_attempts", cfg.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, cfg.MaxAttempts, lastErr)
}
