// Package retry wraps event delivery with configurable backoff and a
// file-backed dead letter queue for events that never made it out.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

// Func is an operation that can be retried.
type Func func(ctx context.Context) error

// Retryer runs operations with the configured backoff policy.
type Retryer struct {
	config Config
	dlq    *DLQ
}

// New creates a Retryer, opening the DLQ when enabled.
func New(config Config) (*Retryer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}

	var dlq *DLQ
	if config.DLQ.Enabled {
		var err error
		dlq, err = NewDLQ(config.DLQ)
		if err != nil {
			return nil, fmt.Errorf("failed to create DLQ: %w", err)
		}
	}
	return &Retryer{config: config, dlq: dlq}, nil
}

// Do runs fn with retries.
func (r *Retryer) Do(ctx context.Context, fn Func) error {
	return r.do(ctx, fn, nil)
}

// DoWithData runs fn with retries; data lands in the DLQ if all attempts
// fail. For event delivery, data is the event envelope.
func (r *Retryer) DoWithData(ctx context.Context, fn Func, data any) error {
	return r.do(ctx, fn, data)
}

func (r *Retryer) do(ctx context.Context, fn Func, data any) error {
	if !r.config.Enabled {
		return fn(ctx)
	}

	var lastErr error
	attempts := 0
	for {
		attempts++

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.isRetryable(err) {
			return fmt.Errorf("non-retryable error: %w", err)
		}

		if r.config.MaxAttempts > 0 && attempts >= r.config.MaxAttempts {
			if r.dlq != nil {
				r.dlq.Add(DLQEntry{
					Timestamp:   time.Now(),
					Attempts:    attempts,
					LastError:   err.Error(),
					FailureType: "max_attempts_exceeded",
					Data:        data,
				})
			}
			return fmt.Errorf("max retry attempts (%d) exceeded: %w", r.config.MaxAttempts, lastErr)
		}

		if ctx.Err() != nil {
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		}

		delay := r.delay(attempts)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempts, err, delay)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}
}

func (r *Retryer) delay(attempt int) time.Duration {
	var delay time.Duration
	switch r.config.BackoffStrategy {
	case BackoffConstant:
		delay = r.config.InitialDelay
	case BackoffLinear:
		delay = r.config.InitialDelay * time.Duration(attempt)
	case BackoffExponential:
		base := r.config.BackoffMultiplier
		if base <= 0 {
			base = 2.0
		}
		delay = time.Duration(float64(r.config.InitialDelay) * math.Pow(base, float64(attempt-1)))
	default:
		delay = r.config.InitialDelay
	}

	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}
	if r.config.Jitter > 0 {
		jitter := time.Duration(float64(delay) * r.config.Jitter * (rand.Float64()*2 - 1))
		delay += jitter
		if delay < 0 {
			delay = r.config.InitialDelay
		}
	}
	return delay
}

func (r *Retryer) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if len(r.config.RetryableErrors) == 0 {
		return true
	}
	errStr := err.Error()
	for _, pattern := range r.config.RetryableErrors {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// GetDLQ exposes the DLQ for inspection tooling; nil when disabled.
func (r *Retryer) GetDLQ() *DLQ {
	return r.dlq
}

// Close persists the DLQ.
func (r *Retryer) Close() error {
	if r.dlq != nil {
		return r.dlq.Save()
	}
	return nil
}
