package embeddings

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RetryConfig bounds provider retries and throttles calls
type RetryConfig struct {
	Attempts      int
	Backoff       time.Duration
	RatePerSecond float64 // 0 disables throttling
	Burst         int
}

// Retrying retries a provider with fixed backoff and a token bucket.
// The final failure is a *ProviderError.
type Retrying struct {
	next    Provider
	cfg     RetryConfig
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewRetrying wraps next
func NewRetrying(next Provider, cfg RetryConfig, logger zerolog.Logger) *Retrying {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	r := &Retrying{next: next, cfg: cfg, logger: logger}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return r
}

// Model returns the wrapped provider's model
func (r *Retrying) Model() string {
	return r.next.Model()
}

// Embed calls the wrapped provider until it succeeds, attempts run out or
// ctx is done.
func (r *Retrying) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	attempts := 0

	for attempts < r.cfg.Attempts {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				if lastErr == nil {
					lastErr = err
				}
				break
			}
		}

		attempts++
		vec, err := r.next.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err

		if ctx.Err() != nil || attempts == r.cfg.Attempts {
			break
		}

		r.logger.Debug().Err(err).
			Int("attempt", attempts).
			Str("model", r.next.Model()).
			Msg("embedding call failed, retrying")

		if r.cfg.Backoff > 0 {
			timer := time.NewTimer(r.cfg.Backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, &ProviderError{Model: r.next.Model(), Attempts: attempts, Err: errors.Join(lastErr, ctx.Err())}
			case <-timer.C:
			}
		}
	}

	return nil, &ProviderError{Model: r.next.Model(), Attempts: attempts, Err: lastErr}
}
