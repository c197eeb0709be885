package backend

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/MimeLyc/subtitle-batch-translator/pkg/log"
)

const (
	defaultRetryAttempts  = 2
	defaultRetryBaseDelay = 500 * time.Millisecond
	defaultRetryMaxDelay  = 10 * time.Second
)

// RetryConfig bounds the automatic retries of transient failures.
type RetryConfig struct {
	// Attempts is the number of retries after the first call.
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryConfig returns the retry settings used when none are configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:  defaultRetryAttempts,
		BaseDelay: defaultRetryBaseDelay,
		MaxDelay:  defaultRetryMaxDelay,
	}
}

// Retrying decorates a Backend with exponential backoff retries for
// Network and RateLimit errors. Other kinds are returned immediately.
type Retrying struct {
	Backend
	cfg RetryConfig
}

func WithRetry(b Backend, cfg RetryConfig) *Retrying {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultRetryBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultRetryMaxDelay
	}
	if cfg.Attempts < 0 {
		cfg.Attempts = 0
	}
	return &Retrying{Backend: b, cfg: cfg}
}

func (r *Retrying) Translate(ctx context.Context, req Request) (string, error) {
	var out string
	err := r.do(ctx, "translate", func(ctx context.Context) error {
		text, err := r.Backend.Translate(ctx, req)
		out = text
		return err
	})
	return out, err
}

// StreamTranslate retries the whole stream. Partials of a failed attempt
// were cumulative for that attempt only; the next attempt starts over.
func (r *Retrying) StreamTranslate(ctx context.Context, req Request, onPartial func(string)) (string, error) {
	var out string
	err := r.do(ctx, "stream", func(ctx context.Context) error {
		text, err := r.Backend.StreamTranslate(ctx, req, onPartial)
		out = text
		return err
	})
	return out, err
}

func (r *Retrying) do(ctx context.Context, op string, fn func(context.Context) error) error {
	// provider asked delay of the last failure, read by the backoff
	var hint time.Duration
	base := retry.WithCappedDuration(r.cfg.MaxDelay, retry.NewExponential(r.cfg.BaseDelay))
	backoff := retry.WithMaxRetries(uint64(r.cfg.Attempts), retry.BackoffFunc(func() (time.Duration, bool) {
		next, stop := base.Next()
		if stop {
			return 0, true
		}
		if hint > next {
			next = min(hint, r.cfg.MaxDelay)
		}
		return next, false
	}))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		hint = RetryAfterOf(err)
		log.Warn("Backend %s %s attempt %d failed (%s), retrying: %v", r.Name(), op, attempt, KindOf(err), err)
		return retry.RetryableError(err)
	})
}
