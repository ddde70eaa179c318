package eventdispatcher

import (
	"context"
	"errors"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/ahrav/notification-service/internal/domain/events"
)

// RetryConfig bounds the exponential backoff applied by WithRetry.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryConfig returns three attempts starting at 200ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2,
	}
}

// PermanentError marks a handler error that must not be retried.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so WithRetry gives up immediately. Nil stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

type attemptsKey struct{}

func withAttemptCounter(ctx context.Context, c *atomic.Int32) context.Context {
	return context.WithValue(ctx, attemptsKey{}, c)
}

func recordAttempt(ctx context.Context) {
	if c, ok := ctx.Value(attemptsKey{}).(*atomic.Int32); ok {
		c.Add(1)
	}
}

// WithRetry wraps h with bounded exponential backoff. Retries stop at
// MaxAttempts, on a Permanent error, or when ctx is done; the last error is
// returned. Attempt counts are reported to the dispatcher through ctx.
func WithRetry(h events.Handler, cfg RetryConfig) events.Handler {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	return func(ctx context.Context, tenant string, payload []byte) error {
		expBackoff := backoff.NewExponentialBackOff()
		if cfg.InitialInterval > 0 {
			expBackoff.InitialInterval = cfg.InitialInterval
		}
		if cfg.MaxInterval > 0 {
			expBackoff.MaxInterval = cfg.MaxInterval
		}
		if cfg.Multiplier > 0 {
			expBackoff.Multiplier = cfg.Multiplier
		}
		expBackoff.MaxElapsedTime = 0

		// WithMaxRetries treats zero as unlimited.
		var policy backoff.BackOff = &backoff.StopBackOff{}
		if cfg.MaxAttempts > 1 {
			policy = backoff.WithMaxRetries(expBackoff, uint64(cfg.MaxAttempts-1))
		}
		b := backoff.WithContext(policy, ctx)

		operation := func() error {
			if err := ctx.Err(); err != nil {
				return backoff.Permanent(err)
			}

			recordAttempt(ctx)
			err := h(ctx, tenant, payload)
			if err == nil {
				return nil
			}
			if IsPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}

		return backoff.Retry(operation, b)
	}
}

// Recover converts a panic inside h into a *PanicError return value.
func Recover(name string, h events.Handler) events.Handler {
	return func(ctx context.Context, tenant string, payload []byte) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &PanicError{Handler: name, Value: r, Stack: debug.Stack()}
			}
		}()

		return h(ctx, tenant, payload)
	}
}
