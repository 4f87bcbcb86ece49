// Package supervise restarts long-running tasks with bounded exponential
// backoff.
package supervise

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

type Policy struct {
	Initial time.Duration
	Max     time.Duration
	// MaxRetries of zero retries forever.
	MaxRetries int
	// A run that lasted at least ResetAfter starts the next delay from Initial.
	ResetAfter time.Duration
}

// DefaultPolicy restarts after one second, the delay speech recognition was
// given after it stopped on its own.
var DefaultPolicy = Policy{
	Initial:    time.Second,
	Max:        30 * time.Second,
	ResetAfter: time.Minute,
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.MaxInterval = p.Max
	b.MaxElapsedTime = 0
	b.Reset()

	var bo backoff.BackOff = b
	if p.MaxRetries > 0 {
		bo = backoff.WithMaxRetries(bo, uint64(p.MaxRetries))
	}
	return backoff.WithContext(bo, ctx)
}

// Permanent stops the supervisor and makes Run return err.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Run calls fn until ctx is done, fn returns a Permanent error, or the retry
// budget is spent. A nil return from fn is restarted like a failure.
func Run(ctx context.Context, p Policy, name string, fn func(ctx context.Context) error) error {
	bo := p.backOff(ctx)
	l := log.With().Str("task", name).Logger()

	for {
		started := time.Now()
		err := fn(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Unwrap()
		}

		if p.ResetAfter > 0 && time.Since(started) >= p.ResetAfter {
			bo.Reset()
		}
		delay := bo.NextBackOff()
		if delay == backoff.Stop {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%s: giving up: %w", name, err)
		}
		l.Warn().Err(err).Dur("retry_in", delay).Msg("Task stopped, restarting")

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
