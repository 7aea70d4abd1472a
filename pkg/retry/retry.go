// Package retry implements bounded exponential backoff for object-store
// calls. Only failures pkg/errors marks retryable are reattempted; POSIX
// errno failures and not-found sentinels surface immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	pkgerrors "github.com/posixfs/posixfs/pkg/errors"
)

// Policy bounds how a transiently failing call is reattempted. A zero
// Attempts, BaseDelay or MaxDelay, or a Multiplier of 1 or less, falls
// back to the DefaultPolicy value; Jitter and OnRetry are used as given.
type Policy struct {
	// Attempts is the total call budget, including the first try.
	Attempts int `yaml:"attempts"`

	// BaseDelay is the wait before the first reattempt; each further
	// reattempt multiplies it by Multiplier, capped at MaxDelay.
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	Multiplier float64       `yaml:"multiplier"`

	// Jitter spreads each wait by up to ±20% so a burst of failing page
	// reads does not reattempt in lockstep.
	Jitter bool `yaml:"jitter"`

	// OnRetry, when set, observes every scheduled reattempt.
	OnRetry func(attempt int, err error, wait time.Duration) `yaml:"-"`
}

// DefaultPolicy is the object-store default: four attempts, 50ms doubling
// to a 10s cap, jittered.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   4,
		BaseDelay:  50 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.Multiplier <= 1 {
		p.Multiplier = def.Multiplier
	}
	return p
}

// Do runs op, reattempting under p for as long as the returned error is
// retryable and ctx stays live. The terminal error is op's own when it is
// non-retryable, or a wrapper naming the exhausted budget otherwise.
func Do(ctx context.Context, p Policy, op func(context.Context) error) error {
	p = p.withDefaults()

	var err error
	for attempt := 1; ; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return fmt.Errorf("retry: canceled before attempt %d: %w", attempt, cerr)
		}

		err = op(ctx)
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return err
		}
		if attempt >= p.Attempts {
			break
		}

		wait := p.wait(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry: canceled after attempt %d: %w", attempt, ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("retry: %d attempts exhausted: %w", p.Attempts, err)
}

// Retryable reports whether err carries pkg/errors' retryable marking.
// Anything else — POSIX errnos, not-found sentinels, plain errors — is
// terminal.
func Retryable(err error) bool {
	var fe *pkgerrors.FSError
	return errors.As(err, &fe) && fe.Retryable
}

// wait computes the backoff before reattempt number attempt (1-based).
func (p Policy) wait(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.MaxDelay) {
			d = float64(p.MaxDelay)
			break
		}
	}
	if p.Jitter {
		d += d * 0.2 * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}
