// Package circuit implements the failure breaker that guards cold-tier
// object-store calls: once the store fails often enough in a row, further
// page reads and eviction writes are rejected outright until a cooldown
// elapses, instead of each one waiting out its own timeout.
package circuit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is a breaker's admission mode.
type State int

const (
	// StateClosed admits every call.
	StateClosed State = iota
	// StateOpen rejects every call until the cooldown elapses.
	StateOpen
	// StateHalfOpen admits a bounded number of probe calls; their outcome
	// decides between closing and re-opening.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned for calls rejected while the breaker is open (or
// while the half-open probe quota is spoken for).
var ErrOpen = errors.New("circuit: breaker open")

// Options tune a Breaker. Zero values take the documented defaults.
type Options struct {
	// FailureThreshold is the consecutive-failure count that trips the
	// breaker open (default 5).
	FailureThreshold int `yaml:"failure_threshold"`

	// Cooldown is how long the breaker stays open before admitting
	// probes (default 30s).
	Cooldown time.Duration `yaml:"cooldown"`

	// SuccessThreshold is the consecutive probe successes required to
	// close again (default 2).
	SuccessThreshold int `yaml:"success_threshold"`

	// MaxProbes bounds concurrent half-open probes (default 1).
	MaxProbes int `yaml:"max_probes"`

	// OnStateChange, when set, observes every transition.
	OnStateChange func(name string, from, to State) `yaml:"-"`
}

func (o Options) withDefaults() Options {
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 5
	}
	if o.Cooldown <= 0 {
		o.Cooldown = 30 * time.Second
	}
	if o.SuccessThreshold <= 0 {
		o.SuccessThreshold = 2
	}
	if o.MaxProbes <= 0 {
		o.MaxProbes = 1
	}
	return o
}

// Breaker is a named closed/open/half-open admission gate. Context
// cancellation is deliberately neutral: a caller giving up says nothing
// about the store's health, so it neither trips nor heals the breaker.
type Breaker struct {
	name string
	opts Options

	mu        sync.Mutex
	state     State
	failures  int // consecutive failures while closed
	successes int // consecutive probe successes while half-open
	probes    int // in-flight probes while half-open
	openedAt  time.Time
}

// New builds a Breaker named name (the name only appears in errors and
// state-change notifications).
func New(name string, opts Options) *Breaker {
	return &Breaker{name: name, opts: opts.withDefaults()}
}

// Do admits op through the breaker, records its outcome, and returns
// either ErrOpen (call rejected) or op's own error.
func (b *Breaker) Do(ctx context.Context, op func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := op(ctx)
	b.settle(err)
	return err
}

// State reports the breaker's current mode, applying any due
// open-to-half-open transition first.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeEnterHalfOpen()
	return b.state
}

// Name returns the breaker's name.
func (b *Breaker) Name() string { return b.name }

// Reset forces the breaker closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
	b.failures = 0
	b.successes = 0
	b.probes = 0
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeEnterHalfOpen()

	switch b.state {
	case StateClosed:
		return nil
	case StateHalfOpen:
		if b.probes >= b.opts.MaxProbes {
			return fmt.Errorf("%w (%s: probe quota in use)", ErrOpen, b.name)
		}
		b.probes++
		return nil
	default:
		return fmt.Errorf("%w (%s: cooling down)", ErrOpen, b.name)
	}
}

func (b *Breaker) settle(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasProbe := b.state == StateHalfOpen
	if wasProbe {
		b.probes--
	}

	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return
	}

	switch {
	case err == nil && wasProbe:
		b.successes++
		if b.successes >= b.opts.SuccessThreshold {
			b.transition(StateClosed)
			b.failures = 0
			b.successes = 0
		}
	case err == nil:
		b.failures = 0
	case wasProbe:
		// A failed probe re-opens immediately.
		b.trip()
	default:
		b.failures++
		if b.failures >= b.opts.FailureThreshold {
			b.trip()
		}
	}
}

func (b *Breaker) trip() {
	b.transition(StateOpen)
	b.openedAt = time.Now()
	b.successes = 0
	b.probes = 0
}

func (b *Breaker) maybeEnterHalfOpen() {
	if b.state == StateOpen && time.Since(b.openedAt) >= b.opts.Cooldown {
		b.transition(StateHalfOpen)
		b.successes = 0
		b.probes = 0
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.opts.OnStateChange != nil {
		b.opts.OnStateChange(b.name, from, to)
	}
}
