package vulnlib

import (
	"time"

	"github.com/cenkalti/backoff"
)

type Phase int

const (
	Attempting Phase = iota
	Retrying
	Succeeded
	Failed
	Exhausted
)

func (p Phase) String() string {
	return [...]string{"Attempting", "Retrying", "Succeeded", "Failed", "Exhausted"}[p]
}

// State is one step of the per-call retry bookkeeping.
// Attempt counts from 1. Delay is only set while Retrying.
type State struct {
	Phase   Phase
	Attempt int
	Delay   time.Duration
	Err     error
}

func (s State) Done() bool {
	return s.Phase == Succeeded || s.Phase == Failed || s.Phase == Exhausted
}

type Policy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// Retry walks Attempting(n) -> Succeeded | Failed | Retrying(n+1, delay),
// ending in Exhausted once MaxRetries retries have failed.
type Retry struct {
	policy  Policy
	backoff *backoff.ExponentialBackOff
	state   State
}

func NewRetry(p Policy) *Retry {
	if p.Multiplier <= 0 {
		p.Multiplier = 2
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = p.InitialInterval
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.InitialInterval,
		RandomizationFactor: 0,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.MaxInterval,
		MaxElapsedTime:      0,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	return &Retry{
		policy:  p,
		backoff: b,
		state:   State{Phase: Attempting, Attempt: 1},
	}
}

func (r *Retry) State() State {
	return r.state
}

// Observe records the outcome of the current attempt and returns the next state.
func (r *Retry) Observe(err error) State {
	if r.state.Done() {
		return r.state
	}

	attempt := r.state.Attempt

	switch {
	case err == nil:
		r.state = State{Phase: Succeeded, Attempt: attempt}
	case !KindOf(err).Transient():
		r.state = State{Phase: Failed, Attempt: attempt, Err: err}
	case attempt > r.policy.MaxRetries:
		r.state = State{Phase: Exhausted, Attempt: attempt, Err: err}
	default:
		delay := r.backoff.NextBackOff()
		if delay == backoff.Stop {
			r.state = State{Phase: Exhausted, Attempt: attempt, Err: err}
			break
		}
		r.state = State{Phase: Retrying, Attempt: attempt + 1, Delay: delay, Err: err}
	}

	return r.state
}

// Schedule lists the delays a call would wait through if every attempt failed transiently.
func (p Policy) Schedule() []time.Duration {
	r := NewRetry(p)
	transient := &QueryError{Kind: KindUnavailable}

	var delays []time.Duration
	for s := r.Observe(transient); s.Phase == Retrying; s = r.Observe(transient) {
		delays = append(delays, s.Delay)
	}
	return delays
}
