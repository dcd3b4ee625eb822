// Package retry decides when a dropped live channel is dialed again.
package retry

import (
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/dkeye/Huddle/internal/config"
)

const DefaultDelay = 3 * time.Second

// Policy describes the reconnect cadence. The zero value retries every
// DefaultDelay forever.
type Policy struct {
	Delay       time.Duration
	MaxAttempts int // 0 means unlimited
	Exponential bool
	MaxDelay    time.Duration
}

func FromConfig(c config.ReconnectConfig) Policy {
	return Policy{
		Delay:       c.Delay,
		MaxAttempts: c.MaxAttempts,
		Exponential: c.Exponential,
		MaxDelay:    c.MaxDelay,
	}
}

func (p Policy) delay() time.Duration {
	if p.Delay <= 0 {
		return DefaultDelay
	}
	return p.Delay
}

func (p Policy) backOff() backoff.BackOff {
	if !p.Exponential {
		return backoff.NewConstantBackOff(p.delay())
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.delay()
	b.RandomizationFactor = 0
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	b.Reset()
	return b
}

// NewSchedule starts a fresh attempt counter for one connection lifetime.
func (p Policy) NewSchedule() *Schedule {
	return &Schedule{policy: p, b: p.backOff()}
}

// Schedule is not safe for concurrent use; owners serialize access.
type Schedule struct {
	policy   Policy
	b        backoff.BackOff
	attempts int
}

// Next returns the delay before the next attempt, or false once the attempt
// cap is reached.
func (s *Schedule) Next() (time.Duration, bool) {
	if s.policy.MaxAttempts > 0 && s.attempts >= s.policy.MaxAttempts {
		return 0, false
	}
	d := s.b.NextBackOff()
	if d == backoff.Stop {
		return 0, false
	}
	s.attempts++
	return d, true
}

// Reset is called after a successful connect.
func (s *Schedule) Reset() {
	s.attempts = 0
	s.b.Reset()
}

func (s *Schedule) Attempts() int { return s.attempts }
