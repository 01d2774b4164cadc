package live

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// reconnectPolicy yields deterministic doubling delays and gives up after maxAttempts
type reconnectPolicy struct {
	b           *backoff.ExponentialBackOff
	maxAttempts int
	attempts    int
}

func newReconnectPolicy(base, max time.Duration, maxAttempts int) *reconnectPolicy {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = max
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return &reconnectPolicy{b: b, maxAttempts: maxAttempts}
}

// Next returns the delay before the next attempt, or false once attempts are exhausted
func (p *reconnectPolicy) Next() (time.Duration, bool) {
	if p.attempts >= p.maxAttempts {
		return 0, false
	}
	p.attempts++
	return p.b.NextBackOff(), true
}

// Reset starts a fresh sequence after a successful connection or a manual retry
func (p *reconnectPolicy) Reset() {
	p.attempts = 0
	p.b.Reset()
}

// Attempts returns how many reconnects have been scheduled since the last reset
func (p *reconnectPolicy) Attempts() int {
	return p.attempts
}
