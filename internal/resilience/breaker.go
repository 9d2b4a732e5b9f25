// Package resilience provides reliability patterns for calls to cloud billing APIs.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the circuit breaker is rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

func (s state) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker sheds calls to an upstream billing API after repeated failures.
// maxFailures consecutive errors open the circuit; once the cooldown has
// passed, probe calls are let through and their outcome decides whether
// the circuit closes again.
type Breaker struct {
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time // for testing

	mu       sync.Mutex
	state    state
	failures int
	openedAt time.Time
}

// NewBreaker creates a breaker that opens after maxFailures consecutive
// failures and starts probing again after cooldown.
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	return &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Execute runs fn unless the circuit is open, recording the outcome.
// Rejected calls fail fast with ErrCircuitOpen.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	if b.currentLocked() == stateOpen {
		b.mu.Unlock()
		return ErrCircuitOpen
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		// A failed probe reopens immediately regardless of the count.
		if b.state == stateHalfOpen || b.failures >= b.maxFailures {
			b.state = stateOpen
			b.openedAt = b.now()
		}
		return err
	}
	b.failures = 0
	b.state = stateClosed
	return nil
}

// Status reports the circuit state. The health endpoint exposes it so
// operators can see when collection is being shed.
func (b *Breaker) Status() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentLocked().String()
}

// currentLocked applies the open to half-open promotion once the cooldown
// has elapsed. Callers must hold b.mu.
func (b *Breaker) currentLocked() state {
	if b.state == stateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		b.state = stateHalfOpen
	}
	return b.state
}
