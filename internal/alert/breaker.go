package alert

import (
	"errors"
	"sync"
	"time"
)

// errBreakerOpen is returned by breaker.Do while the webhook receiver is
// considered down and the cooldown has not yet elapsed.
var errBreakerOpen = errors.New("webhook circuit open")

// BreakerState enumerates the dispatch circuit's states. The numeric values
// feed the circuit-state gauge directly.
type BreakerState int32

const (
	BreakerClosed   BreakerState = 0
	BreakerOpen     BreakerState = 1
	BreakerHalfOpen BreakerState = 2
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// breaker guards outbound webhook dispatch: after threshold consecutive
// delivery failures it opens and rejects calls for cooldown, so a dead
// receiver is not hammered on every evaluation tick. After the cooldown one
// probe call is let through; its outcome decides whether the circuit closes
// again or re-opens for another cooldown.
type breaker struct {
	mu        sync.Mutex
	state     BreakerState
	fails     int
	threshold int
	cooldown  time.Duration
	openedAt  time.Time
	probing   bool

	// onTransition, if set, is invoked (under the breaker lock) on every
	// state change. Keep it cheap: it runs inline with dispatch.
	onTransition func(from, to BreakerState)
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	return &breaker{threshold: threshold, cooldown: cooldown}
}

// Do runs fn through the circuit. It returns errBreakerOpen without calling
// fn when the circuit is open (or a half-open probe is already in flight),
// otherwise it returns fn's error verbatim after recording the outcome.
func (b *breaker) Do(fn func() error) error {
	if err := b.acquire(); err != nil {
		return err
	}
	err := fn()
	b.settle(err)
	return err
}

// State reports the current circuit state.
func (b *breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *breaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if time.Since(b.openedAt) <= b.cooldown {
			return errBreakerOpen
		}
		b.transition(BreakerHalfOpen)
		b.probing = true
		return nil
	case BreakerHalfOpen:
		if b.probing {
			// One probe at a time; concurrent dispatches wait for its verdict.
			return errBreakerOpen
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

func (b *breaker) settle(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false

	if err == nil {
		if b.state == BreakerHalfOpen {
			b.transition(BreakerClosed)
		}
		b.fails = 0
		return
	}

	b.fails++
	if b.state == BreakerHalfOpen || b.fails >= b.threshold {
		b.openedAt = time.Now()
		if b.state != BreakerOpen {
			b.transition(BreakerOpen)
		}
	}
}

func (b *breaker) transition(to BreakerState) {
	from := b.state
	b.state = to
	if to == BreakerClosed {
		b.fails = 0
	}
	if b.onTransition != nil {
		b.onTransition(from, to)
	}
}
