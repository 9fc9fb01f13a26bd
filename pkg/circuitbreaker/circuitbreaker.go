package circuitbreaker

import (
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// CircuitBreaker trips after a run of consecutive failures and fast-fails
// calls for a cooldown period, then lets a single probe through. The load
// harness uses it (opt-in) around sends so a fully dead target produces
// immediate transport failures instead of stalling every iteration on a
// connection timeout.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            State
	consecutiveFails int
	failureThreshold int
	cooldown         time.Duration
	openedAt         time.Time
	probeInFlight    bool
}

func New(failureThreshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) < cb.cooldown {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probeInFlight = true
	case StateHalfOpen:
		if cb.probeInFlight {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.probeInFlight = true
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probeInFlight = false

	if err != nil {
		cb.consecutiveFails++
		if cb.state == StateHalfOpen || cb.consecutiveFails >= cb.failureThreshold {
			cb.state = StateOpen
			cb.openedAt = time.Now()
			cb.consecutiveFails = 0
		}
		return err
	}

	cb.state = StateClosed
	cb.consecutiveFails = 0
	return nil
}

var ErrCircuitOpen = &CircuitError{Message: "circuit breaker is open"}

type CircuitError struct {
	Message string
}

func (e *CircuitError) Error() string {
	return e.Message
}
