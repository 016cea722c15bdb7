package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned while the circuit rejects calls.
var ErrOpen = errors.New("circuitbreaker: open")

// State represents the circuit breaker state
type State int

const (
	StateClosed   State = iota // Normal operation, calls pass through
	StateOpen                  // Circuit is open, calls fail immediately
	StateHalfOpen              // Testing if the sink recovered
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

// Config holds circuit breaker configuration
type Config struct {
	FailureThreshold int           // Consecutive failures before opening
	SuccessThreshold int           // Successes in half-open state to close
	Timeout          time.Duration // Open duration before probing half-open
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          5 * time.Second,
	}
}

// CircuitBreaker guards transport writes: repeated datagram write failures
// open the circuit, and OnOpen lets the owner tear the session down with
// reason "transport".
type CircuitBreaker struct {
	config Config

	mu           sync.Mutex
	state        State
	failureCount int
	successCount int
	openedAt     time.Time

	// OnOpen fires once on each closed→open transition.
	OnOpen func()
}

// New creates a circuit breaker with the given configuration.
func New(config Config) *CircuitBreaker {
	return &CircuitBreaker{config: config, state: StateClosed}
}

// Call runs fn when the circuit allows it.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.allow() {
		return ErrOpen
	}
	err := fn()
	cb.record(err == nil)
	return err
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.config.Timeout {
		cb.state = StateHalfOpen
		cb.successCount = 0
	}
	return cb.state != StateOpen
}

func (cb *CircuitBreaker) record(success bool) {
	var onOpen func()

	cb.mu.Lock()
	switch {
	case success && cb.state == StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.state = StateClosed
			cb.failureCount = 0
		}
	case success:
		cb.failureCount = 0
	case cb.state == StateHalfOpen:
		cb.state = StateOpen
		cb.openedAt = time.Now()
		onOpen = cb.OnOpen
	default:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold && cb.state == StateClosed {
			cb.state = StateOpen
			cb.openedAt = time.Now()
			onOpen = cb.OnOpen
		}
	}
	cb.mu.Unlock()

	if onOpen != nil {
		onOpen()
	}
}
