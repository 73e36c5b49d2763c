package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/openhqm/openhqm/pkg/errors"
)

// CircuitBreaker implements the standard closed/open/half-open state machine
// against the CircuitBreakerConfig shape declared in resilience.go.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu          sync.Mutex
	state       State
	failures    int64
	successes   int64
	openedAt    time.Time
	halfOpenHit bool
}

// NewCircuitBreaker creates a circuit breaker from the given configuration,
// filling in defaults for any zero-valued fields.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &CircuitBreaker{
		cfg:   cfg,
		state: StateClosed,
	}
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute runs fn with circuit breaker protection, fast-failing while open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn Executor) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.afterRequest(err == nil)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) < cb.cfg.Timeout {
			return errors.Unavailable("circuit breaker "+cb.cfg.Name+" is open", nil)
		}
		cb.transition(StateHalfOpen)
		cb.halfOpenHit = false
		return nil
	case StateHalfOpen:
		if cb.halfOpenHit {
			return errors.Unavailable("circuit breaker "+cb.cfg.Name+" is half-open", nil)
		}
		cb.halfOpenHit = true
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) afterRequest(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.halfOpenHit = false
		if success {
			cb.successes++
			if cb.successes >= cb.cfg.SuccessThreshold {
				cb.transition(StateClosed)
				cb.failures = 0
				cb.successes = 0
			}
		} else {
			cb.transition(StateOpen)
			cb.openedAt = time.Now()
			cb.successes = 0
		}
	default:
		if success {
			cb.failures = 0
			return
		}
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.transition(StateOpen)
			cb.openedAt = time.Now()
		}
	}
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}
