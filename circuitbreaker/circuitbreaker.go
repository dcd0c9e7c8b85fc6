// Package circuitbreaker guards calls to the upstream catalog. After a run
// of consecutive failures it stops sending requests for a cooldown period,
// then lets a single probe through to see if the upstream recovered.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"lyrics-annotator-go/logcolors"
)

// State is the breaker's position in the closed/open/half-open cycle.
type State int

const (
	StateClosed   State = iota // requests flow normally
	StateOpen                  // requests blocked until cooldown elapses
	StateHalfOpen              // one probe in flight, everyone else waits
)

var stateNames = map[State]string{
	StateClosed:   "CLOSED",
	StateOpen:     "OPEN",
	StateHalfOpen: "HALF-OPEN",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// ErrCircuitOpen is returned by callers when a request is rejected
// without reaching the upstream.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config holds the breaker tuning knobs. Zero values fall back to
// defaults in New.
type Config struct {
	Name            string
	Threshold       int           // consecutive failures before tripping
	Cooldown        time.Duration // how long to block after tripping
	HalfOpenTimeout time.Duration // how long to wait for the probe's verdict
}

// CircuitBreaker tracks consecutive failures and gates requests.
type CircuitBreaker struct {
	mu sync.RWMutex

	name            string
	threshold       int
	cooldown        time.Duration
	halfOpenTimeout time.Duration

	state       State
	failures    int
	lastFailure time.Time // also the moment the circuit opened
	probeStart  time.Time // when the half-open probe was admitted
}

func New(cfg Config) *CircuitBreaker {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.HalfOpenTimeout <= 0 {
		cfg.HalfOpenTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		name:            cfg.Name,
		threshold:       cfg.Threshold,
		cooldown:        cfg.Cooldown,
		halfOpenTimeout: cfg.HalfOpenTimeout,
	}
}

// transitionLocked moves to a new state and logs the reason.
// Callers must hold cb.mu.
func (cb *CircuitBreaker) transitionLocked(to State, reason string) {
	cb.state = to
	prefix := logcolors.CircuitBreakerPrefix(cb.name)
	if to == StateOpen {
		log.Warnf("%s %s, transitioning to %v", prefix, reason, to)
	} else {
		log.Infof("%s %s, transitioning to %v", prefix, reason, to)
	}
}

// Allow reports whether a request may proceed, advancing the state
// machine as cooldowns and timeouts elapse.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) < cb.cooldown {
			return false
		}
		cb.transitionLocked(StateHalfOpen, "Cooldown passed")
		cb.probeStart = time.Now()
		return true // this caller is the probe

	case StateHalfOpen:
		if time.Since(cb.probeStart) >= cb.halfOpenTimeout {
			// The probe never reported back
			cb.lastFailure = time.Now()
			cb.transitionLocked(StateOpen, "Half-open timeout expired")
		}
		// The probe slot is taken either way
		return false

	default:
		return true
	}
}

// RecordSuccess clears the failure run. A successful half-open probe
// closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.failures = 0
		cb.transitionLocked(StateClosed, "Probe succeeded")
	case StateClosed:
		cb.failures = 0
	}
}

// RecordFailure extends the failure run and trips the circuit at the
// threshold. A failed half-open probe reopens immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()

	switch cb.state {
	case StateHalfOpen:
		cb.transitionLocked(StateOpen, "Probe failed")

	case StateClosed:
		// Warn at 60% of the threshold so operators see trouble coming
		warnAt := (cb.threshold * 3) / 5
		if warnAt < 2 {
			warnAt = 2
		}
		if cb.failures == warnAt {
			log.Warnf("%s High failure rate: %d/%d consecutive failures",
				logcolors.CircuitBreakerPrefix(cb.name), cb.failures, cb.threshold)
		}
		if cb.failures >= cb.threshold {
			cb.transitionLocked(StateOpen, "Threshold reached")
		}
	}
}

// Reset forces the breaker back to closed, clearing all history.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.lastFailure = time.Time{}
	cb.probeStart = time.Time{}
	cb.transitionLocked(StateClosed, "Manual reset")
}

func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

func (cb *CircuitBreaker) Failures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failures
}

func (cb *CircuitBreaker) Threshold() int {
	return cb.threshold
}

func (cb *CircuitBreaker) IsOpen() bool {
	return cb.State() == StateOpen
}

func (cb *CircuitBreaker) IsHalfOpen() bool {
	return cb.State() == StateHalfOpen
}

// Stats returns the state, failure run length, and last failure time
// in one consistent read.
func (cb *CircuitBreaker) Stats() (state State, failures int, lastFailure time.Time) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state, cb.failures, cb.lastFailure
}

// TimeUntilRetry reports how long until the breaker will act again:
// the remaining cooldown when open, the remaining probe window when
// half-open, zero when closed.
func (cb *CircuitBreaker) TimeUntilRetry() time.Duration {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	var deadline time.Time
	switch cb.state {
	case StateOpen:
		deadline = cb.lastFailure.Add(cb.cooldown)
	case StateHalfOpen:
		deadline = cb.probeStart.Add(cb.halfOpenTimeout)
	default:
		return 0
	}
	if remaining := time.Until(deadline); remaining > 0 {
		return remaining
	}
	return 0
}
