// Package breaker provides a per-origin circuit breaker guarding
// outbound provider calls. A breaker trips open after consecutive
// failures, fails fast while open, and probes the origin with a bounded
// number of trial calls before closing again.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// State is the breaker's current position.
type State int

const (
	// StateClosed admits all calls.
	StateClosed State = iota
	// StateOpen rejects all calls.
	StateOpen
	// StateHalfOpen admits a bounded number of trial calls.
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

// ErrOpen is returned when the breaker rejects a call without attempting it.
var ErrOpen = errors.New("circuit breaker open")

// ErrTooManyTrials is returned when the half-open trial budget is exhausted.
var ErrTooManyTrials = errors.New("circuit breaker half-open: trial budget exhausted")

// Config tunes the breaker's transitions.
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens the breaker.
	FailureThreshold int
	// SuccessThreshold is the consecutive-success count in half-open that closes it.
	SuccessThreshold int
	// OpenTimeout is how long the breaker stays open before admitting a probe.
	OpenTimeout time.Duration
	// MaxHalfOpen bounds concurrent trial calls while half-open.
	MaxHalfOpen int
}

// DefaultConfig matches the tuning used for provider origins.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		MaxHalfOpen:      1,
	}
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.MaxHalfOpen <= 0 {
		c.MaxHalfOpen = 1
	}
	return c
}

// Breaker is a single origin's circuit breaker.
type Breaker struct {
	cfg Config

	mu           sync.Mutex
	state        State
	failures     int
	successes    int
	lastFailure  time.Time
	inFlightHalf int

	now func() time.Time
}

// New creates a breaker in the closed state.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg.withDefaults(), now: time.Now}
}

// Allow asks the breaker to admit a call. On success it returns a done
// callback the caller must invoke with the call's outcome. On rejection
// it returns ErrOpen or ErrTooManyTrials.
func (b *Breaker) Allow() (done func(success bool), err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastFailure) < b.cfg.OpenTimeout {
			return nil, ErrOpen
		}
		b.state = StateHalfOpen
		b.successes = 0
		b.inFlightHalf = 0
		fallthrough
	case StateHalfOpen:
		if b.inFlightHalf >= b.cfg.MaxHalfOpen {
			return nil, ErrTooManyTrials
		}
		b.inFlightHalf++
	}

	return b.report, nil
}

// Execute runs fn under the breaker, recording its outcome.
func (b *Breaker) Execute(fn func() error) error {
	done, err := b.Allow()
	if err != nil {
		return err
	}
	err = fn()
	done(err == nil)
	return err
}

// State returns the breaker's current state, accounting for open-timeout
// expiry only at the next Allow.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) report(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen && b.inFlightHalf > 0 {
		b.inFlightHalf--
	}

	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
	}
}

func (b *Breaker) onFailure() {
	b.lastFailure = b.now()
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.state = StateOpen
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.successes = 0
	}
}

// Group keys breakers by origin so each provider host degrades
// independently.
type Group struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewGroup creates a registry of per-origin breakers sharing one config.
func NewGroup(cfg Config) *Group {
	return &Group{cfg: cfg.withDefaults(), breakers: make(map[string]*Breaker)}
}

// For returns the breaker for origin, creating it on first use.
func (g *Group) For(origin string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.breakers[origin]
	if !ok {
		b = New(g.cfg)
		g.breakers[origin] = b
	}
	return b
}
