package reasoning

import (
	"sync"
	"time"
)

// BreakerState is the explicit lifecycle of one endpoint's breaker.
type BreakerState int

const (
	// StateClosed admits requests normally.
	StateClosed BreakerState = iota
	// StateOpen rejects requests until the cooldown elapses.
	StateOpen
	// StateHalfOpen admits a single probe; its outcome decides the next state.
	StateHalfOpen
)

func (s BreakerState) String() string {
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

type endpointState struct {
	state    BreakerState
	openedAt time.Time
}

// Breaker tracks per-endpoint failure state. An endpoint opens on any
// failure and stays open for the cooldown; when every endpoint is open the
// cooldown shrinks so the system probes its way back instead of staying
// dark for the full window.
type Breaker struct {
	cooldown        time.Duration
	cooldownAllOpen time.Duration
	now             func() time.Time

	mu     sync.Mutex
	states map[string]*endpointState
}

// NewBreaker creates a Breaker over the given endpoint URLs, all closed.
func NewBreaker(endpoints []string, cooldown, cooldownAllOpen time.Duration) *Breaker {
	if cooldown <= 0 {
		cooldown = 300 * time.Second
	}
	if cooldownAllOpen <= 0 {
		cooldownAllOpen = 30 * time.Second
	}
	states := make(map[string]*endpointState, len(endpoints))
	for _, ep := range endpoints {
		states[ep] = &endpointState{state: StateClosed}
	}
	return &Breaker{
		cooldown:        cooldown,
		cooldownAllOpen: cooldownAllOpen,
		now:             time.Now,
		states:          states,
	}
}

// Allow reports whether the endpoint may be tried now. An open endpoint
// whose cooldown has elapsed transitions to half-open and is allowed as a
// probe.
func (b *Breaker) Allow(endpoint string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.states[endpoint]
	if !ok {
		st = &endpointState{state: StateClosed}
		b.states[endpoint] = st
	}

	switch st.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		cooldown := b.cooldown
		if b.allOpenLocked() {
			cooldown = b.cooldownAllOpen
		}
		if b.now().Sub(st.openedAt) >= cooldown {
			st.state = StateHalfOpen
			return true
		}
		return false
	default:
		return false
	}
}

// Success closes the endpoint's breaker.
func (b *Breaker) Success(endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.states[endpoint]; ok {
		st.state = StateClosed
	}
}

// Failure opens the endpoint's breaker and restarts its cooldown.
func (b *Breaker) Failure(endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.states[endpoint]
	if !ok {
		st = &endpointState{}
		b.states[endpoint] = st
	}
	st.state = StateOpen
	st.openedAt = b.now()
}

// State returns the endpoint's current state without transitions.
func (b *Breaker) State(endpoint string) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.states[endpoint]; ok {
		return st.state
	}
	return StateClosed
}

// AllOpen reports whether every tracked endpoint is open.
func (b *Breaker) AllOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allOpenLocked()
}

func (b *Breaker) allOpenLocked() bool {
	if len(b.states) == 0 {
		return false
	}
	for _, st := range b.states {
		if st.state != StateOpen {
			return false
		}
	}
	return true
}
