package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the destination while its host
// is open, or while a half-open host already has its probe in flight.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State of one host
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

// Settings for HostBreakers
type Settings struct {
	// Threshold is the number of consecutive failures that opens a host
	Threshold uint32
	// Cooldown is how long a host stays open before one probe is let through
	Cooldown time.Duration
	// OnChange, if set, is called outside the lock after a host changes state
	OnChange func(host string, from, to State)
}

type hostState struct {
	state    State
	failures uint32
	openedAt time.Time
	probing  bool
}

// HostBreakers tracks destination health per host. Hosts are created on
// first use and never evicted; a proxy talks to a bounded set of sites.
type HostBreakers struct {
	settings Settings
	now      func() time.Time

	mu    sync.Mutex
	hosts map[string]*hostState
}

// NewHostBreakers returns breakers that open after settings.Threshold
// consecutive failures (default 10) for settings.Cooldown (default 30s)
func NewHostBreakers(settings Settings) *HostBreakers {
	if settings.Threshold == 0 {
		settings.Threshold = 10
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = 30 * time.Second
	}
	return &HostBreakers{
		settings: settings,
		now:      time.Now,
		hosts:    make(map[string]*hostState),
	}
}

// Do calls fn unless host is open. Errors wrapping context.Canceled are
// returned but never counted against the host.
func (b *HostBreakers) Do(host string, fn func() error) (err error) {
	probe, err := b.admit(host)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			b.record(host, probe, errors.New("panic"))
			panic(p)
		}
		b.record(host, probe, err)
	}()

	return fn()
}

// State returns the state of host; unknown hosts are closed
func (b *HostBreakers) State(host string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if h, ok := b.hosts[host]; ok {
		return b.effective(h)
	}
	return StateClosed
}

// States returns the state of every host seen so far
func (b *HostBreakers) States() map[string]State {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]State, len(b.hosts))
	for host, h := range b.hosts {
		out[host] = b.effective(h)
	}
	return out
}

// effective reports an open host whose cooldown is over as half-open
// without mutating it; the transition happens when a probe is admitted.
func (b *HostBreakers) effective(h *hostState) State {
	if h.state == StateOpen && b.cooledDown(h) {
		return StateHalfOpen
	}
	return h.state
}

func (b *HostBreakers) cooledDown(h *hostState) bool {
	return b.now().Sub(h.openedAt) >= b.settings.Cooldown
}

func (b *HostBreakers) admit(host string) (probe bool, err error) {
	b.mu.Lock()
	h, ok := b.hosts[host]
	if !ok {
		h = &hostState{}
		b.hosts[host] = h
	}

	var changed bool
	switch h.state {
	case StateOpen:
		if !b.cooledDown(h) {
			b.mu.Unlock()
			return false, ErrCircuitOpen
		}
		h.state = StateHalfOpen
		changed = true
		fallthrough
	case StateHalfOpen:
		if h.probing {
			b.mu.Unlock()
			return false, ErrCircuitOpen
		}
		h.probing = true
		probe = true
	}
	b.mu.Unlock()

	if changed {
		b.notify(host, StateOpen, StateHalfOpen)
	}
	return probe, nil
}

func (b *HostBreakers) record(host string, probe bool, err error) {
	b.mu.Lock()
	h := b.hosts[host]
	if probe {
		h.probing = false
	}
	if errors.Is(err, context.Canceled) {
		b.mu.Unlock()
		return
	}

	from := h.state
	switch {
	case err == nil:
		h.failures = 0
		if h.state == StateHalfOpen {
			h.state = StateClosed
		}
	case h.state == StateHalfOpen:
		h.state = StateOpen
		h.openedAt = b.now()
	case h.state == StateClosed:
		h.failures++
		if h.failures >= b.settings.Threshold {
			h.state = StateOpen
			h.openedAt = b.now()
			h.failures = 0
		}
	}
	to := h.state
	b.mu.Unlock()

	if from != to {
		b.notify(host, from, to)
	}
}

func (b *HostBreakers) notify(host string, from, to State) {
	if b.settings.OnChange != nil {
		b.settings.OnChange(host, from, to)
	}
}
