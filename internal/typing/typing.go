// Package typing implements the client side of typing indicators: a Sender
// that rate limits outgoing typing signals and an Indicator that expires
// remote typing flags when the "stopped" signal never arrives.
package typing

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Default timings.
const (
	DefaultRefreshInterval = time.Second
	DefaultIdleTimeout     = 2 * time.Second
	DefaultExpiry          = 3 * time.Second
)

// Sender turns keystrokes into typing signals. While the user keeps typing it
// emits true at most once per refresh interval; it emits false once after the
// idle timeout or on Blur.
type Sender struct {
	clock   clock.Clock
	emit    func(isTyping bool)
	refresh time.Duration
	idle    time.Duration

	mu       sync.Mutex
	typing   bool
	lastTrue time.Time
	timer    *clock.Timer
	gen      uint64
}

// NewSender creates a sender. emit is called with the sender's lock held, so
// signals reach it in order; it must not call back into the Sender.
func NewSender(clk clock.Clock, emit func(isTyping bool)) *Sender {
	if clk == nil {
		clk = clock.New()
	}
	return &Sender{clock: clk, emit: emit, refresh: DefaultRefreshInterval, idle: DefaultIdleTimeout}
}

// Keystroke records input activity.
func (s *Sender) Keystroke() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if !s.typing || now.Sub(s.lastTrue) >= s.refresh {
		s.typing = true
		s.lastTrue = now
		s.emit(true)
	}

	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.clock.AfterFunc(s.idle, func() { s.expire(gen) })
}

// Blur ends typing immediately, for example when the input loses focus or the client exits.
func (s *Sender) Blur() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Sender) expire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.stopLocked()
}

func (s *Sender) stopLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.typing {
		s.typing = false
		s.emit(false)
	}
}

// Indicator tracks which remote participants are typing. A true signal
// expires on its own after the expiry timeout unless refreshed.
type Indicator struct {
	clock    clock.Clock
	expiry   time.Duration
	onChange func(participant string, isTyping bool)

	mu     sync.Mutex
	active map[string]*entry
}

type entry struct {
	timer *clock.Timer
	gen   uint64
}

// NewIndicator creates an indicator. onChange may be nil; it is called without locks held.
func NewIndicator(clk clock.Clock, onChange func(participant string, isTyping bool)) *Indicator {
	if clk == nil {
		clk = clock.New()
	}
	if onChange == nil {
		onChange = func(string, bool) {}
	}
	return &Indicator{clock: clk, expiry: DefaultExpiry, onChange: onChange, active: make(map[string]*entry)}
}

// Observe applies a received typing signal.
func (i *Indicator) Observe(participant string, isTyping bool) {
	i.mu.Lock()
	e, wasTyping := i.active[participant]
	if !isTyping {
		if wasTyping {
			e.timer.Stop()
			delete(i.active, participant)
		}
		i.mu.Unlock()
		if wasTyping {
			i.onChange(participant, false)
		}
		return
	}

	if !wasTyping {
		e = &entry{}
		i.active[participant] = e
	} else {
		e.timer.Stop()
	}
	e.gen++
	gen := e.gen
	e.timer = i.clock.AfterFunc(i.expiry, func() { i.expire(participant, gen) })
	i.mu.Unlock()

	if !wasTyping {
		i.onChange(participant, true)
	}
}

// IsTyping reports whether participant is currently shown as typing.
func (i *Indicator) IsTyping(participant string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.active[participant]
	return ok
}

func (i *Indicator) expire(participant string, gen uint64) {
	i.mu.Lock()
	e, ok := i.active[participant]
	if !ok || e.gen != gen {
		i.mu.Unlock()
		return
	}
	delete(i.active, participant)
	i.mu.Unlock()
	i.onChange(participant, false)
}
