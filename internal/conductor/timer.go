package conductor

import (
	"sync"
	"time"

	"github.com/accordlabs/accord/backend/internal/config"
)

// TurnTimer bounds one speaking turn. It fires its expiration callback at
// most once per countdown; Reset re-arms it from the full duration and
// cancels any pending fire from the previous turn.
type TurnTimer struct {
	mu       sync.Mutex
	duration time.Duration
	deadline time.Time
	timer    *time.Timer
	gen      uint64
	fired    bool
	onExpire func()
}

// NewTurnTimer creates a stopped timer. The duration is clamped into the
// allowed 1–30 minute range.
func NewTurnTimer(duration time.Duration, onExpire func()) *TurnTimer {
	return &TurnTimer{
		duration: config.ClampTurnDuration(duration),
		onExpire: onExpire,
	}
}

// Start arms the countdown. Starting an already-running timer restarts it.
func (t *TurnTimer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.arm()
}

// Reset cancels any pending expiration and restarts the countdown from the
// configured duration. Called on every turn-ownership change.
func (t *TurnTimer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.arm()
}

// arm must be called with the lock held. The generation captured by the
// callback outlives Stop on the underlying time.Timer: a callback already
// dispatched when the countdown is re-armed carries a stale generation and
// is discarded in expire.
func (t *TurnTimer) arm() {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.fired = false
	t.deadline = time.Now().Add(t.duration)
	t.timer = time.AfterFunc(t.duration, func() { t.expire(gen) })
}

// Stop cancels the countdown without re-arming.
func (t *TurnTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *TurnTimer) expire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.fired || t.timer == nil {
		t.mu.Unlock()
		return
	}
	t.fired = true
	cb := t.onExpire
	t.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// Duration returns the configured countdown length.
func (t *TurnTimer) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.duration
}

// Remaining returns the time left in the current countdown.
func (t *TurnTimer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer == nil {
		return 0
	}
	rem := time.Until(t.deadline)
	if rem < 0 {
		return 0
	}
	return rem
}

// Progress reports remaining/duration in [0,1].
func (t *TurnTimer) Progress() float64 {
	t.mu.Lock()
	duration := t.duration
	t.mu.Unlock()
	if duration <= 0 {
		return 0
	}
	return float64(t.Remaining()) / float64(duration)
}

// timerRegistry holds at most one cooperative countdown per session.
// Re-arming a session's timer replaces the previous one, so rapid
// reconnects never stack parallel timers for the same turn.
type timerRegistry struct {
	mu     sync.Mutex
	timers map[string]*TurnTimer
}

func newTimerRegistry() *timerRegistry {
	return &timerRegistry{timers: make(map[string]*TurnTimer)}
}

// arm installs and starts a timer for the session, replacing any existing
// one.
func (r *timerRegistry) arm(sessionID string, duration time.Duration, onExpire func()) *TurnTimer {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.timers[sessionID]; ok {
		old.Stop()
	}
	t := NewTurnTimer(duration, onExpire)
	r.timers[sessionID] = t
	t.Start()
	return t
}

// get returns the session's timer, if any.
func (r *timerRegistry) get(sessionID string) (*TurnTimer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.timers[sessionID]
	return t, ok
}

// drop stops and removes the session's timer.
func (r *timerRegistry) drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[sessionID]; ok {
		t.Stop()
		delete(r.timers, sessionID)
	}
}
