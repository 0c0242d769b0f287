// Package events fans session events out to live transports (websocket,
// SSE). Publishing never blocks: a subscriber that cannot keep up loses
// events rather than stalling the conversation.
package events

import "sync"

// Type labels a live event.
type Type string

const (
	TypePhase        Type = "phase"
	TypeTurn         Type = "turn"
	TypeTimer        Type = "timer"
	TypeAnalysis     Type = "analysis"
	TypeIntervention Type = "intervention"
	TypeMediator     Type = "mediator"
)

// Event is one live notification for a session.
type Event struct {
	Type      Type   `json:"type"`
	SessionID string `json:"sessionId"`
	Payload   any    `json:"payload,omitempty"`
}

// Bus is an in-process publish/subscribe hub keyed by session id.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

// NewBus creates an empty hub.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers a listener for one session. The returned channel is
// buffered; call the cancel function to detach.
func (b *Bus) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, 32)

	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan Event]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[sessionID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(b.subs, sessionID)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of its session. Slow
// subscribers are skipped.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[ev.SessionID] {
		select {
		case ch <- ev:
		default:
		}
	}
}
