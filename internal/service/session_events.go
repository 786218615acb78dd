package service

import (
	"sync"

	"github.com/stemsi/examquest-backend/internal/model"
)

// EventType names a timer-driven session event.
type EventType string

const (
	EventTick     EventType = "tick"
	EventFinished EventType = "finished"
	EventFailed   EventType = "failed"
)

// SessionEvent is pushed to subscribers of a session.
type SessionEvent struct {
	Type      EventType
	Remaining int
	Summary   *model.Summary
	Err       error
}

// subscriberBuffer absorbs a burst of ticks while a socket write is slow.
const subscriberBuffer = 16

// eventHub fans session events out to subscribers. Slow subscribers lose ticks rather than
// blocking the countdown.
type eventHub struct {
	mu   sync.Mutex
	subs map[string]map[chan SessionEvent]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[string]map[chan SessionEvent]struct{})}
}

func (h *eventHub) subscribe(sessionID string) (<-chan SessionEvent, func()) {
	ch := make(chan SessionEvent, subscriberBuffer)

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan SessionEvent]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[sessionID][ch]; ok {
			delete(h.subs[sessionID], ch)
			close(ch)
		}
	}
}

func (h *eventHub) publish(sessionID string, ev SessionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[sessionID] {
		select {
		case ch <- ev:
		default:
			// Terminal events must not be lost; make room by dropping the oldest tick.
			if ev.Type != EventTick {
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- ev:
				default:
				}
			}
		}
	}
}

func (h *eventHub) close(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[sessionID] {
		close(ch)
	}
	delete(h.subs, sessionID)
}
