package engine

import (
	"sync"
	"time"
)

// ProgressEvent is emitted after a step is delivered.
type ProgressEvent struct {
	InstanceID   string    `json:"instance_id"`
	SequenceType string    `json:"sequence_type"`
	Recipient    string    `json:"recipient"`
	StepIndex    int       `json:"step_index"`
	Slot         string    `json:"slot"`
	SentAt       time.Time `json:"sent_at"`
}

// ProgressHub fans step-sent events out to live subscribers (the progress
// websocket). Slow subscribers drop events rather than block the executor.
type ProgressHub struct {
	mu   sync.Mutex
	subs map[chan ProgressEvent]struct{}
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{subs: make(map[chan ProgressEvent]struct{})}
}

// Subscribe registers a new subscriber; call the returned func to leave.
func (h *ProgressHub) Subscribe() (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to all current subscribers without blocking.
func (h *ProgressHub) Publish(ev ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
