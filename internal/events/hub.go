// Package events carries call notifications to presentation layers.
package events

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/keshucs12345/callsim/internal/haptics"
)

// Type identifies an event.
type Type string

const (
	StateChanged      Type = "state_changed"
	LineStarted       Type = "line_started"
	Tick              Type = "tick"
	MissingCredential Type = "missing_credential"
	ScriptReady       Type = "script_ready"
	Haptic            Type = "haptic"
)

// Event is a notification about the current call. Only the fields that
// apply to its Type are set.
type Event struct {
	Type      Type      `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Time      time.Time `json:"time"`

	State   string `json:"state,omitempty"`
	Outcome string `json:"outcome,omitempty"`

	// LineNumber counts from 1.
	LineNumber int    `json:"line_number,omitempty"`
	Line       string `json:"line,omitempty"`

	ElapsedSeconds int `json:"elapsed_seconds,omitempty"`

	Source string `json:"source,omitempty"`
	Lines  int    `json:"lines,omitempty"`

	Intensity string `json:"intensity,omitempty"`
}

// Handler receives events.
type Handler func(Event)

type subscription struct {
	id      uint64
	types   []Type
	handler Handler
}

func (s subscription) wants(t Type) bool {
	return len(s.types) == 0 || slices.Contains(s.types, t)
}

// Hub delivers events to subscribers on a single goroutine, in publish
// order. Publish never blocks on a slow subscriber, and handlers may
// publish or call back into the publisher.
type Hub struct {
	logger *slog.Logger

	mu     sync.Mutex
	queue  []Event
	subs   []subscription
	nextID uint64
	closed bool

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewHub starts a Hub. Call Close to stop it.
func NewHub(logger *slog.Logger) *Hub {
	h := &Hub{
		logger: logger.With("subsystem", "events"),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go h.run()
	return h
}

// Publish queues e for delivery. Events published after Close are dropped.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.queue = append(h.queue, e)
	h.mu.Unlock()
	h.signal()
}

func (h *Hub) signal() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Subscribe registers handler for the given types, or for every event when
// none are given. The returned func unsubscribes; events already being
// delivered may still arrive.
func (h *Hub) Subscribe(handler Handler, types ...Type) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs = append(h.subs, subscription{id: id, types: types, handler: handler})
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.subs = slices.DeleteFunc(h.subs, func(s subscription) bool { return s.id == id })
	}
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		h.mu.Lock()
		for len(h.queue) == 0 && !h.closed {
			h.mu.Unlock()
			<-h.wake
			h.mu.Lock()
		}
		if len(h.queue) == 0 {
			h.mu.Unlock()
			return
		}
		batch := h.queue
		h.queue = nil
		subs := slices.Clone(h.subs)
		h.mu.Unlock()

		for _, e := range batch {
			for _, s := range subs {
				if s.wants(e.Type) {
					h.deliver(s, e)
				}
			}
		}
	}
}

func (h *Hub) deliver(s subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("event handler panicked", "event", string(e.Type), "panic", r)
		}
	}()
	s.handler(e)
}

// Close stops accepting events, delivers those already queued and waits
// for the delivery goroutine to exit. It must not be called from a
// handler. Close is idempotent.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()
		h.signal()
	})
	<-h.done
}

// Haptics returns a haptics device that publishes each pulse as a Haptic
// event, so remote screens can vibrate too.
func (h *Hub) Haptics() haptics.Haptics {
	return haptics.Func(func(i haptics.Intensity) {
		h.Publish(Event{Type: Haptic, Time: time.Now(), Intensity: i.String()})
	})
}
