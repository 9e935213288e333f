package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"ethpool/core/events"
)

const (
	defaultEventBuffer = 64
	wsWriteTimeout     = 10 * time.Second
)

type subscriber struct {
	ch     chan []byte
	filter map[string]struct{}
	// evicted is closed when the hub drops a subscriber that fell behind.
	evicted chan struct{}
}

func (s *subscriber) wants(eventType string) bool {
	if len(s.filter) == 0 {
		return true
	}
	_, ok := s.filter[eventType]
	return ok
}

// EventHub fans committed ledger events out to stream subscribers. It
// implements events.Emitter. Slow subscribers are evicted rather than
// blocking the ledger.
type EventHub struct {
	mu     sync.Mutex
	buffer int
	subs   map[*subscriber]struct{}
	closed bool
}

// NewEventHub builds a hub with the given per-subscriber queue length.
func NewEventHub(buffer int) *EventHub {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &EventHub{buffer: buffer, subs: make(map[*subscriber]struct{})}
}

// Emit implements events.Emitter.
func (h *EventHub) Emit(evt events.Event) {
	if h == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if !sub.wants(payload.Type) {
			continue
		}
		select {
		case sub.ch <- data:
		default:
			delete(h.subs, sub)
			close(sub.evicted)
		}
	}
}

// Subscribe registers a subscriber for the given event types (all when
// empty). The returned cancel function must be called to release it.
func (h *EventHub) Subscribe(types []string) (<-chan []byte, <-chan struct{}, func()) {
	sub := &subscriber{
		ch:      make(chan []byte, h.buffer),
		filter:  make(map[string]struct{}, len(types)),
		evicted: make(chan struct{}),
	}
	for _, t := range types {
		if trimmed := strings.TrimSpace(t); trimmed != "" {
			sub.filter[trimmed] = struct{}{}
		}
	}
	h.mu.Lock()
	if h.closed {
		close(sub.evicted)
	} else {
		h.subs[sub] = struct{}{}
	}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			h.mu.Unlock()
		})
	}
	return sub.ch, sub.evicted, cancel
}

// Subscribers returns the number of live subscribers.
func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close evicts every subscriber and rejects new ones.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.evicted)
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var types []string
	if raw := strings.TrimSpace(r.URL.Query().Get("types")); raw != "" {
		types = strings.Split(raw, ",")
	}
	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: origins})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	updates, evicted, cancel := s.hub.Subscribe(types)
	defer cancel()
	// The stream is write-only; CloseRead cancels ctx once the client goes away.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case <-evicted:
			_ = conn.Close(websocket.StatusGoingAway, "subscriber evicted")
			return
		case data := <-updates:
			if err := writeFrame(ctx, conn, data); err != nil {
				return
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
