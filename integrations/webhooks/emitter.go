package webhooks

import (
	"log/slog"
	"strings"
	"time"

	"ethpool/core/events"
)

// Emitter forwards committed ledger events to a dispatcher. It never blocks
// the ledger: when the queue is full the event is dropped and logged.
type Emitter struct {
	dispatcher *Dispatcher
	filter     map[string]struct{}
	logger     *slog.Logger
	now        func() time.Time
}

// NewEmitter wraps dispatcher. An empty types list forwards every event.
func NewEmitter(dispatcher *Dispatcher, types []string, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	filter := make(map[string]struct{}, len(types))
	for _, t := range types {
		if trimmed := strings.TrimSpace(t); trimmed != "" {
			filter[trimmed] = struct{}{}
		}
	}
	return &Emitter{dispatcher: dispatcher, filter: filter, logger: logger, now: time.Now}
}

// Emit implements events.Emitter.
func (e *Emitter) Emit(evt events.Event) {
	if e == nil || e.dispatcher == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	if len(e.filter) > 0 {
		if _, ok := e.filter[payload.Type]; !ok {
			return
		}
	}
	clone := payload.Clone()
	err := e.dispatcher.TryEnqueue(Payload{
		Type:       clone.Type,
		EmittedAt:  e.now().UTC(),
		Attributes: clone.Attributes,
	})
	if err != nil {
		e.logger.Warn("webhook event dropped",
			slog.String("event", clone.Type),
			slog.Any("error", err))
	}
}
