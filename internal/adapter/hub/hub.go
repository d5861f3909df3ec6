package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/agent-telemetry/internal/adapter/metrics"
	"github.com/user/agent-telemetry/internal/domain"
)

type subscriber struct {
	id          string
	filter      domain.SubscriberFilter
	sink        domain.SubscriberSink
	connectedAt time.Time
}

// Hub holds the set of live subscribers and pushes newly produced records
// to every subscriber whose filter matches. Delivery is best-effort and
// fire-and-forget per subscriber: a failing sink is unsubscribed, never a
// process-wide error. The subscriber set is mutated only by subscribe/
// unsubscribe and iterated only during publish.
type Hub struct {
	logger *slog.Logger
	m      *metrics.SinkMetrics
	max    int

	mu   sync.RWMutex
	subs map[string]*subscriber
}

// New creates a hub capped at maxSubscribers concurrent clients.
func New(maxSubscribers int, logger *slog.Logger, m *metrics.SinkMetrics) *Hub {
	return &Hub{
		logger: logger.With("component", "fanout_hub"),
		m:      m,
		max:    maxSubscribers,
		subs:   make(map[string]*subscriber),
	}
}

// Subscribe registers a sink with a per-subscriber filter and returns the
// subscriber id.
func (h *Hub) Subscribe(f domain.SubscriberFilter, sink domain.SubscriberSink) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.max > 0 && len(h.subs) >= h.max {
		return "", domain.ErrSubscriberLimit
	}

	id := uuid.NewString()
	h.subs[id] = &subscriber{
		id:          id,
		filter:      f,
		sink:        sink,
		connectedAt: time.Now().UTC(),
	}
	h.m.Subscribers.Set(float64(len(h.subs)))
	h.logger.Info("subscriber connected", "subscriber_id", id, "task_id", f.TaskID, "type", f.Type, "severity", f.Severity)
	return id, nil
}

// Unsubscribe removes the subscriber. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(id)
}

// Publish delivers the record synchronously to every matching subscriber.
// Sinks that return an error are auto-unsubscribed after the delivery
// pass.
func (h *Hub) Publish(rec domain.Record) {
	payload, err := json.Marshal(rec)
	if err != nil {
		h.logger.Error("failed to marshal record for fan-out", "record_id", rec.ID, "error", err)
		return
	}

	var failed []string

	h.mu.RLock()
	for _, sub := range h.subs {
		if !sub.filter.Matches(rec) {
			continue
		}
		if err := sub.sink.Send(payload); err != nil {
			h.logger.Warn("subscriber sink failed, unsubscribing", "subscriber_id", sub.id, "error", err)
			failed = append(failed, sub.id)
			h.m.Published.WithLabelValues("failed").Inc()
			continue
		}
		h.m.Published.WithLabelValues("delivered").Inc()
	}
	h.mu.RUnlock()

	if len(failed) > 0 {
		h.mu.Lock()
		for _, id := range failed {
			h.removeLocked(id)
		}
		h.mu.Unlock()
	}
}

// SubscriberCount returns the current number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) removeLocked(id string) {
	if _, ok := h.subs[id]; !ok {
		return
	}
	delete(h.subs, id)
	h.m.Subscribers.Set(float64(len(h.subs)))
	h.logger.Info("subscriber disconnected", "subscriber_id", id)
}
