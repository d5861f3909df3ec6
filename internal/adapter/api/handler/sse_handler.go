package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/user/agent-telemetry/internal/domain"
)

// StreamHandler bridges the fan-out hub to server-sent events. Each
// connection becomes one hub subscriber whose filter is built from the
// request's query parameters.
type StreamHandler struct {
	hub       domain.Publisher
	logger    *slog.Logger
	heartbeat time.Duration
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(hub domain.Publisher, logger *slog.Logger, heartbeat time.Duration) *StreamHandler {
	return &StreamHandler{hub: hub, logger: logger, heartbeat: heartbeat}
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	q := r.URL.Query()
	filter := domain.SubscriberFilter{
		TaskID:   q.Get("task_id"),
		Type:     q.Get("type"),
		Severity: q.Get("severity"),
		Verbose:  q.Get("verbose") == "true",
	}

	sink := newSSESink(64)
	id, err := h.hub.Subscribe(filter, sink)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriberLimit) {
			http.Error(w, "Too many subscribers", http.StatusServiceUnavailable)
			return
		}
		h.logger.Error("failed to subscribe stream client", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	defer h.hub.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sink.ch:
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

// sseSink buffers deliveries between the hub's publish path and the
// connection goroutine. A full buffer drops the record rather than block
// publication to other subscribers.
type sseSink struct {
	ch chan []byte
}

func newSSESink(buffer int) *sseSink {
	return &sseSink{ch: make(chan []byte, buffer)}
}

func (s *sseSink) Send(payload []byte) error {
	select {
	case s.ch <- payload:
	default:
		// Slow client; drop the record for this subscriber only.
	}
	return nil
}
