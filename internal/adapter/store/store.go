package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/agent-telemetry/internal/adapter/metrics"
	"github.com/user/agent-telemetry/internal/domain"
)

// Stream prefixes. Observation notes ride the events stream with
// category "observation".
const (
	StreamEvents    = "events"
	StreamReasoning = "reasoning"
)

const defaultRecentWindow = 2048

// Config configures the store and its per-stream writers.
type Config struct {
	Dir           string
	RotateBytes   int64
	SyncBytes     int64
	FlushInterval time.Duration
	HighWater     int
	MaxQueue      int
	ChunkSize     int
	RecentWindow  int

	// Test seams forwarded to the writers.
	Now     func() time.Time
	NewSink SinkFactory
}

// Store wraps one writer per record category and answers historical
// queries from the same on-disk files the writers append to, so live
// subscribers and history never disagree on content.
type Store struct {
	logger    *slog.Logger
	dir       string
	maxQueue  int
	events    *Writer
	reasoning *Writer
	closed    atomic.Bool

	recentMu   sync.Mutex
	recent     []domain.Record
	recentCap  int
	recentNext int
}

// New creates the store and its writers.
func New(cfg Config, logger *slog.Logger, m *metrics.SinkMetrics) (*Store, error) {
	writerCfg := func(prefix string) WriterConfig {
		return WriterConfig{
			Dir:           cfg.Dir,
			Prefix:        prefix,
			RotateBytes:   cfg.RotateBytes,
			SyncBytes:     cfg.SyncBytes,
			FlushInterval: cfg.FlushInterval,
			HighWater:     cfg.HighWater,
			MaxQueue:      cfg.MaxQueue,
			ChunkSize:     cfg.ChunkSize,
			Now:           cfg.Now,
			NewSink:       cfg.NewSink,
		}
	}

	events, err := NewWriter(writerCfg(StreamEvents), logger, m)
	if err != nil {
		return nil, err
	}
	reasoning, err := NewWriter(writerCfg(StreamReasoning), logger, m)
	if err != nil {
		events.Close()
		return nil, err
	}

	recentCap := cfg.RecentWindow
	if recentCap <= 0 {
		recentCap = defaultRecentWindow
	}

	return &Store{
		logger:    logger.With("component", "record_store"),
		dir:       cfg.Dir,
		maxQueue:  events.cfg.MaxQueue,
		events:    events,
		reasoning: reasoning,
		recent:    make([]domain.Record, 0, recentCap),
		recentCap: recentCap,
	}, nil
}

// Append enqueues the (already redacted) record into the writer for its
// category and remembers it in the recent window for rolling statistics.
func (s *Store) Append(ctx context.Context, rec domain.Record) (domain.Ack, error) {
	w := s.events
	if rec.Category == domain.CategoryReasoning {
		w = s.reasoning
	}

	ack, err := w.Append(rec)
	if err != nil {
		return nil, err
	}
	s.remember(rec)
	return ack, nil
}

// ListEvents reads persisted event/observation records in insertion order.
func (s *Store) ListEvents(ctx context.Context, f domain.RecordFilter) ([]domain.Record, string, error) {
	return readPage(ctx, s.dir, StreamEvents, f, s.logger)
}

// ListChainOfThought is the same contract scoped to the reasoning stream.
func (s *Store) ListChainOfThought(ctx context.Context, f domain.RecordFilter) ([]domain.Record, string, error) {
	return readPage(ctx, s.dir, StreamReasoning, f, s.logger)
}

// Recent returns up to limit of the most recently appended records, in
// append order.
func (s *Store) Recent(limit int) []domain.Record {
	s.recentMu.Lock()
	defer s.recentMu.Unlock()

	var ordered []domain.Record
	if len(s.recent) < s.recentCap {
		ordered = append(ordered, s.recent...)
	} else {
		ordered = append(ordered, s.recent[s.recentNext:]...)
		ordered = append(ordered, s.recent[:s.recentNext]...)
	}

	if limit > 0 && len(ordered) > limit {
		ordered = ordered[len(ordered)-limit:]
	}
	return ordered
}

// Close drains and shuts down both writers. Idempotent.
func (s *Store) Close() error {
	s.closed.Store(true)
	return errors.Join(s.events.Close(), s.reasoning.Close())
}

// Closed reports whether Close has been called.
func (s *Store) Closed() bool {
	return s.closed.Load()
}

// QueueDepth returns the depth of the busiest stream's queue; the status
// aggregator compares it against MaxQueueSize.
func (s *Store) QueueDepth() int {
	return max(s.events.QueueDepth(), s.reasoning.QueueDepth())
}

// MaxQueueSize returns the per-stream queue cap.
func (s *Store) MaxQueueSize() int {
	return s.maxQueue
}

// BackpressureEvents returns the total suspend-on-drain count across
// streams.
func (s *Store) BackpressureEvents() uint64 {
	return s.events.BackpressureEvents() + s.reasoning.BackpressureEvents()
}

// ActiveFiles returns the currently open segment path per stream.
func (s *Store) ActiveFiles() map[string]string {
	files := make(map[string]string, 2)
	if path := s.events.ActiveFile(); path != "" {
		files[StreamEvents] = path
	}
	if path := s.reasoning.ActiveFile(); path != "" {
		files[StreamReasoning] = path
	}
	return files
}

func (s *Store) remember(rec domain.Record) {
	s.recentMu.Lock()
	defer s.recentMu.Unlock()

	if len(s.recent) < s.recentCap {
		s.recent = append(s.recent, rec)
		return
	}
	s.recent[s.recentNext] = rec
	s.recentNext = (s.recentNext + 1) % s.recentCap
}
