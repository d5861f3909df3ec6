package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/agent-telemetry/internal/adapter/metrics"
	"github.com/user/agent-telemetry/internal/domain"
)

const (
	defaultHighWater     = 64
	defaultChunkSize     = 128
	defaultSyncBytes     = 64 * 1024
	defaultFlushInterval = 250 * time.Millisecond
	defaultMaxQueue      = 4096

	dateLayout = "2006-01-02"
	fileExt    = ".jsonl"
	filePerm   = 0644
)

// WriterConfig configures one batched durable writer.
type WriterConfig struct {
	Dir           string
	Prefix        string
	RotateBytes   int64
	SyncBytes     int64
	FlushInterval time.Duration
	HighWater     int
	MaxQueue      int
	ChunkSize     int

	// Now and NewSink are seams for tests; nil selects the real clock and
	// the file sink.
	Now     func() time.Time
	NewSink SinkFactory
}

type pendingRecord struct {
	data []byte
	ack  *ack
}

// Writer is a batching, rotating, fsync-disciplined append-only writer.
// Producers only ever enqueue; a single flusher goroutine serializes all
// flush, rotation and sync activity, so no two flushes race on one
// writer. Durability is periodic, not per-write: a crash between a
// completed chunk write and the next sync point loses at most that
// window of appended records.
type Writer struct {
	cfg    WriterConfig
	logger *slog.Logger
	m      *metrics.SinkMetrics

	mu         sync.Mutex
	queue      []pendingRecord
	closed     bool
	activeFile string

	wake      chan struct{}
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error

	// Flusher-owned state. Only the run goroutine touches these.
	sink         Sink
	fileDate     string
	fileIndex    int
	fileBytes    int64
	unsynced     int64
	unsyncedAcks []*ack

	backpressure atomic.Uint64
}

// NewWriter creates the writer and starts its flusher goroutine. The
// first segment is opened lazily on the first flush.
func NewWriter(cfg WriterConfig, logger *slog.Logger, m *metrics.SinkMetrics) (*Writer, error) {
	if cfg.Dir == "" || cfg.Prefix == "" {
		return nil, errors.New("writer requires a directory and a file prefix")
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", cfg.Dir, err)
	}
	if cfg.RotateBytes <= 0 {
		return nil, errors.New("writer requires a positive rotation size")
	}
	if cfg.SyncBytes <= 0 {
		cfg.SyncBytes = defaultSyncBytes
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.HighWater <= 0 {
		cfg.HighWater = defaultHighWater
	}
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = defaultMaxQueue
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewSink == nil {
		cfg.NewSink = newFileSink
	}

	w := &Writer{
		cfg:    cfg,
		logger: logger.With("component", "writer", "stream", cfg.Prefix),
		m:      m,
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Append serializes the record and enqueues it. It never blocks the
// caller: reaching the high-water mark triggers an immediate flush signal
// instead of waiting for the interval timer, and the hard queue cap
// rejects with ErrQueueFull.
func (w *Writer) Append(rec domain.Record) (domain.Ack, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record %s: %w", rec.ID, err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, domain.ErrClosed
	}
	if len(w.queue) >= w.cfg.MaxQueue {
		w.mu.Unlock()
		return nil, domain.ErrQueueFull
	}
	a := newAck()
	w.queue = append(w.queue, pendingRecord{data: data, ack: a})
	depth := len(w.queue)
	w.mu.Unlock()

	w.m.QueueDepth.WithLabelValues(w.cfg.Prefix).Set(float64(depth))
	if depth >= w.cfg.HighWater {
		w.signal()
	}
	return a, nil
}

// Flush wakes the flusher outside its timer schedule.
func (w *Writer) Flush() {
	w.signal()
}

// Close forces a final flush of all queued records, syncs and closes the
// sink. It is idempotent and safe to call from a shutdown handler.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		close(w.quit)
	})
	<-w.done
	return w.closeErr
}

// ActiveFile returns the path of the currently open segment, or "" when
// no file is open. Introspection only.
func (w *Writer) ActiveFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeFile
}

// QueueDepth returns the number of records queued but not yet flushed.
func (w *Writer) QueueDepth() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// BackpressureEvents returns how many times a flush suspended on a busy
// sink.
func (w *Writer) BackpressureEvents() uint64 {
	return w.backpressure.Load()
}

func (w *Writer) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Writer) run() {
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.wake:
			w.flush()
		case <-ticker.C:
			w.flush()
		case <-w.quit:
			w.flush()
			w.shutdown()
			close(w.done)
			return
		}
	}
}

// flush drains the queue in chunks, one sink write per chunk. On an I/O
// error it rejects only the records still pending; acks from earlier
// chunks in the same pass stay resolved — there is no atomicity across a
// multi-chunk flush.
func (w *Writer) flush() {
	flushed := false
	for {
		chunk, acks := w.popChunk()
		if len(acks) == 0 {
			break
		}
		flushed = true

		if err := w.writeChunk(chunk); err != nil {
			w.logger.Error("flush failed, rejecting pending records", "error", err)
			for _, a := range acks {
				a.resolveWritten(err)
			}
			w.failQueued(err)
			return
		}

		for _, a := range acks {
			a.resolveWritten(nil)
		}
		w.unsyncedAcks = append(w.unsyncedAcks, acks...)

		if w.unsynced >= w.cfg.SyncBytes {
			w.sync()
		}
	}
	if flushed {
		w.m.FlushesTotal.Inc()
	}
}

func (w *Writer) popChunk() ([]byte, []*ack) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.queue) == 0 {
		return nil, nil
	}
	n := min(len(w.queue), w.cfg.ChunkSize)

	var chunk []byte
	acks := make([]*ack, 0, n)
	for _, p := range w.queue[:n] {
		chunk = append(chunk, p.data...)
		acks = append(acks, p.ack)
	}
	w.queue = w.queue[n:]
	w.m.QueueDepth.WithLabelValues(w.cfg.Prefix).Set(float64(len(w.queue)))
	return chunk, acks
}

func (w *Writer) writeChunk(chunk []byte) error {
	if err := w.ensureSink(int64(len(chunk))); err != nil {
		return err
	}

	for {
		n, err := w.sink.Write(chunk)
		if errors.Is(err, domain.ErrSinkBusy) {
			// Backpressure is a deliberate suspension, not an error. The
			// in-memory queue keeps accepting appends up to its cap while
			// the flusher waits here.
			w.backpressure.Add(1)
			w.m.BackpressureTotal.Inc()
			<-w.sink.Drained()
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to write chunk to %s: %w", w.ActiveFile(), err)
		}
		w.fileBytes += int64(n)
		w.unsynced += int64(n)
		w.m.FlushBytesTotal.Add(float64(n))
		return nil
	}
}

// ensureSink opens the segment for the current UTC date and rotates when
// the pending chunk would push the current file over the size cap. The
// check runs before the write, so a chunk is never split across files and
// a file never exceeds the cap.
func (w *Writer) ensureSink(chunkLen int64) error {
	for {
		date := w.cfg.Now().UTC().Format(dateLayout)
		if w.sink != nil && date == w.fileDate && (w.fileBytes == 0 || w.fileBytes+chunkLen <= w.cfg.RotateBytes) {
			return nil
		}
		// Rotation may reopen a partially filled segment after a restart;
		// loop until the chunk fits (an empty segment always does).
		if err := w.rotate(date); err != nil {
			return err
		}
	}
}

func (w *Writer) rotate(date string) error {
	if w.sink != nil {
		w.sync()
		if err := w.sink.Close(); err != nil {
			w.logger.Error("failed to close segment before rotating", "error", err)
		}
		w.sink = nil
		w.m.RotationsTotal.Inc()
	}

	if date != w.fileDate {
		// New date (or first open after start): recover the first
		// under-capacity index by scanning. Within a date the index
		// pointer advances without rescanning.
		w.fileDate = date
		w.fileIndex = w.scanIndex(date, 0)
	} else {
		w.fileIndex = w.scanIndex(date, w.fileIndex+1)
	}

	path := w.filePath(date, w.fileIndex)
	sink, err := w.cfg.NewSink(path)
	if err != nil {
		return fmt.Errorf("failed to open segment %s: %w", path, err)
	}

	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}

	w.sink = sink
	w.fileBytes = size
	w.unsynced = 0

	w.mu.Lock()
	w.activeFile = path
	w.mu.Unlock()

	w.logger.Info("opened segment", "path", path, "size", size)
	return nil
}

// scanIndex probes index from, from+1, ... for the first segment that is
// missing or still under the size cap.
func (w *Writer) scanIndex(date string, from int) int {
	for i := from; ; i++ {
		info, err := os.Stat(w.filePath(date, i))
		if err != nil {
			return i
		}
		if info.Size() < w.cfg.RotateBytes {
			return i
		}
	}
}

func (w *Writer) filePath(date string, index int) string {
	return filepath.Join(w.cfg.Dir, fmt.Sprintf("%s-%s-%d%s", w.cfg.Prefix, date, index, fileExt))
}

func (w *Writer) sync() {
	if w.sink == nil {
		return
	}
	if err := w.sink.Sync(); err != nil {
		w.logger.Error("failed to sync segment", "error", err)
		return
	}
	for _, a := range w.unsyncedAcks {
		a.resolveDurable()
	}
	w.unsyncedAcks = nil
	w.unsynced = 0
}

// failQueued rejects everything still in the queue after a chunk write
// failed. Retry policy is the caller's responsibility.
func (w *Writer) failQueued(err error) {
	w.mu.Lock()
	queued := w.queue
	w.queue = nil
	w.mu.Unlock()

	for _, p := range queued {
		p.ack.resolveWritten(err)
	}
	w.m.QueueDepth.WithLabelValues(w.cfg.Prefix).Set(0)
}

func (w *Writer) shutdown() {
	w.sync()
	if w.sink != nil {
		if err := w.sink.Close(); err != nil {
			w.logger.Error("failed to close segment", "error", err)
			w.closeErr = err
		}
		w.sink = nil
	}
	w.mu.Lock()
	w.activeFile = ""
	w.mu.Unlock()
}
