package usecase

import (
	"context"
	"encoding/hex"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/user/agent-telemetry/internal/adapter/metrics"
	"github.com/user/agent-telemetry/internal/adapter/redact"
	"github.com/user/agent-telemetry/internal/domain"
)

// IngestRecordUseCase is the single append path: enrich, redact, persist
// and fan out. The writer and the hub always see the same redacted record
// so live subscribers and history never disagree on content.
type IngestRecordUseCase struct {
	store    domain.RecordStore
	hub      domain.Publisher
	redactor *redact.Redactor
	logger   *slog.Logger
	m        *metrics.SinkMetrics

	eventSampleRate     float64
	reasoningSampleRate float64
}

// NewIngestRecordUseCase creates the ingest use case. Sample rates of 1.0
// (or higher) persist everything.
func NewIngestRecordUseCase(
	store domain.RecordStore,
	hub domain.Publisher,
	redactor *redact.Redactor,
	logger *slog.Logger,
	m *metrics.SinkMetrics,
	eventSampleRate, reasoningSampleRate float64,
) *IngestRecordUseCase {
	return &IngestRecordUseCase{
		store:               store,
		hub:                 hub,
		redactor:            redactor,
		logger:              logger,
		m:                   m,
		eventSampleRate:     eventSampleRate,
		reasoningSampleRate: reasoningSampleRate,
	}
}

// Ingest enriches the record with server-side data, hashes original
// reasoning content, redacts, then appends and publishes. The returned
// ack follows the writer's two-tier contract.
func (uc *IngestRecordUseCase) Ingest(ctx context.Context, rec *domain.Record) (domain.Ack, error) {
	// 1. Enrich with server-side data.
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.Category == "" {
		rec.Category = domain.CategoryEvent
	}
	if rec.Category != domain.CategoryReasoning && rec.Severity == "" {
		rec.Severity = domain.SeverityInfo
	}

	// 2. Hash the original content before any redaction so integrity
	// stays verifiable when the stored content is redacted.
	if rec.Category == domain.CategoryReasoning && rec.Content != "" && rec.ContentHash == "" {
		sum := blake3.Sum256([]byte(rec.Content))
		rec.ContentHash = hex.EncodeToString(sum[:])
	}

	// 3. Per-category sampling.
	rate := uc.eventSampleRate
	if rec.Category == domain.CategoryReasoning {
		rate = uc.reasoningSampleRate
	}
	if rate < 1.0 && rand.Float64() >= rate {
		uc.m.RecordsTotal.WithLabelValues(rec.Category, "sampled_out").Inc()
		return resolvedAck(), nil
	}

	// 4. Redact.
	redacted, wasRedacted := uc.redactor.Redact(*rec)
	if wasRedacted {
		redacted.Redacted = true
		uc.m.RedactedTotal.Inc()
	}

	// 5. Persist, then offer the same redacted record for live delivery.
	ack, err := uc.store.Append(ctx, redacted)
	if err != nil {
		status := "error_queue"
		if err == domain.ErrClosed {
			status = "error_closed"
		}
		uc.m.RecordsTotal.WithLabelValues(rec.Category, status).Inc()
		uc.logger.Error("failed to append record", "error", err, "record_id", rec.ID)
		return nil, err
	}

	uc.hub.Publish(redacted)
	uc.m.RecordsTotal.WithLabelValues(rec.Category, "accepted").Inc()
	return ack, nil
}

// IngestObservation wraps a manually authored note as an observation
// record and sends it through the same append path.
func (uc *IngestRecordUseCase) IngestObservation(ctx context.Context, note domain.ObservationNote) (domain.Record, domain.Ack, error) {
	rec := domain.Record{
		Category: domain.CategoryObservation,
		Type:     "observation",
		Severity: domain.SeverityInfo,
		Content:  note.Message,
		TaskID:   note.TaskID,
		Source:   note.Author,
	}

	ack, err := uc.Ingest(ctx, &rec)
	if err != nil {
		return domain.Record{}, nil, err
	}
	return rec, ack, nil
}

// alreadyDone is a pre-resolved ack used for sampled-out records.
type alreadyDone struct {
	written chan error
	durable chan struct{}
}

func resolvedAck() domain.Ack {
	a := &alreadyDone{written: make(chan error), durable: make(chan struct{})}
	close(a.written)
	close(a.durable)
	return a
}

func (a *alreadyDone) Written() <-chan error    { return a.written }
func (a *alreadyDone) Durable() <-chan struct{} { return a.durable }
