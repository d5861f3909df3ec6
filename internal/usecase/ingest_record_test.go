package usecase

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zeebo/blake3"

	"github.com/user/agent-telemetry/internal/adapter/metrics"
	"github.com/user/agent-telemetry/internal/adapter/redact"
	"github.com/user/agent-telemetry/internal/domain"
	"github.com/user/agent-telemetry/internal/domain/mocks"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMetrics() *metrics.SinkMetrics {
	return metrics.New(prometheus.NewRegistry())
}

func newIngestFixture(t *testing.T) (*IngestRecordUseCase, *mocks.MockRecordStore, *mocks.MockPublisher) {
	t.Helper()

	redactor, err := redact.New(redact.DefaultRules(), redact.ModeStandard, testLogger())
	if err != nil {
		t.Fatalf("failed to build redactor: %v", err)
	}

	store := &mocks.MockRecordStore{}
	pub := &mocks.MockPublisher{}
	uc := NewIngestRecordUseCase(store, pub, redactor, testLogger(), testMetrics(), 1.0, 1.0)
	return uc, store, pub
}

func TestIngest_EnrichesRecord(t *testing.T) {
	uc, store, _ := newIngestFixture(t)

	rec := domain.Record{Type: "tool_invoked", TaskID: "T1"}
	ack, err := uc.Ingest(context.Background(), &rec)
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if err := <-ack.Written(); err != nil {
		t.Fatalf("ack failed: %v", err)
	}

	if len(store.AppendedRecords) != 1 {
		t.Fatalf("expected 1 appended record, got %d", len(store.AppendedRecords))
	}
	got := store.AppendedRecords[0]
	if got.ID == "" {
		t.Error("server must assign a record id")
	}
	if got.Timestamp.IsZero() || got.Timestamp.Location() != time.UTC {
		t.Errorf("server must assign a UTC timestamp, got %v", got.Timestamp)
	}
	if got.Category != domain.CategoryEvent {
		t.Errorf("default category should be event, got %s", got.Category)
	}
	if got.Severity != domain.SeverityInfo {
		t.Errorf("default severity should be info, got %s", got.Severity)
	}
}

func TestIngest_PreservesCallerFields(t *testing.T) {
	uc, store, _ := newIngestFixture(t)

	ts := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	rec := domain.Record{
		ID:        "caller-id",
		Category:  domain.CategoryEvent,
		Type:      "task_started",
		Severity:  domain.SeverityWarn,
		Timestamp: ts,
	}
	if _, err := uc.Ingest(context.Background(), &rec); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	got := store.AppendedRecords[0]
	if got.ID != "caller-id" || got.Severity != domain.SeverityWarn || !got.Timestamp.Equal(ts) {
		t.Errorf("caller-supplied fields must be preserved: %+v", got)
	}
}

func TestIngest_HashesReasoningContentBeforeRedaction(t *testing.T) {
	uc, store, _ := newIngestFixture(t)

	original := "decided to email results to admin@example.com for review"
	rec := domain.Record{
		Category: domain.CategoryReasoning,
		Phase:    domain.PhaseDecision,
		TaskID:   "T1",
		Content:  original,
	}
	if _, err := uc.Ingest(context.Background(), &rec); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	got := store.AppendedRecords[0]
	if !got.Redacted {
		t.Error("record with an email must be marked redacted")
	}
	if strings.Contains(got.Content, "admin@example.com") {
		t.Errorf("stored content leaks the address: %q", got.Content)
	}

	sum := blake3.Sum256([]byte(original))
	if want := hex.EncodeToString(sum[:]); got.ContentHash != want {
		t.Errorf("content hash must cover the original content: got %s, want %s", got.ContentHash, want)
	}
}

func TestIngest_PublishesTheStoredRecord(t *testing.T) {
	uc, store, pub := newIngestFixture(t)

	rec := domain.Record{
		Category: domain.CategoryReasoning,
		TaskID:   "T1",
		Content:  "ping ops@example.com when done",
	}
	if _, err := uc.Ingest(context.Background(), &rec); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	published := pub.PublishedRecords()
	if len(published) != 1 {
		t.Fatalf("expected 1 published record, got %d", len(published))
	}

	// Live subscribers and history must see the same redacted content.
	stored := store.AppendedRecords[0]
	if published[0].Content != stored.Content || published[0].Redacted != stored.Redacted {
		t.Errorf("published record differs from stored record:\nstored:    %+v\npublished: %+v", stored, published[0])
	}
	if strings.Contains(published[0].Content, "ops@example.com") {
		t.Errorf("published content leaks the address: %q", published[0].Content)
	}
}

func TestIngest_StoreErrorNotPublished(t *testing.T) {
	uc, store, pub := newIngestFixture(t)
	store.AppendErr = domain.ErrQueueFull

	_, err := uc.Ingest(context.Background(), &domain.Record{Type: "tool_invoked"})
	if !errors.Is(err, domain.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if got := len(pub.PublishedRecords()); got != 0 {
		t.Errorf("nothing may be published when the append fails, got %d", got)
	}
}

func TestIngest_SampledOutResolvesImmediately(t *testing.T) {
	redactor, err := redact.New(redact.DefaultRules(), redact.ModeStandard, testLogger())
	if err != nil {
		t.Fatalf("failed to build redactor: %v", err)
	}
	store := &mocks.MockRecordStore{}
	pub := &mocks.MockPublisher{}
	// Zero sample rates drop every record deterministically.
	uc := NewIngestRecordUseCase(store, pub, redactor, testLogger(), testMetrics(), 0, 0)

	ack, err := uc.Ingest(context.Background(), &domain.Record{Type: "tool_invoked"})
	if err != nil {
		t.Fatalf("sampled-out ingest must not error: %v", err)
	}

	select {
	case err := <-ack.Written():
		if err != nil {
			t.Fatalf("sampled-out ack must resolve clean: %v", err)
		}
	default:
		t.Fatal("sampled-out ack must be pre-resolved")
	}
	select {
	case <-ack.Durable():
	default:
		t.Fatal("sampled-out ack must be durable immediately")
	}

	if len(store.AppendedRecords) != 0 || len(pub.PublishedRecords()) != 0 {
		t.Error("sampled-out records must be neither stored nor published")
	}
}

func TestIngestObservation(t *testing.T) {
	uc, store, _ := newIngestFixture(t)

	note := domain.ObservationNote{Message: "agent looped twice on retry", TaskID: "T1", Author: "operator"}
	rec, ack, err := uc.IngestObservation(context.Background(), note)
	if err != nil {
		t.Fatalf("observation ingest failed: %v", err)
	}
	if err := <-ack.Written(); err != nil {
		t.Fatalf("ack failed: %v", err)
	}

	if rec.Category != domain.CategoryObservation || rec.Type != "observation" {
		t.Errorf("note must become an observation record, got %+v", rec)
	}
	if rec.ID == "" || rec.Timestamp.IsZero() {
		t.Error("observation must be enriched like any record")
	}

	stored := store.AppendedRecords[0]
	if stored.Content != note.Message || stored.TaskID != note.TaskID || stored.Source != note.Author {
		t.Errorf("note fields lost in translation: %+v", stored)
	}
}
