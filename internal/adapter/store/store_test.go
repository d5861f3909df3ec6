package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/user/agent-telemetry/internal/domain"
)

func newTestStore(t *testing.T, dir string) *Store {
	t.Helper()

	s, err := New(Config{
		Dir:           dir,
		RotateBytes:   1 << 20,
		FlushInterval: 10 * time.Millisecond,
		RecentWindow:  64,
	}, testLogger(), testMetrics())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func appendWait(t *testing.T, s *Store, rec domain.Record) {
	t.Helper()
	ack, err := s.Append(context.Background(), rec)
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	waitWritten(t, ack)
}

func reasoningRecord(taskID, phase string, seq int) domain.Record {
	return domain.Record{
		ID:        uuid.NewString(),
		Category:  domain.CategoryReasoning,
		Phase:     phase,
		AgentID:   "agent-1",
		TaskID:    taskID,
		Content:   fmt.Sprintf("step %d", seq),
		Timestamp: time.Now().UTC(),
	}
}

func TestStore_RoutesCategoriesToStreams(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir)

	appendWait(t, s, eventRecord(0))
	appendWait(t, s, domain.Record{
		ID:        uuid.NewString(),
		Category:  domain.CategoryObservation,
		Type:      "observation",
		Content:   "operator note",
		Timestamp: time.Now().UTC(),
	})
	appendWait(t, s, reasoningRecord("T1", domain.PhaseAnalysis, 0))

	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	events, _, err := s.ListEvents(context.Background(), domain.RecordFilter{})
	if err != nil {
		t.Fatalf("list events failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 event-stream records (event + observation), got %d", len(events))
	}
	if events[1].Category != domain.CategoryObservation {
		t.Errorf("observation should ride the events stream, got category %s", events[1].Category)
	}

	thoughts, _, err := s.ListChainOfThought(context.Background(), domain.RecordFilter{})
	if err != nil {
		t.Fatalf("list chain-of-thought failed: %v", err)
	}
	if len(thoughts) != 1 || thoughts[0].Category != domain.CategoryReasoning {
		t.Fatalf("expected exactly the reasoning record, got %+v", thoughts)
	}
}

func TestStore_PaginationIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir)

	const count = 10
	for i := 0; i < count; i++ {
		appendWait(t, s, eventRecord(i))
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	ctx := context.Background()
	var all []domain.Record
	cursor := ""
	pages := 0
	for {
		page, next, err := s.ListEvents(ctx, domain.RecordFilter{Cursor: cursor, Limit: 3})
		if err != nil {
			t.Fatalf("list page failed: %v", err)
		}

		// Same cursor, no intervening writes: the page must be identical.
		again, againNext, err := s.ListEvents(ctx, domain.RecordFilter{Cursor: cursor, Limit: 3})
		if err != nil {
			t.Fatalf("repeated list failed: %v", err)
		}
		if len(again) != len(page) || againNext != next {
			t.Fatalf("pagination not idempotent: %d/%q vs %d/%q", len(page), next, len(again), againNext)
		}
		for i := range page {
			if page[i].ID != again[i].ID {
				t.Fatalf("record %d differs between identical reads", i)
			}
		}

		all = append(all, page...)
		pages++
		if next == "" {
			break
		}
		cursor = next
	}

	if pages < 4 {
		t.Errorf("expected at least 4 pages of 3, got %d", pages)
	}
	if len(all) != count {
		t.Fatalf("expected %d records across pages, got %d", count, len(all))
	}
	seen := make(map[string]bool, count)
	for i, rec := range all {
		if seen[rec.ID] {
			t.Fatalf("record %s duplicated across pages", rec.ID)
		}
		seen[rec.ID] = true
		want := fmt.Sprintf("seq-%04d", i)
		if rec.Source != want {
			t.Fatalf("pagination broke ordering at %d: got %s", i, rec.Source)
		}
	}
}

func TestStore_CursorSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir)

	for i := 0; i < 6; i++ {
		appendWait(t, s, eventRecord(i))
	}

	ctx := context.Background()
	first, next, err := s.ListEvents(ctx, domain.RecordFilter{Limit: 3})
	if err != nil {
		t.Fatalf("first page failed: %v", err)
	}
	if len(first) != 3 || next == "" {
		t.Fatalf("expected a full first page with a cursor, got %d/%q", len(first), next)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// Cursors are plain file positions, valid across process restarts.
	s = newTestStore(t, dir)
	defer s.Close()

	rest, _, err := s.ListEvents(ctx, domain.RecordFilter{Cursor: next, Limit: 10})
	if err != nil {
		t.Fatalf("resume after restart failed: %v", err)
	}
	if len(rest) != 3 {
		t.Fatalf("expected the remaining 3 records, got %d", len(rest))
	}
	if rest[0].Source != "seq-0003" {
		t.Fatalf("resumed at the wrong position: %s", rest[0].Source)
	}
}

func TestStore_ListFilters(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir)

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	records := []domain.Record{
		{ID: uuid.NewString(), Category: domain.CategoryEvent, Type: "task_started", Severity: domain.SeverityInfo, TaskID: "T1", Timestamp: base},
		{ID: uuid.NewString(), Category: domain.CategoryEvent, Type: "tool_invoked", Severity: domain.SeverityInfo, TaskID: "T2", Timestamp: base.Add(time.Minute)},
		{ID: uuid.NewString(), Category: domain.CategoryEvent, Type: "task_failed", Severity: domain.SeverityError, TaskID: "T1", Timestamp: base.Add(2 * time.Minute)},
	}
	for _, rec := range records {
		appendWait(t, s, rec)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	tests := []struct {
		name   string
		filter domain.RecordFilter
		want   int
	}{
		{"by task", domain.RecordFilter{TaskID: "T1"}, 2},
		{"by type", domain.RecordFilter{Type: "tool_invoked"}, 1},
		{"by severity", domain.RecordFilter{Severity: domain.SeverityError}, 1},
		{"by since", domain.RecordFilter{Since: base.Add(30 * time.Second)}, 2},
		{"by until", domain.RecordFilter{Until: base.Add(30 * time.Second)}, 1},
		{"no match", domain.RecordFilter{TaskID: "T9"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := s.ListEvents(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("expected %d records, got %d", tt.want, len(got))
			}
		})
	}
}

func TestStore_InvalidCursorRejected(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir)
	defer s.Close()

	appendWait(t, s, eventRecord(0))

	for _, cursor := range []string{"not-base64!", "bm8tY29sb24", "ZXZlbnRzLmpzb25sOm5hbg"} {
		_, _, err := s.ListEvents(context.Background(), domain.RecordFilter{Cursor: cursor})
		if !errors.Is(err, domain.ErrInvalidCursor) {
			t.Errorf("cursor %q: expected ErrInvalidCursor, got %v", cursor, err)
		}
	}
}

func TestStore_RestartToleratesTruncatedTrailingLine(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir)

	const count = 5
	for i := 0; i < count; i++ {
		appendWait(t, s, eventRecord(i))
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// Simulate a crash mid-write: a partial record with no trailing
	// newline at the end of the segment.
	segments, err := listSegments(dir, StreamEvents)
	if err != nil || len(segments) == 0 {
		t.Fatalf("expected at least one segment: %v", err)
	}
	last := filepath.Join(dir, segments[len(segments)-1].name)
	f, err := os.OpenFile(last, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("failed to open segment: %v", err)
	}
	if _, err := f.WriteString(`{"record_id":"truncat`); err != nil {
		t.Fatalf("failed to append partial line: %v", err)
	}
	f.Close()

	s = newTestStore(t, dir)
	defer s.Close()

	records, _, err := s.ListEvents(context.Background(), domain.RecordFilter{})
	if err != nil {
		t.Fatalf("list after simulated crash failed: %v", err)
	}
	if len(records) != count {
		t.Fatalf("expected the %d complete records, got %d", count, len(records))
	}
}

func TestStore_RecentWindow(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Config{
		Dir:           dir,
		RotateBytes:   1 << 20,
		FlushInterval: 10 * time.Millisecond,
		RecentWindow:  4,
	}, testLogger(), testMetrics())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	for i := 0; i < 6; i++ {
		appendWait(t, s, eventRecord(i))
	}

	recent := s.Recent(0)
	if len(recent) != 4 {
		t.Fatalf("expected window of 4, got %d", len(recent))
	}
	for i, rec := range recent {
		want := fmt.Sprintf("seq-%04d", i+2)
		if rec.Source != want {
			t.Fatalf("window order broken at %d: got %s, want %s", i, rec.Source, want)
		}
	}

	if got := s.Recent(2); len(got) != 2 || got[1].Source != "seq-0005" {
		t.Fatalf("limited window wrong: %+v", got)
	}
}
