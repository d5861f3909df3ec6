package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/user/agent-telemetry/internal/domain"
	"github.com/user/agent-telemetry/internal/domain/mocks"
	"github.com/user/agent-telemetry/internal/usecase"
)

func newQueryHandler(store *mocks.MockRecordStore) *QueryHandler {
	uc := usecase.NewQueryRecordsUseCase(store, &mocks.MockTaskGateway{})
	return NewQueryHandler(uc, testLogger())
}

func TestQueryHandler_ListEvents(t *testing.T) {
	store := &mocks.MockRecordStore{
		ListResult: []domain.Record{
			{ID: "r1", Category: domain.CategoryEvent, Type: "task_started"},
			{ID: "r2", Category: domain.CategoryEvent, Type: "task_completed"},
		},
		NextCursor: "opaque-cursor",
	}
	h := newQueryHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/events?task_id=T1&limit=50", nil)
	rr := httptest.NewRecorder()
	h.ListEvents(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var page recordPage
	if err := json.Unmarshal(rr.Body.Bytes(), &page); err != nil {
		t.Fatalf("response is not a record page: %v", err)
	}
	if len(page.Records) != 2 || page.NextCursor != "opaque-cursor" {
		t.Errorf("page decoded wrong: %d records, cursor %q", len(page.Records), page.NextCursor)
	}
}

func TestQueryHandler_EmptyPageIsAnArray(t *testing.T) {
	h := newQueryHandler(&mocks.MockRecordStore{})

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rr := httptest.NewRecorder()
	h.ListEvents(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp map[string]json.RawMessage
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if string(resp["records"]) != "[]" {
		t.Errorf(`records must serialize as [], got %s`, resp["records"])
	}
}

func TestQueryHandler_BadParameters(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		listErr error
	}{
		{"negative limit", "/events?limit=-1", nil},
		{"garbage limit", "/events?limit=abc", nil},
		{"bad since", "/events?since=yesterday", nil},
		{"bad until", "/events?until=13:00", nil},
		{"invalid cursor", "/events?cursor=zzz", domain.ErrInvalidCursor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newQueryHandler(&mocks.MockRecordStore{ListErr: tt.listErr})

			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			rr := httptest.NewRecorder()
			h.ListEvents(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestQueryHandler_ListChainOfThought(t *testing.T) {
	store := &mocks.MockRecordStore{
		ListResult: []domain.Record{
			{ID: "r1", Category: domain.CategoryReasoning, Phase: domain.PhaseAnalysis, TaskID: "T1", Content: "step", Timestamp: time.Now().UTC()},
		},
	}
	h := newQueryHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/reasoning?task_id=T1", nil)
	rr := httptest.NewRecorder()
	h.ListChainOfThought(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var page recordPage
	if err := json.Unmarshal(rr.Body.Bytes(), &page); err != nil {
		t.Fatalf("response is not a record page: %v", err)
	}
	if len(page.Records) != 1 || page.Records[0].Phase != domain.PhaseAnalysis {
		t.Errorf("page decoded wrong: %+v", page.Records)
	}
}
