package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/user/agent-telemetry/internal/domain"
	"github.com/user/agent-telemetry/internal/usecase"
)

// QueryHandler serves cursor-paginated historical reads.
type QueryHandler struct {
	useCase *usecase.QueryRecordsUseCase
	logger  *slog.Logger
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(uc *usecase.QueryRecordsUseCase, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{useCase: uc, logger: logger}
}

type recordPage struct {
	Records    []domain.Record `json:"records"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func (h *QueryHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, next, err := h.useCase.ListEvents(r.Context(), filter)
	h.respond(w, records, next, err)
}

func (h *QueryHandler) ListChainOfThought(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, next, err := h.useCase.ListChainOfThought(r.Context(), filter)
	h.respond(w, records, next, err)
}

func (h *QueryHandler) respond(w http.ResponseWriter, records []domain.Record, next string, err error) {
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCursor) {
			http.Error(w, "Invalid cursor", http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to list records", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if records == nil {
		records = []domain.Record{}
	}
	writeJSON(w, http.StatusOK, recordPage{Records: records, NextCursor: next})
}

func parseFilter(r *http.Request) (domain.RecordFilter, error) {
	q := r.URL.Query()
	f := domain.RecordFilter{
		Cursor:   q.Get("cursor"),
		Type:     q.Get("type"),
		TaskID:   q.Get("task_id"),
		Severity: q.Get("severity"),
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return f, errors.New("limit must be a non-negative integer")
		}
		f.Limit = limit
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("since must be RFC3339")
		}
		f.Since = t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("until must be RFC3339")
		}
		f.Until = t
	}
	return f, nil
}
