package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/user/agent-telemetry/internal/domain"
	"github.com/user/agent-telemetry/internal/usecase"
)

// RecordsHandler handles HTTP requests for record ingestion.
type RecordsHandler struct {
	useCase       *usecase.IngestRecordUseCase
	logger        *slog.Logger
	maxRecordSize int64
}

// NewRecordsHandler creates a new RecordsHandler.
func NewRecordsHandler(uc *usecase.IngestRecordUseCase, logger *slog.Logger, maxRecordSize int64) *RecordsHandler {
	return &RecordsHandler{
		useCase:       uc,
		logger:        logger,
		maxRecordSize: maxRecordSize,
	}
}

// ServeHTTP accepts a single JSON record or an NDJSON batch.
func (h *RecordsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRecordSize)

	var err error
	switch r.Header.Get("Content-Type") {
	case "application/json":
		err = h.handleSingleJSON(r.Context(), r.Body)
	case "application/x-ndjson":
		err = h.handleNDJSON(r.Context(), r.Body)
	default:
		http.Error(w, "Unsupported Content-Type", http.StatusUnsupportedMediaType)
		return
	}

	if err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			http.Error(w, "Payload too large", http.StatusRequestEntityTooLarge)
		case errors.Is(err, domain.ErrQueueFull):
			// Ingestion is under pressure; tell the producer to back off.
			http.Error(w, "Queue full, slow down", http.StatusTooManyRequests)
		case errors.Is(err, domain.ErrClosed):
			http.Error(w, "Sink is shutting down", http.StatusServiceUnavailable)
		default:
			h.logger.Error("failed to process ingest request", "error", err)
			http.Error(w, "Bad request", http.StatusBadRequest)
		}
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (h *RecordsHandler) handleSingleJSON(ctx context.Context, body io.Reader) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	var rec domain.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return err
	}

	_, err = h.useCase.Ingest(ctx, &rec)
	return err
}

func (h *RecordsHandler) handleNDJSON(ctx context.Context, body io.Reader) error {
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec domain.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			// Log the error but continue processing other lines.
			h.logger.Warn("failed to unmarshal ndjson line", "error", err)
			continue
		}

		if _, err := h.useCase.Ingest(ctx, &rec); err != nil {
			if errors.Is(err, domain.ErrQueueFull) || errors.Is(err, domain.ErrClosed) {
				return err
			}
			h.logger.Error("failed to ingest record from ndjson stream", "error", err, "record_id", rec.ID)
		}
	}
	return scanner.Err()
}

// ObservationsHandler accepts manually authored observation notes.
type ObservationsHandler struct {
	useCase *usecase.IngestRecordUseCase
	logger  *slog.Logger
}

// NewObservationsHandler creates a new ObservationsHandler.
func NewObservationsHandler(uc *usecase.IngestRecordUseCase, logger *slog.Logger) *ObservationsHandler {
	return &ObservationsHandler{useCase: uc, logger: logger}
}

func (h *ObservationsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var note domain.ObservationNote
	if err := json.NewDecoder(r.Body).Decode(&note); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if note.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	rec, _, err := h.useCase.IngestObservation(r.Context(), note)
	if err != nil {
		h.logger.Error("failed to ingest observation", "error", err)
		http.Error(w, "Failed to record observation", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":        rec.ID,
		"timestamp": rec.Timestamp,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
