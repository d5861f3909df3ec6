package handler

import (
	"log/slog"
	"net/http"

	"github.com/user/agent-telemetry/internal/usecase"
)

// StatusHandler serves the derived status/metrics/progress snapshots.
type StatusHandler struct {
	useCase *usecase.StatusUseCase
	logger  *slog.Logger
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(uc *usecase.StatusUseCase, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{useCase: uc, logger: logger}
}

func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.useCase.Status())
}

func (h *StatusHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.useCase.Metrics())
}

func (h *StatusHandler) Progress(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("task_id")
	if taskID == "" {
		http.Error(w, "task_id is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.useCase.Progress(taskID))
}
