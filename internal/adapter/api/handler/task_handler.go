package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/user/agent-telemetry/internal/domain"
	"github.com/user/agent-telemetry/internal/usecase"
)

// TaskHandler proxies task snapshot reads and task/command submissions to
// the external arbiter gateway.
type TaskHandler struct {
	queries *usecase.QueryRecordsUseCase
	gateway domain.TaskGateway
	logger  *slog.Logger
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(queries *usecase.QueryRecordsUseCase, gateway domain.TaskGateway, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{queries: queries, gateway: gateway, logger: logger}
}

func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.queries.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			http.Error(w, "Task not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to fetch task snapshot", "error", err)
		http.Error(w, "Upstream unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil || len(payload) == 0 || !json.Valid(payload) {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	submission, err := h.gateway.SubmitTask(r.Context(), payload)
	if err != nil {
		h.logger.Error("failed to submit task", "error", err)
		http.Error(w, "Upstream unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusAccepted, submission)
}

func (h *TaskHandler) ExecuteCommand(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Command == "" {
		http.Error(w, "command is required", http.StatusBadRequest)
		return
	}

	acknowledged, err := h.gateway.ExecuteCommand(r.Context(), body.Command)
	if err != nil {
		h.logger.Error("failed to execute command", "error", err)
		http.Error(w, "Upstream unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"acknowledged": acknowledged})
}
