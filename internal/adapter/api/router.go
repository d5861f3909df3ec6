package api

import (
	"log/slog"
	"net/http"

	"github.com/user/agent-telemetry/internal/adapter/api/handler"
	"github.com/user/agent-telemetry/internal/domain"
	"github.com/user/agent-telemetry/internal/pkg/config"
	"github.com/user/agent-telemetry/internal/usecase"
)

// NewRouter creates and configures the main HTTP router for the sink.
func NewRouter(
	cfg *config.Config,
	logger *slog.Logger,
	ingestUC *usecase.IngestRecordUseCase,
	queryUC *usecase.QueryRecordsUseCase,
	statusUC *usecase.StatusUseCase,
	gateway domain.TaskGateway,
	hub domain.Publisher,
) http.Handler {
	mux := http.NewServeMux()

	// Ingestion
	mux.Handle("POST /records", handler.NewRecordsHandler(ingestUC, logger, cfg.MaxEventSize))
	mux.Handle("POST /observations", handler.NewObservationsHandler(ingestUC, logger))

	// Historical queries
	queryHandler := handler.NewQueryHandler(queryUC, logger)
	mux.HandleFunc("GET /events", queryHandler.ListEvents)
	mux.HandleFunc("GET /reasoning", queryHandler.ListChainOfThought)

	// Status / metrics / progress snapshots
	statusHandler := handler.NewStatusHandler(statusUC, logger)
	mux.HandleFunc("GET /status", statusHandler.Status)
	mux.HandleFunc("GET /stats", statusHandler.Stats)
	mux.HandleFunc("GET /progress", statusHandler.Progress)

	// Task gateway pass-through
	taskHandler := handler.NewTaskHandler(queryUC, gateway, logger)
	mux.HandleFunc("GET /tasks/{id}", taskHandler.GetTask)
	mux.HandleFunc("POST /tasks", taskHandler.SubmitTask)
	mux.HandleFunc("POST /commands", taskHandler.ExecuteCommand)

	// Live subscription
	mux.Handle("GET /stream", handler.NewStreamHandler(hub, logger, cfg.HeartbeatInterval))

	// Health check
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return mux
}
