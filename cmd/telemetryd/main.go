package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/agent-telemetry/internal/adapter/api"
	"github.com/user/agent-telemetry/internal/adapter/api/middleware"
	"github.com/user/agent-telemetry/internal/adapter/gateway"
	"github.com/user/agent-telemetry/internal/adapter/hub"
	"github.com/user/agent-telemetry/internal/adapter/metrics"
	"github.com/user/agent-telemetry/internal/adapter/redact"
	"github.com/user/agent-telemetry/internal/adapter/store"
	"github.com/user/agent-telemetry/internal/pkg/config"
	"github.com/user/agent-telemetry/internal/pkg/logger"
	"github.com/user/agent-telemetry/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	m := metrics.New(prometheus.DefaultRegisterer)

	// --- Redaction rules are validated here, at load time; a malformed
	// pattern is fatal so records are never dropped at ingest time. ---
	rules := redact.DefaultRules()
	if cfg.RedactionRulesPath != "" {
		fileRules, err := redact.LoadRules(cfg.RedactionRulesPath)
		if err != nil {
			log.Error("failed to load redaction rules", "error", err)
			os.Exit(1)
		}
		rules = append(rules, fileRules...)
	}
	redactor, err := redact.New(rules, cfg.PrivacyMode, log)
	if err != nil {
		log.Error("failed to compile redaction rules", "error", err)
		os.Exit(1)
	}

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Record store and writers ---
	recordStore, err := store.New(store.Config{
		Dir:           cfg.DataDir,
		RotateBytes:   cfg.RotateSizeBytes(),
		SyncBytes:     cfg.SyncBytes,
		FlushInterval: cfg.FlushInterval,
		HighWater:     cfg.QueueHighWater,
		MaxQueue:      cfg.MaxQueueSize,
		ChunkSize:     cfg.FlushChunkSize,
		RecentWindow:  cfg.RecentWindow,
	}, log, m)
	if err != nil {
		log.Error("failed to initialize record store", "error", err)
		os.Exit(1)
	}
	// Close on every exit route so queued records are not lost.
	defer func() {
		if err := recordStore.Close(); err != nil {
			log.Error("record store shutdown failed", "error", err)
		}
	}()

	// --- Fan-out hub, gateway, use cases ---
	fanout := hub.New(cfg.MaxSubscribers, log, m)
	arbiter := gateway.New(cfg.ArbiterBaseURL, 0, log)

	ingestUC := usecase.NewIngestRecordUseCase(recordStore, fanout, redactor, log, m, cfg.EventSampleRate, cfg.ReasoningSampleRate)
	queryUC := usecase.NewQueryRecordsUseCase(recordStore, arbiter)
	statusUC := usecase.NewStatusUseCase(recordStore, fanout, cfg.DegradedQueuePct, cfg.RecentWindow)

	// --- Admin & metrics server ---
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminServer := &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: adminMux,
	}

	go func() {
		log.Info("starting admin & metrics server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("admin & metrics server failed", "error", err)
		}
	}()

	// --- Main sink server ---
	router := api.NewRouter(cfg, log, ingestUC, queryUC, statusUC, arbiter, fanout)
	sinkServer := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     middleware.Logging(log)(router),
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("starting telemetry sink server", "addr", sinkServer.Addr, "data_dir", cfg.DataDir)
		if err := sinkServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("sink server failed", "error", err)
			stop() // Trigger shutdown on server error
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	log.Info("shutting down servers...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		log.Error("admin server shutdown failed", "error", err)
	}
	if err := sinkServer.Shutdown(shutdownCtx); err != nil {
		log.Error("sink server shutdown failed", "error", err)
	}

	log.Info("servers shut down gracefully")
}
