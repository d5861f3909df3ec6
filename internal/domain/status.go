package domain

import (
	"encoding/json"
	"time"
)

// Ingestion states reported by the status aggregator.
const (
	StateRunning  = "running"
	StateDegraded = "degraded"
	StateStopped  = "stopped"
)

// StatusSnapshot is derived on demand from writer/queue/hub state. It is
// never persisted.
type StatusSnapshot struct {
	State              string            `json:"state"`
	UptimeSeconds      int64             `json:"uptime_seconds"`
	QueueDepth         int               `json:"queue_depth"`
	MaxQueueSize       int               `json:"max_queue_size"`
	BackpressureEvents uint64            `json:"backpressure_events"`
	Subscribers        int               `json:"subscribers"`
	ActiveFiles        map[string]string `json:"active_files,omitempty"`
}

// MetricsSnapshot holds rolling statistics computed over the store's
// recent window of records.
type MetricsSnapshot struct {
	ReasoningDepthAvg     float64        `json:"reasoning_depth_avg"`
	ReasoningDepthP95     float64        `json:"reasoning_depth_p95"`
	DebateBreadthAvg      float64        `json:"debate_breadth_avg"`
	TaskSuccessRate       float64        `json:"task_success_rate"`
	ToolBudgetUtilization float64        `json:"tool_budget_utilization"`
	ActiveTasks           int            `json:"active_tasks"`
	QueuedTasks           int            `json:"queued_tasks"`
	PolicyViolations      int            `json:"policy_violations"`
	RecordsByCategory     map[string]int `json:"records_by_category"`
	WindowSize            int            `json:"window_size"`
}

// ProgressSnapshot summarizes recent activity for a single task.
type ProgressSnapshot struct {
	TaskID      string         `json:"task_id"`
	LastPhase   string         `json:"last_phase,omitempty"`
	PhaseCounts map[string]int `json:"phase_counts,omitempty"`
	RecordCount int            `json:"record_count"`
	LastUpdated time.Time      `json:"last_updated,omitzero"`
}

// TaskSnapshot is fetched from the external task/arbiter gateway. It is
// not persisted by this subsystem.
type TaskSnapshot struct {
	ID          string          `json:"task_id"`
	Status      string          `json:"status"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at,omitzero"`
	UpdatedAt   time.Time       `json:"updated_at,omitzero"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// TaskSubmission is the gateway's answer to a submitted task payload.
type TaskSubmission struct {
	TaskID string `json:"task_id"`
	Queued bool   `json:"queued,omitempty"`
}
