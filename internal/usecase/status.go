package usecase

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/user/agent-telemetry/internal/adapter/hub"
	"github.com/user/agent-telemetry/internal/adapter/store"
	"github.com/user/agent-telemetry/internal/domain"
)

// Task lifecycle event types recognized by the rolling statistics.
const (
	eventTaskQueued     = "task_queued"
	eventTaskStarted    = "task_started"
	eventTaskCompleted  = "task_completed"
	eventTaskFailed     = "task_failed"
	eventPolicyViolated = "policy_violation"
)

// StatusUseCase derives status/metrics/progress snapshots on demand from
// writer, queue and hub state plus the store's recent window. Nothing is
// computed in the background and nothing is persisted.
type StatusUseCase struct {
	store        *store.Store
	hub          *hub.Hub
	start        time.Time
	degradedPct  int
	recentWindow int
}

// NewStatusUseCase creates the aggregator. degradedPct is the queue-depth
// percentage (of the max queue size) at which ingestion is reported
// degraded.
func NewStatusUseCase(st *store.Store, h *hub.Hub, degradedPct, recentWindow int) *StatusUseCase {
	return &StatusUseCase{
		store:        st,
		hub:          h,
		start:        time.Now().UTC(),
		degradedPct:  degradedPct,
		recentWindow: recentWindow,
	}
}

// Status classifies ingestion health: running while the writers accept
// appends and the queue is below the high-water percentage, degraded once
// the threshold is crossed, stopped once Close has completed.
func (uc *StatusUseCase) Status() domain.StatusSnapshot {
	depth := uc.store.QueueDepth()
	maxQueue := uc.store.MaxQueueSize()

	state := domain.StateRunning
	switch {
	case uc.store.Closed():
		state = domain.StateStopped
	case maxQueue > 0 && depth*100 >= maxQueue*uc.degradedPct:
		state = domain.StateDegraded
	}

	return domain.StatusSnapshot{
		State:              state,
		UptimeSeconds:      int64(time.Since(uc.start).Seconds()),
		QueueDepth:         depth,
		MaxQueueSize:       maxQueue,
		BackpressureEvents: uc.store.BackpressureEvents(),
		Subscribers:        uc.hub.SubscriberCount(),
		ActiveFiles:        uc.store.ActiveFiles(),
	}
}

// Metrics computes rolling statistics over the recent window.
func (uc *StatusUseCase) Metrics() domain.MetricsSnapshot {
	recent := uc.store.Recent(uc.recentWindow)

	snapshot := domain.MetricsSnapshot{
		RecordsByCategory: make(map[string]int),
		WindowSize:        len(recent),
	}

	reasoningDepth := make(map[string]int)
	agentsPerTask := make(map[string]map[string]struct{})
	lastLifecycle := make(map[string]string)
	var completed, failed int
	var utilizationSum float64
	var utilizationCount int

	for _, rec := range recent {
		snapshot.RecordsByCategory[rec.Category]++

		if rec.Category == domain.CategoryReasoning && rec.TaskID != "" {
			reasoningDepth[rec.TaskID]++
		}
		if rec.TaskID != "" && rec.AgentID != "" {
			agents := agentsPerTask[rec.TaskID]
			if agents == nil {
				agents = make(map[string]struct{})
				agentsPerTask[rec.TaskID] = agents
			}
			agents[rec.AgentID] = struct{}{}
		}

		switch rec.Type {
		case eventTaskQueued, eventTaskStarted, eventTaskCompleted, eventTaskFailed:
			if rec.TaskID != "" {
				lastLifecycle[rec.TaskID] = rec.Type
			}
			if rec.Type == eventTaskCompleted {
				completed++
			}
			if rec.Type == eventTaskFailed {
				failed++
			}
		case eventPolicyViolated:
			snapshot.PolicyViolations++
		}

		if used, ok := metaNumber(rec.Metadata, "tools_used"); ok {
			if budget, ok := metaNumber(rec.Metadata, "tool_budget"); ok && budget > 0 {
				utilizationSum += used / budget
				utilizationCount++
			}
		}
	}

	snapshot.ReasoningDepthAvg, snapshot.ReasoningDepthP95 = depthStats(reasoningDepth)

	if len(agentsPerTask) > 0 {
		total := 0
		for _, agents := range agentsPerTask {
			total += len(agents)
		}
		snapshot.DebateBreadthAvg = float64(total) / float64(len(agentsPerTask))
	}

	if completed+failed > 0 {
		snapshot.TaskSuccessRate = float64(completed) / float64(completed+failed)
	}
	if utilizationCount > 0 {
		snapshot.ToolBudgetUtilization = utilizationSum / float64(utilizationCount)
	}

	for _, last := range lastLifecycle {
		switch last {
		case eventTaskQueued:
			snapshot.QueuedTasks++
		case eventTaskStarted:
			snapshot.ActiveTasks++
		}
	}

	return snapshot
}

// Progress summarizes recent activity for one task.
func (uc *StatusUseCase) Progress(taskID string) domain.ProgressSnapshot {
	snapshot := domain.ProgressSnapshot{
		TaskID:      taskID,
		PhaseCounts: make(map[string]int),
	}

	for _, rec := range uc.store.Recent(uc.recentWindow) {
		if rec.TaskID != taskID {
			continue
		}
		snapshot.RecordCount++
		if rec.Phase != "" {
			snapshot.PhaseCounts[rec.Phase]++
			snapshot.LastPhase = rec.Phase
		}
		if rec.Timestamp.After(snapshot.LastUpdated) {
			snapshot.LastUpdated = rec.Timestamp
		}
	}
	return snapshot
}

func depthStats(depthPerTask map[string]int) (avg, p95 float64) {
	if len(depthPerTask) == 0 {
		return 0, 0
	}

	depths := make([]int, 0, len(depthPerTask))
	total := 0
	for _, d := range depthPerTask {
		depths = append(depths, d)
		total += d
	}
	sort.Ints(depths)

	avg = float64(total) / float64(len(depths))
	idx := (len(depths)*95 + 99) / 100 // ceil(n * 0.95)
	if idx > len(depths) {
		idx = len(depths)
	}
	p95 = float64(depths[idx-1])
	return avg, p95
}

func metaNumber(meta json.RawMessage, key string) (float64, bool) {
	if len(meta) == 0 {
		return 0, false
	}
	var decoded map[string]any
	if err := json.Unmarshal(meta, &decoded); err != nil {
		return 0, false
	}
	value, ok := decoded[key].(float64)
	return value, ok
}
