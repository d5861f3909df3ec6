package domain

import (
	"encoding/json"
	"time"
)

// Record categories. Each category maps to its own on-disk stream.
const (
	CategoryEvent       = "event"
	CategoryReasoning   = "reasoning"
	CategoryObservation = "observation"
)

// Severity levels for event records.
const (
	SeverityDebug = "debug"
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// Reasoning phases for chain-of-thought entries.
const (
	PhaseObservation = "observation"
	PhaseAnalysis    = "analysis"
	PhasePlan        = "plan"
	PhaseDecision    = "decision"
	PhaseExecute     = "execute"
	PhaseVerify      = "verify"
	PhaseHypothesis  = "hypothesis"
	PhaseCritique    = "critique"
	PhaseOther       = "other"
)

// Record is the canonical structure of a telemetry/audit entry. A record is
// immutable once persisted; producers hand it to the ingest path and never
// see it again.
type Record struct {
	ID            string          `json:"record_id"`
	Category      string          `json:"category"`
	Type          string          `json:"type,omitempty"`
	Severity      string          `json:"severity,omitempty"`
	Phase         string          `json:"phase,omitempty"`
	AgentID       string          `json:"agent_id,omitempty"`
	TaskID        string          `json:"task_id,omitempty"`
	Source        string          `json:"source,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	TraceID       string          `json:"trace_id,omitempty"`
	SpanID        string          `json:"span_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`

	// Chain-of-thought fields. ContentHash is the BLAKE3 hex digest of the
	// original content, computed before redaction so integrity remains
	// verifiable even when Redacted is true.
	Confidence  float64 `json:"confidence,omitempty"`
	Content     string  `json:"content,omitempty"`
	Redacted    bool    `json:"redacted,omitempty"`
	ContentHash string  `json:"content_hash,omitempty"`
}

// RecordFilter narrows historical queries. Zero values mean "no constraint".
type RecordFilter struct {
	Cursor   string
	Limit    int
	Since    time.Time
	Until    time.Time
	Type     string
	TaskID   string
	Severity string
}

// ObservationNote is a manually authored note accepted through the same
// append path as any other record.
type ObservationNote struct {
	Message string `json:"message"`
	TaskID  string `json:"task_id,omitempty"`
	Author  string `json:"author,omitempty"`
}

// SubscriberFilter selects which published records a live subscriber
// receives. Empty fields match everything.
type SubscriberFilter struct {
	TaskID   string
	Type     string
	Severity string
	Verbose  bool
}

// Matches reports whether the record passes the subscriber's filter.
// Non-verbose subscribers do not receive debug-severity records or the
// reasoning/observation categories.
func (f SubscriberFilter) Matches(r Record) bool {
	if f.TaskID != "" && r.TaskID != f.TaskID {
		return false
	}
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.Severity != "" && r.Severity != f.Severity {
		return false
	}
	if !f.Verbose {
		if r.Severity == SeverityDebug {
			return false
		}
		if r.Category == CategoryReasoning || r.Category == CategoryObservation {
			return false
		}
	}
	return true
}
