package domain

import (
	"context"
	"encoding/json"
)

// Ack is the two-tier acknowledgment for an appended record. Written
// resolves once the record's chunk has been handed to the sink as part of
// a flushed batch; Durable closes once a subsequent fsync covers it. A
// crash between the two loses the record (relaxed durability contract).
type Ack interface {
	Written() <-chan error
	Durable() <-chan struct{}
}

// RecordStore persists redacted records and answers cursor-paginated
// historical queries from the on-disk files.
type RecordStore interface {
	// Append enqueues a record into the writer for its category. It
	// never blocks the caller.
	Append(ctx context.Context, rec Record) (Ack, error)

	// ListEvents reads persisted event/observation records in insertion
	// order and returns the next page plus a resumption cursor. An empty
	// cursor signals end of available data.
	ListEvents(ctx context.Context, f RecordFilter) ([]Record, string, error)

	// ListChainOfThought is the same contract scoped to the reasoning
	// stream.
	ListChainOfThought(ctx context.Context, f RecordFilter) ([]Record, string, error)

	// Recent returns up to limit of the most recently appended (redacted)
	// records for rolling statistics.
	Recent(limit int) []Record

	// Close drains all pending writes and shuts the writers down. It is
	// idempotent and safe to call from a shutdown handler.
	Close() error
}

// SubscriberSink is the opaque handle supplied by the transport layer.
// It may fail or close at any time; a failing sink is unsubscribed.
type SubscriberSink interface {
	Send(payload []byte) error
}

// Publisher fans newly produced records out to live subscribers.
type Publisher interface {
	Subscribe(f SubscriberFilter, sink SubscriberSink) (string, error)
	Unsubscribe(id string)
	Publish(rec Record)
}

// TaskGateway is the external task/arbiter service this core calls but
// never implements.
type TaskGateway interface {
	EnsureRunning(ctx context.Context) error
	RequestStop(ctx context.Context) error
	SubmitTask(ctx context.Context, payload json.RawMessage) (TaskSubmission, error)
	ExecuteCommand(ctx context.Context, command string) (bool, error)
	GetTask(ctx context.Context, taskID string) (*TaskSnapshot, error)
}
