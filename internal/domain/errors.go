package domain

import "errors"

var (
	// ErrClosed is returned by Append after the store has been closed.
	ErrClosed = errors.New("record store is closed")

	// ErrQueueFull is returned when the writer's in-memory queue has hit
	// its hard cap. Producers should shed or slow down.
	ErrQueueFull = errors.New("writer queue is full")

	// ErrSinkBusy is reported by a sink whose internal buffer is full.
	// The writer suspends chunk writes until the sink drains.
	ErrSinkBusy = errors.New("sink buffer is full")

	// ErrInvalidCursor is returned for cursors that cannot be decoded or
	// that reference a file no longer retained.
	ErrInvalidCursor = errors.New("invalid or expired cursor")

	// ErrSubscriberLimit is returned by Subscribe once the configured
	// maximum number of live subscribers is reached.
	ErrSubscriberLimit = errors.New("subscriber limit reached")

	// ErrTaskNotFound is returned by the task gateway for unknown task IDs.
	ErrTaskNotFound = errors.New("task not found")
)
