package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/user/agent-telemetry/internal/domain"
)

// MockAck is a pre-resolved domain.Ack for testing.
type MockAck struct {
	written chan error
	durable chan struct{}
}

// NewMockAck returns an ack whose Written channel yields err immediately
// and whose Durable channel is already closed.
func NewMockAck(err error) *MockAck {
	a := &MockAck{written: make(chan error, 1), durable: make(chan struct{})}
	if err != nil {
		a.written <- err
	}
	close(a.written)
	close(a.durable)
	return a
}

func (a *MockAck) Written() <-chan error    { return a.written }
func (a *MockAck) Durable() <-chan struct{} { return a.durable }

// MockRecordStore is a mock implementation of domain.RecordStore.
type MockRecordStore struct {
	mu              sync.Mutex
	AppendedRecords []domain.Record
	ListResult      []domain.Record
	NextCursor      string
	AppendErr       error
	ListErr         error
	CloseCalls      int
}

func (m *MockRecordStore) Append(ctx context.Context, rec domain.Record) (domain.Ack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return nil, m.AppendErr
	}
	m.AppendedRecords = append(m.AppendedRecords, rec)
	return NewMockAck(nil), nil
}

func (m *MockRecordStore) ListEvents(ctx context.Context, f domain.RecordFilter) ([]domain.Record, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ListResult, m.NextCursor, m.ListErr
}

func (m *MockRecordStore) ListChainOfThought(ctx context.Context, f domain.RecordFilter) ([]domain.Record, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ListResult, m.NextCursor, m.ListErr
}

func (m *MockRecordStore) Recent(limit int) []domain.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.AppendedRecords
}

func (m *MockRecordStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalls++
	return nil
}

// MockPublisher is a mock implementation of domain.Publisher.
type MockPublisher struct {
	mu         sync.Mutex
	Published  []domain.Record
	SubErr     error
	Subscribed int
}

func (m *MockPublisher) Subscribe(f domain.SubscriberFilter, sink domain.SubscriberSink) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubErr != nil {
		return "", m.SubErr
	}
	m.Subscribed++
	return "mock-subscriber", nil
}

func (m *MockPublisher) Unsubscribe(id string) {}

func (m *MockPublisher) Publish(rec domain.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, rec)
}

// PublishedRecords returns a copy of everything published so far.
func (m *MockPublisher) PublishedRecords() []domain.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Record, len(m.Published))
	copy(out, m.Published)
	return out
}

// MockSubscriberSink records everything sent to it.
type MockSubscriberSink struct {
	mu       sync.Mutex
	Payloads [][]byte
	SendErr  error
}

func (m *MockSubscriberSink) Send(payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	m.Payloads = append(m.Payloads, buf)
	return nil
}

// Received returns the number of payloads delivered so far.
func (m *MockSubscriberSink) Received() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Payloads)
}

// MockTaskGateway is a mock implementation of domain.TaskGateway.
type MockTaskGateway struct {
	Task       *domain.TaskSnapshot
	Submission domain.TaskSubmission
	Err        error
}

func (m *MockTaskGateway) EnsureRunning(ctx context.Context) error { return m.Err }
func (m *MockTaskGateway) RequestStop(ctx context.Context) error   { return m.Err }

func (m *MockTaskGateway) SubmitTask(ctx context.Context, payload json.RawMessage) (domain.TaskSubmission, error) {
	return m.Submission, m.Err
}

func (m *MockTaskGateway) ExecuteCommand(ctx context.Context, command string) (bool, error) {
	return m.Err == nil, m.Err
}

func (m *MockTaskGateway) GetTask(ctx context.Context, taskID string) (*domain.TaskSnapshot, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Task == nil {
		return nil, domain.ErrTaskNotFound
	}
	return m.Task, nil
}
