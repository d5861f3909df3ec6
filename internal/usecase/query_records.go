package usecase

import (
	"context"

	"github.com/user/agent-telemetry/internal/domain"
)

// QueryRecordsUseCase answers historical queries and task lookups.
type QueryRecordsUseCase struct {
	store   domain.RecordStore
	gateway domain.TaskGateway
}

// NewQueryRecordsUseCase creates a new QueryRecordsUseCase.
func NewQueryRecordsUseCase(store domain.RecordStore, gateway domain.TaskGateway) *QueryRecordsUseCase {
	return &QueryRecordsUseCase{store: store, gateway: gateway}
}

func (uc *QueryRecordsUseCase) ListEvents(ctx context.Context, f domain.RecordFilter) ([]domain.Record, string, error) {
	return uc.store.ListEvents(ctx, f)
}

func (uc *QueryRecordsUseCase) ListChainOfThought(ctx context.Context, f domain.RecordFilter) ([]domain.Record, string, error) {
	return uc.store.ListChainOfThought(ctx, f)
}

// GetTask delegates to the external task/arbiter gateway; task snapshots
// are not persisted by this subsystem.
func (uc *QueryRecordsUseCase) GetTask(ctx context.Context, taskID string) (*domain.TaskSnapshot, error) {
	return uc.gateway.GetTask(ctx, taskID)
}
