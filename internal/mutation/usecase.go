package mutation

import (
	"context"

	"github.com/fekuna/omnipos-commerce-service/internal/aggregate"
	"github.com/fekuna/omnipos-commerce-service/internal/mutation/dto"
)

type UseCase interface {
	// Submit runs one mutation to completion. The returned Mutation is never
	// nil and carries its final state; the error mirrors Mutation.Err.
	Submit(ctx context.Context, req *dto.Request) (*Mutation, error)
	Snapshot(ctx context.Context, ownerID string) (*aggregate.Snapshot, error)
}
