package mutation

import (
	"context"

	"github.com/fekuna/omnipos-commerce-service/internal/aggregate"
	"github.com/fekuna/omnipos-commerce-service/internal/model"
)

// Authority is the record store that owns the entities. Field-level refusals
// come back as *errs.RejectionError; any other error is a failure.
type Authority interface {
	Create(ctx context.Context, ownerID string, e model.Entity) (model.Entity, error)
	Update(ctx context.Context, ownerID string, e model.Entity) (model.Entity, error)
	// Delete returns the records that were actually removed.
	Delete(ctx context.Context, ownerID string, kind model.Kind, ids []string) ([]model.Entity, error)
}

type Lister interface {
	ListAll(ctx context.Context, ownerID string) ([]model.Entity, error)
}

// InventorySyncer writes engine-computed stock levels back to the record
// store so that a rebuild starts from current quantities.
type InventorySyncer interface {
	SyncInventory(ctx context.Context, ownerID string, items []model.InventoryItem) error
}

type Repository interface {
	Authority
	Lister
	InventorySyncer

	// Movements / Audit
	LogMovements(ctx context.Context, movements []model.InventoryMovement) error
}

// RebuildLoader seeds an owner's snapshot from the record store when no
// checkpoint exists.
func RebuildLoader(l Lister, r *Reducer) aggregate.Loader {
	return aggregate.LoaderFunc(func(ctx context.Context, ownerID string) (*aggregate.Snapshot, bool, error) {
		records, err := l.ListAll(ctx, ownerID)
		if err != nil {
			return nil, false, err
		}
		snap, err := r.Rebuild(ownerID, records)
		if err != nil {
			return nil, false, err
		}
		return snap, true, nil
	})
}
