package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/fekuna/omnipos-commerce-service/internal/aggregate"
	"github.com/fekuna/omnipos-commerce-service/internal/auth"
	"github.com/fekuna/omnipos-commerce-service/internal/errs"
	"github.com/fekuna/omnipos-commerce-service/internal/flight"
	"github.com/fekuna/omnipos-commerce-service/internal/metrics"
	"github.com/fekuna/omnipos-commerce-service/internal/model"
	"github.com/fekuna/omnipos-commerce-service/internal/movement"
	"github.com/fekuna/omnipos-commerce-service/internal/mutation"
	"github.com/fekuna/omnipos-commerce-service/internal/mutation/dto"
	"github.com/fekuna/omnipos-commerce-service/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type mutationUseCase struct {
	repo      mutation.Authority
	registry  *aggregate.Registry
	reducer   *mutation.Reducer
	guard     flight.Guard
	publisher movement.Publisher
	metrics   *metrics.Registry
	logger    logger.ZapLogger
}

func NewMutationUseCase(
	repo mutation.Authority,
	registry *aggregate.Registry,
	reducer *mutation.Reducer,
	guard flight.Guard,
	publisher movement.Publisher,
	m *metrics.Registry,
	log logger.ZapLogger,
) mutation.UseCase {
	return &mutationUseCase{
		repo:      repo,
		registry:  registry,
		reducer:   reducer,
		guard:     guard,
		publisher: publisher,
		metrics:   m,
		logger:    log,
	}
}

func (uc *mutationUseCase) Snapshot(ctx context.Context, ownerID string) (*aggregate.Snapshot, error) {
	store, err := uc.registry.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return store.Current(), nil
}

func (uc *mutationUseCase) Submit(ctx context.Context, req *dto.Request) (*mutation.Mutation, error) {
	start := time.Now()
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.OwnerID == "" {
		req.OwnerID = auth.GetOwnerID(ctx)
	}
	m := mutation.New(req)
	defer uc.observe(m, start)

	store, err := uc.registry.Get(ctx, req.OwnerID)
	if err != nil {
		return m, m.Reject(&errs.FailureError{Err: err})
	}

	// 1. Pre-flight against the current snapshot
	if err := mutation.Preflight(store.Current(), req); err != nil {
		uc.logger.Debug("mutation refused by pre-flight",
			zap.String("mutation_id", m.ID),
			zap.String("kind", string(req.Kind)),
			zap.Error(err))
		return m, m.Reject(err)
	}

	// 2. One submission per record at a time
	release, err := flight.AcquireAll(ctx, uc.guard, flightKeys(req))
	if err != nil {
		if !errors.Is(err, flight.ErrInFlight) {
			err = &errs.FailureError{Err: err}
		}
		return m, m.Reject(err)
	}
	defer release()

	// 3. Submit and apply; the caller can no longer cancel from here on
	sctx := context.WithoutCancel(ctx)
	eff, err := uc.execute(sctx, store, m)
	if err != nil {
		return m, err
	}

	// 4. A delivered client order spawns its linked sale
	if eff.FollowUp != nil {
		if err := uc.followUp(sctx, store, m, eff.FollowUp); err != nil {
			return m, err
		}
	}
	return m, nil
}

// execute moves m from Idle through Submitting to its final state.
func (uc *mutationUseCase) execute(ctx context.Context, store *aggregate.Store, m *mutation.Mutation) (mutation.Effects, error) {
	req := m.Request
	if err := m.To(mutation.StateSubmitting); err != nil {
		return mutation.Effects{}, err
	}
	uc.metrics.InFlight.Inc()
	defer uc.metrics.InFlight.Dec()

	res, err := uc.call(ctx, req)
	if err != nil {
		uc.logger.Warn("record store refused mutation",
			zap.String("mutation_id", m.ID),
			zap.String("kind", string(req.Kind)),
			zap.String("op", string(req.Op)),
			zap.Error(err))
		return mutation.Effects{}, m.Reject(err)
	}
	m.Result = res

	var eff mutation.Effects
	snap, err := store.Update(func(prev *aggregate.Snapshot) (*aggregate.Snapshot, error) {
		next, e, err := uc.reducer.Reduce(prev, req, res)
		eff = e
		return next, err
	})
	if err != nil {
		uc.metrics.IntegrityErrors.Inc()
		uc.logger.Error("failed to apply authoritative result",
			zap.String("mutation_id", m.ID),
			zap.String("owner_id", req.OwnerID),
			zap.String("kind", string(req.Kind)),
			zap.String("op", string(req.Op)),
			zap.Error(err))
		if !errors.Is(err, errs.ErrIntegrity) {
			err = &errs.IntegrityError{Reason: "snapshot update", Err: err}
		}
		return mutation.Effects{}, m.Reject(err)
	}

	m.Snapshot = snap
	if err := m.To(mutation.StateApplied); err != nil {
		return mutation.Effects{}, err
	}
	uc.metrics.SnapshotVersion.WithLabelValues(snap.OwnerID).Set(float64(snap.Version))

	uc.afterApply(ctx, store, req, eff.Movements)
	return eff, nil
}

func (uc *mutationUseCase) call(ctx context.Context, req *dto.Request) (*dto.Result, error) {
	var (
		out []model.Entity
		err error
	)
	switch req.Op {
	case dto.OpCreate:
		var e model.Entity
		e, err = uc.repo.Create(ctx, req.OwnerID, req.Candidate)
		out = []model.Entity{e}
	case dto.OpUpdate:
		var e model.Entity
		e, err = uc.repo.Update(ctx, req.OwnerID, req.Candidate)
		out = []model.Entity{e}
	case dto.OpDelete:
		out, err = uc.repo.Delete(ctx, req.OwnerID, req.Kind, req.TargetIDs())
	}
	if err != nil {
		var rej *errs.RejectionError
		if errors.As(err, &rej) {
			return nil, rej
		}
		return nil, &errs.FailureError{Err: err}
	}
	return &dto.Result{Entities: out}, nil
}

// afterApply journals movements and writes stock back. Both run after the
// snapshot is already replaced, so failures are logged and not surfaced.
func (uc *mutationUseCase) afterApply(ctx context.Context, store *aggregate.Store, req *dto.Request, movements []model.InventoryMovement) {
	if len(movements) == 0 {
		return
	}

	now := time.Now()
	var touched []string
	seen := make(map[string]struct{}, len(movements))
	for i := range movements {
		movements[i].ID = uuid.New().String()
		movements[i].CreatedAt = now
		uc.metrics.StockMovements.WithLabelValues(movements[i].MovementType).Inc()

		// adjustments already came from the record store
		if movements[i].MovementType == model.MovementAdjustment {
			continue
		}
		if _, ok := seen[movements[i].Item]; ok {
			continue
		}
		seen[movements[i].Item] = struct{}{}
		touched = append(touched, movements[i].Item)
	}

	if err := uc.publisher.Publish(ctx, movements); err != nil {
		uc.logger.Warn("failed to publish stock movements",
			zap.String("mutation_id", req.ID),
			zap.Int("count", len(movements)),
			zap.Error(err))
	}

	syncer, ok := uc.repo.(mutation.InventorySyncer)
	if !ok || len(touched) == 0 {
		return
	}
	// Stock is read from the latest snapshot, not this mutation's: a later
	// mutation may already have written the same item.
	err := store.WriteBack(func(latest *aggregate.Snapshot) error {
		items := make([]model.InventoryItem, 0, len(touched))
		for _, name := range touched {
			if item, ok := latest.Inventory[name]; ok {
				items = append(items, item)
			}
		}
		if len(items) == 0 {
			return nil
		}
		return syncer.SyncInventory(ctx, req.OwnerID, items)
	})
	if err != nil {
		uc.logger.Warn("failed to write stock back to record store",
			zap.String("mutation_id", req.ID),
			zap.String("owner_id", req.OwnerID),
			zap.Error(err))
	}
}

// followUp creates the sale for a just-delivered order. The order stays
// applied whatever happens here; a failure leaves the pair unlinked and is
// reported as an integrity error.
func (uc *mutationUseCase) followUp(ctx context.Context, store *aggregate.Store, parent *mutation.Mutation, sale *model.Sale) error {
	req := &dto.Request{
		ID:        uuid.New().String(),
		OwnerID:   parent.Request.OwnerID,
		Op:        dto.OpCreate,
		Kind:      model.KindSale,
		Candidate: sale,
	}
	child := mutation.New(req)
	parent.FollowUp = child
	defer uc.observe(child, time.Now())

	if _, err := uc.execute(ctx, store, child); err != nil {
		orderRef := ""
		if sale.LinkedOrder != nil {
			orderRef = *sale.LinkedOrder
		}
		ierr := &errs.IntegrityError{Reason: "orphaned linkage: delivered order " + orderRef + " has no sale", Err: err}
		uc.metrics.IntegrityErrors.Inc()
		uc.logger.Error("failed to create linked sale",
			zap.String("mutation_id", parent.ID),
			zap.String("follow_up_id", child.ID),
			zap.String("order_ref", orderRef),
			zap.Error(err))
		parent.Err = ierr
		return ierr
	}
	return nil
}

func (uc *mutationUseCase) observe(m *mutation.Mutation, start time.Time) {
	req := m.Request
	uc.metrics.Mutations.WithLabelValues(string(req.Kind), string(req.Op), outcome(m)).Inc()
	uc.metrics.SubmitLatency.WithLabelValues(string(req.Kind)).Observe(time.Since(start).Seconds())
}

func outcome(m *mutation.Mutation) string {
	if m.State == mutation.StateApplied {
		return "applied"
	}
	var (
		verr *errs.ValidationError
		rej  *errs.RejectionError
		ferr *errs.FailureError
	)
	switch {
	case errors.As(m.Err, &verr):
		return "invalid"
	case errors.Is(m.Err, flight.ErrInFlight):
		return "in_flight"
	case errors.As(m.Err, &rej):
		return "rejected"
	case errors.Is(m.Err, errs.ErrIntegrity):
		return "integrity"
	case errors.As(m.Err, &ferr):
		return "failed"
	}
	return "unknown"
}

func flightKeys(req *dto.Request) []string {
	switch req.Op {
	case dto.OpCreate:
		// creates only collide on unique names
		if name := uniqueName(req.Candidate); name != "" {
			return []string{flight.Key(req.OwnerID, string(req.Kind), "name:"+name)}
		}
		return nil
	default:
		ids := req.TargetIDs()
		keys := make([]string, 0, len(ids))
		for _, id := range ids {
			keys = append(keys, flight.Key(req.OwnerID, string(req.Kind), id))
		}
		return keys
	}
}

func uniqueName(e model.Entity) string {
	switch v := e.(type) {
	case *model.InventoryItem:
		return v.Name
	case *model.Client:
		return v.Name
	case *model.Supplier:
		return v.Name
	}
	return ""
}
