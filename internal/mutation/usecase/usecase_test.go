package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fekuna/omnipos-commerce-service/internal/aggregate"
	"github.com/fekuna/omnipos-commerce-service/internal/auth"
	"github.com/fekuna/omnipos-commerce-service/internal/errs"
	"github.com/fekuna/omnipos-commerce-service/internal/flight"
	"github.com/fekuna/omnipos-commerce-service/internal/metrics"
	"github.com/fekuna/omnipos-commerce-service/internal/model"
	"github.com/fekuna/omnipos-commerce-service/internal/movement"
	"github.com/fekuna/omnipos-commerce-service/internal/mutation"
	"github.com/fekuna/omnipos-commerce-service/internal/mutation/dto"
	"github.com/fekuna/omnipos-commerce-service/internal/status"
	"github.com/fekuna/omnipos-commerce-service/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthority struct {
	mu      sync.Mutex
	records map[string]model.Entity
	fail    map[model.Kind]error
	calls   int
	synced  []model.InventoryItem
	ctxErrs []error
}

func newFakeAuthority() *fakeAuthority {
	return &fakeAuthority{records: map[string]model.Entity{}, fail: map[model.Kind]error{}}
}

func (f *fakeAuthority) enter(ctx context.Context, kind model.Kind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	return f.fail[kind]
}

func (f *fakeAuthority) Create(ctx context.Context, ownerID string, e model.Entity) (model.Entity, error) {
	if err := f.enter(ctx, e.EntityKind()); err != nil {
		return nil, err
	}
	b := e.Base()
	b.ID = uuid.New().String()
	b.OwnerID = ownerID
	if o, ok := e.(*model.ClientOrder); ok && o.ReferenceID == "" {
		o.ReferenceID = "ORD-" + b.ID[:8]
	}
	f.mu.Lock()
	f.records[b.ID] = e
	f.mu.Unlock()
	return e, nil
}

func (f *fakeAuthority) Update(ctx context.Context, ownerID string, e model.Entity) (model.Entity, error) {
	if err := f.enter(ctx, e.EntityKind()); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.records[e.EntityID()] = e
	f.mu.Unlock()
	return e, nil
}

func (f *fakeAuthority) Delete(ctx context.Context, ownerID string, kind model.Kind, ids []string) ([]model.Entity, error) {
	if err := f.enter(ctx, kind); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Entity
	for _, id := range ids {
		if e, ok := f.records[id]; ok {
			out = append(out, e)
			delete(f.records, id)
		}
	}
	return out, nil
}

func (f *fakeAuthority) SyncInventory(_ context.Context, _ string, items []model.InventoryItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, items...)
	return nil
}

type fakePublisher struct {
	published []model.InventoryMovement
}

func (p *fakePublisher) Publish(_ context.Context, movements []model.InventoryMovement) error {
	p.published = append(p.published, movements...)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

// gatedPublisher holds the first Publish call until release is closed.
type gatedPublisher struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (p *gatedPublisher) Publish(context.Context, []model.InventoryMovement) error {
	first := false
	p.once.Do(func() { first = true })
	if first {
		close(p.entered)
		<-p.release
	}
	return nil
}

func (p *gatedPublisher) Close() error { return nil }

type fixture struct {
	uc    mutation.UseCase
	repo  *fakeAuthority
	pub   *fakePublisher
	guard *flight.MemoryGuard
	ctx   context.Context
}

func newFixture(t *testing.T, widgets int) *fixture {
	t.Helper()
	pub := &fakePublisher{}
	f := newFixtureWith(t, widgets, pub)
	f.pub = pub
	return f
}

func newFixtureWith(t *testing.T, widgets int, pub movement.Publisher) *fixture {
	t.Helper()
	seed := aggregate.LoaderFunc(func(_ context.Context, ownerID string) (*aggregate.Snapshot, bool, error) {
		s := aggregate.NewSnapshot(ownerID)
		s.Inventory["Widget"] = model.InventoryItem{Name: "Widget", Quantity: widgets, Price: decimal.NewFromInt(2)}
		s.Caches.ClientNames.Add("Alice")
		return s, true, nil
	})
	f := &fixture{
		repo:  newFakeAuthority(),
		guard: flight.NewMemoryGuard(),
		ctx:   auth.WithOwnerID(context.Background(), "u-1"),
	}
	f.uc = NewMutationUseCase(
		f.repo,
		aggregate.NewRegistry(seed),
		mutation.NewReducer(status.NewDefaultClassifier()),
		f.guard,
		pub,
		metrics.NewRegistry(),
		logger.NewNop(),
	)
	return f
}

func (f *fixture) stock(t *testing.T) int {
	t.Helper()
	snap, err := f.uc.Snapshot(f.ctx, "u-1")
	require.NoError(t, err)
	return snap.Inventory["Widget"].Quantity
}

func newOrder(qty int) *model.ClientOrder {
	return &model.ClientOrder{
		Client:         "Alice",
		OrderedItems:   []model.Line{{Item: "Widget", Quantity: qty, UnitPrice: decimal.NewFromInt(2)}},
		DeliveryStatus: model.StatusPending,
		PaymentStatus:  "Unpaid",
	}
}

func clone(o *model.ClientOrder) *model.ClientOrder {
	c := *o
	c.OrderedItems = model.CloneLines(o.OrderedItems)
	return &c
}

func TestSubmit_WidgetScenario(t *testing.T) {
	f := newFixture(t, 10)

	m, err := f.uc.Submit(f.ctx, &dto.Request{Op: dto.OpCreate, Kind: model.KindClientOrder, Candidate: newOrder(4)})
	require.NoError(t, err)
	assert.Equal(t, mutation.StateApplied, m.State)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "u-1", m.Request.OwnerID)
	assert.Equal(t, 6, f.stock(t))
	assert.Equal(t, 1, m.Snapshot.Counters.ClientOrders.Delivery.Active)

	created := m.Result.Entities[0].(*model.ClientOrder)
	edited := clone(created)
	edited.OrderedItems[0].Quantity = 7
	_, err = f.uc.Submit(f.ctx, &dto.Request{Op: dto.OpUpdate, Kind: model.KindClientOrder, Candidate: edited, Previous: []model.Entity{created}})
	require.NoError(t, err)
	assert.Equal(t, 3, f.stock(t))

	_, err = f.uc.Submit(f.ctx, &dto.Request{Op: dto.OpDelete, Kind: model.KindClientOrder, Previous: []model.Entity{edited}})
	require.NoError(t, err)
	assert.Equal(t, 10, f.stock(t))

	require.Len(t, f.pub.published, 3)
	for _, mv := range f.pub.published {
		assert.NotEmpty(t, mv.ID)
		assert.False(t, mv.CreatedAt.IsZero())
	}
	require.NotEmpty(t, f.repo.synced)
	assert.Equal(t, 10, f.repo.synced[len(f.repo.synced)-1].Quantity)
}

func TestSubmit_PreflightNeverReachesRecordStore(t *testing.T) {
	f := newFixture(t, 3)

	m, err := f.uc.Submit(f.ctx, &dto.Request{Op: dto.OpCreate, Kind: model.KindClientOrder, Candidate: newOrder(4)})
	var verr *errs.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "ordered_items.0.quantity")
	assert.Equal(t, mutation.StateRejected, m.State)
	assert.Equal(t, 0, f.repo.calls)
	assert.Equal(t, 3, f.stock(t))
}

func TestSubmit_RemoteErrors(t *testing.T) {
	tests := []struct {
		name   string
		remote error
		check  func(t *testing.T, err error)
	}{
		{
			name: "rejection passes through",
			remote: &errs.RejectionError{
				Fields: errs.FieldErrors{"client": {"unknown client"}},
				Nested: map[string]errs.FieldErrors{"shipping_address": {"zip_code": {"invalid"}}},
			},
			check: func(t *testing.T, err error) {
				var rej *errs.RejectionError
				require.ErrorAs(t, err, &rej)
				assert.Contains(t, rej.Nested, "shipping_address")
			},
		},
		{
			name:   "anything else is a failure",
			remote: errors.New("connection reset"),
			check: func(t *testing.T, err error) {
				var ferr *errs.FailureError
				require.ErrorAs(t, err, &ferr)
				assert.ErrorContains(t, err, "try again later")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 10)
			f.repo.fail[model.KindClientOrder] = tt.remote

			m, err := f.uc.Submit(f.ctx, &dto.Request{Op: dto.OpCreate, Kind: model.KindClientOrder, Candidate: newOrder(4)})
			tt.check(t, err)
			assert.Equal(t, mutation.StateRejected, m.State)
			assert.Same(t, err, m.Err)
			assert.Equal(t, 10, f.stock(t))
			assert.Empty(t, f.pub.published)
		})
	}
}

func TestSubmit_InFlightRecordIsRefused(t *testing.T) {
	f := newFixture(t, 10)
	m, err := f.uc.Submit(f.ctx, &dto.Request{Op: dto.OpCreate, Kind: model.KindClientOrder, Candidate: newOrder(1)})
	require.NoError(t, err)
	created := m.Result.Entities[0].(*model.ClientOrder)

	release, err := f.guard.Acquire(f.ctx, flight.Key("u-1", string(model.KindClientOrder), created.ID))
	require.NoError(t, err)

	edited := clone(created)
	edited.OrderedItems[0].Quantity = 2
	_, err = f.uc.Submit(f.ctx, &dto.Request{Op: dto.OpUpdate, Kind: model.KindClientOrder, Candidate: edited, Previous: []model.Entity{created}})
	assert.ErrorIs(t, err, flight.ErrInFlight)
	assert.Equal(t, 9, f.stock(t))

	release()
	_, err = f.uc.Submit(f.ctx, &dto.Request{Op: dto.OpUpdate, Kind: model.KindClientOrder, Candidate: edited, Previous: []model.Entity{created}})
	require.NoError(t, err)
	assert.Equal(t, 8, f.stock(t))
}

func TestSubmit_CancelledCallerStillCompletes(t *testing.T) {
	f := newFixture(t, 10)
	ctx, cancel := context.WithCancel(f.ctx)
	cancel()

	m, err := f.uc.Submit(ctx, &dto.Request{Op: dto.OpCreate, Kind: model.KindClientOrder, Candidate: newOrder(2)})
	require.NoError(t, err)
	assert.Equal(t, mutation.StateApplied, m.State)
	assert.Equal(t, []error{nil}, f.repo.ctxErrs)
	assert.Equal(t, 8, f.stock(t))
}

func TestSubmit_DeliveryCreatesLinkedSale(t *testing.T) {
	f := newFixture(t, 10)
	m, err := f.uc.Submit(f.ctx, &dto.Request{Op: dto.OpCreate, Kind: model.KindClientOrder, Candidate: newOrder(4)})
	require.NoError(t, err)
	created := m.Result.Entities[0].(*model.ClientOrder)

	delivered := clone(created)
	delivered.DeliveryStatus = model.StatusDelivered
	m, err = f.uc.Submit(f.ctx, &dto.Request{Op: dto.OpUpdate, Kind: model.KindClientOrder, Candidate: delivered, Previous: []model.Entity{created}})
	require.NoError(t, err)
	require.NotNil(t, m.FollowUp)
	assert.Equal(t, mutation.StateApplied, m.FollowUp.State)

	sale := m.FollowUp.Result.Entities[0].(*model.Sale)
	assert.Equal(t, created.ReferenceID, *sale.LinkedOrder)
	assert.Equal(t, "Alice", sale.Client)

	snap, err := f.uc.Snapshot(f.ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, sale.ID, snap.Links[created.ReferenceID])
	assert.Equal(t, 1, snap.Counters.Sales.Total)
	assert.Equal(t, 6, f.stock(t), "the sale inherits the order's reservation")
}

func TestSubmit_FailedFollowUpIsOrphanedLinkage(t *testing.T) {
	f := newFixture(t, 10)
	m, err := f.uc.Submit(f.ctx, &dto.Request{Op: dto.OpCreate, Kind: model.KindClientOrder, Candidate: newOrder(4)})
	require.NoError(t, err)
	created := m.Result.Entities[0].(*model.ClientOrder)

	f.repo.fail[model.KindSale] = errors.New("timeout")
	delivered := clone(created)
	delivered.DeliveryStatus = model.StatusDelivered
	m, err = f.uc.Submit(f.ctx, &dto.Request{Op: dto.OpUpdate, Kind: model.KindClientOrder, Candidate: delivered, Previous: []model.Entity{created}})

	assert.ErrorIs(t, err, errs.ErrIntegrity)
	assert.ErrorContains(t, err, "orphaned linkage")
	assert.Equal(t, mutation.StateApplied, m.State, "the order itself stays applied")
	assert.Equal(t, mutation.StateRejected, m.FollowUp.State)
	assert.Equal(t, 1, m.Snapshot.Counters.ClientOrders.Delivery.Completed)
	assert.Empty(t, m.Snapshot.Links)
}

func TestSubmit_MissingOwner(t *testing.T) {
	f := newFixture(t, 10)
	m, err := f.uc.Submit(context.Background(), &dto.Request{Op: dto.OpCreate, Kind: model.KindClientOrder, Candidate: newOrder(1)})
	var ferr *errs.FailureError
	assert.ErrorAs(t, err, &ferr)
	assert.Equal(t, mutation.StateRejected, m.State)
}

func TestSubmit_StockWriteBackFollowsApplyOrder(t *testing.T) {
	pub := &gatedPublisher{entered: make(chan struct{}), release: make(chan struct{})}
	f := newFixtureWith(t, 10, pub)

	// the first order applies (10 -> 6) and stalls before its write-back
	done := make(chan error, 1)
	go func() {
		_, err := f.uc.Submit(f.ctx, &dto.Request{Op: dto.OpCreate, Kind: model.KindClientOrder, Candidate: newOrder(4)})
		done <- err
	}()
	<-pub.entered

	// the second order applies (6 -> 3) and writes back first
	_, err := f.uc.Submit(f.ctx, &dto.Request{Op: dto.OpCreate, Kind: model.KindClientOrder, Candidate: newOrder(3)})
	require.NoError(t, err)

	close(pub.release)
	require.NoError(t, <-done)

	assert.Equal(t, 3, f.stock(t))
	f.repo.mu.Lock()
	defer f.repo.mu.Unlock()
	require.Len(t, f.repo.synced, 2)
	last := f.repo.synced[len(f.repo.synced)-1]
	assert.Equal(t, "Widget", last.Name)
	assert.Equal(t, 3, last.Quantity, "a late write-back must not restore older stock")
}
