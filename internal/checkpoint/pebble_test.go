package checkpoint

import (
	"context"
	"testing"

	"github.com/fekuna/omnipos-commerce-service/internal/aggregate"
	"github.com/fekuna/omnipos-commerce-service/internal/model"
	"github.com/fekuna/omnipos-commerce-service/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPebbleStore_RoundTrip(t *testing.T) {
	p, err := NewPebbleStore(t.TempDir())
	require.NoError(t, err)
	defer p.Close()
	ctx := context.Background()

	_, ok, err := p.Load(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, ok)

	s := aggregate.NewSnapshot("u-1")
	s.Version = 4
	s.Inventory["Widget"] = model.InventoryItem{Name: "Widget", Quantity: 6, Price: decimal.RequireFromString("4.3333")}
	s.Links["ORD-1"] = "s-1"
	s.Merged["so-1"] = struct{}{}
	s.Caches.CatalogAdd("Acme", "Widget")
	s.Counters.ClientOrders.Insert(0, 1)

	p.Hook(logger.NewNop())(s)

	got, ok, err := p.Load(ctx, "u-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(4), got.Version)
	assert.Equal(t, 6, got.Inventory["Widget"].Quantity)
	assert.True(t, got.Inventory["Widget"].Price.Equal(decimal.RequireFromString("4.3333")))
	assert.Equal(t, "s-1", got.Links["ORD-1"])
	assert.True(t, got.Merged.Has("so-1"))
	assert.True(t, got.Caches.SupplierCatalog["Acme"].Has("Widget"))
	assert.Equal(t, s.Counters, got.Counters)
	assert.NotNil(t, got.Caches.ClientNames)
}

func TestPebbleStore_SeedsRegistry(t *testing.T) {
	dir := t.TempDir()
	p, err := NewPebbleStore(dir)
	require.NoError(t, err)

	reg := aggregate.NewRegistry(p, p.Hook(logger.NewNop()))
	st, err := reg.Get(context.Background(), "u-1")
	require.NoError(t, err)
	_, err = st.Update(func(prev *aggregate.Snapshot) (*aggregate.Snapshot, error) {
		n := prev.Clone()
		n.Counters.Clients = 2
		return n, nil
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())

	reopened, err := NewPebbleStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	st, err = aggregate.NewRegistry(reopened).Get(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, 2, st.Current().Counters.Clients)
	assert.Equal(t, uint64(1), st.Current().Version)
}
