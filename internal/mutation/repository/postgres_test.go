package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/fekuna/omnipos-commerce-service/internal/errs"
	"github.com/fekuna/omnipos-commerce-service/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*PGRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPGRepository(sqlx.NewDb(db, "postgres")), mock
}

func anyArgs(n int) []driver.Value {
	out := make([]driver.Value, n)
	for i := range out {
		out[i] = sqlmock.AnyArg()
	}
	return out
}

func TestCreate_AssignsIdentity(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO commerce_records")).
		WithArgs(anyArgs(8)...).
		WillReturnResult(sqlmock.NewResult(1, 1))

	item := &model.InventoryItem{Name: "Widget", Quantity: 3, Price: decimal.NewFromInt(2)}
	got, err := repo.Create(context.Background(), "u-1", item)
	require.NoError(t, err)
	assert.NotEmpty(t, got.EntityID())
	assert.Equal(t, "u-1", got.Base().OwnerID)
	assert.False(t, got.Base().CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DuplicateNameIsRejection(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO commerce_records")).
		WithArgs(anyArgs(8)...).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := repo.Create(context.Background(), "u-1", &model.Client{Name: "Alice"})
	var rej *errs.RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Fields, "name")
}

func TestCreate_OrderReferences(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("u-1", "client", "Ghost").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	order := &model.ClientOrder{
		Client:          "Ghost",
		ShippingAddress: model.Address{Street: "1 Main St"},
	}
	_, err := repo.Create(context.Background(), "u-1", order)
	var rej *errs.RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Fields, "client")
	require.Contains(t, rej.Nested, "shipping_address")
	assert.Contains(t, rej.Nested["shipping_address"], "country")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_OrderGetsReference(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO commerce_records")).
		WithArgs(anyArgs(8)...).
		WillReturnResult(sqlmock.NewResult(1, 1))

	got, err := repo.Create(context.Background(), "u-1", &model.ClientOrder{Client: "Alice"})
	require.NoError(t, err)
	assert.Regexp(t, `^ORD-[0-9A-F]{10}$`, got.(*model.ClientOrder).ReferenceID)
}

func TestUpdate_MissingRecord(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE commerce_records")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.Update(context.Background(), "u-1", &model.InventoryItem{BaseModel: model.BaseModel{ID: "i-1"}, Name: "Widget"})
	var rej *errs.RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Fields, "id")
}

func TestDelete_ReturnsRemovedRecords(t *testing.T) {
	repo, mock := newMock(t)
	rows := sqlmock.NewRows([]string{"kind", "body"}).
		AddRow("client_order", []byte(`{"id":"o-1","ordered_items":[{"item":"Widget","quantity":4,"unit_price":"2"}]}`)).
		AddRow("client_order", []byte(`{"id":"o-2","ordered_items":[]}`))
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM commerce_records")).
		WithArgs("u-1", "client_order", "o-1", "o-2", "o-3").
		WillReturnRows(rows)

	got, err := repo.Delete(context.Background(), "u-1", model.KindClientOrder, []string{"o-1", "o-2", "o-3"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	first := got[0].(*model.ClientOrder)
	assert.Equal(t, 4, first.OrderedItems[0].Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncInventory_InsertsUnknownItems(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE commerce_records")).
		WithArgs(6, "2", sqlmock.AnyArg(), "u-1", "inventory_item", "Widget").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE commerce_records")).
		WithArgs(4, "1.5", sqlmock.AnyArg(), "u-1", "inventory_item", "Gadget").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO commerce_records")).
		WithArgs(anyArgs(8)...).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.SyncInventory(context.Background(), "u-1", []model.InventoryItem{
		{Name: "Widget", Quantity: 6, Price: decimal.NewFromInt(2)},
		{Name: "Gadget", Quantity: 4, Price: decimal.RequireFromString("1.5")},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncInventory_RollsBackOnError(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE commerce_records")).
		WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	err := repo.SyncInventory(context.Background(), "u-1", []model.InventoryItem{{Name: "Widget"}})
	assert.ErrorContains(t, err, "deadlock")
	assert.NoError(t, mock.ExpectationsWereMet())
}
