package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-commerce-service/internal/errs"
	"github.com/fekuna/omnipos-commerce-service/internal/model"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS commerce_records (
    id           TEXT PRIMARY KEY,
    owner_id     TEXT NOT NULL,
    kind         TEXT NOT NULL,
    name         TEXT,
    reference_id TEXT,
    body         JSONB NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS commerce_records_owner_kind_name
    ON commerce_records (owner_id, kind, name) WHERE name IS NOT NULL;
CREATE INDEX IF NOT EXISTS commerce_records_owner ON commerce_records (owner_id, created_at);

CREATE TABLE IF NOT EXISTS inventory_movements (
    id              TEXT PRIMARY KEY,
    owner_id        TEXT NOT NULL,
    mutation_id     TEXT NOT NULL,
    item            TEXT NOT NULL,
    movement_type   TEXT NOT NULL,
    quantity_change INTEGER NOT NULL,
    quantity_before INTEGER NOT NULL,
    quantity_after  INTEGER NOT NULL,
    price_before    NUMERIC NOT NULL,
    price_after     NUMERIC NOT NULL,
    reference_kind  TEXT,
    reference_id    TEXT,
    created_at      TIMESTAMPTZ NOT NULL
);`

const uniqueViolation = "23505"

type record struct {
	ID          string         `db:"id"`
	OwnerID     string         `db:"owner_id"`
	Kind        string         `db:"kind"`
	Name        sql.NullString `db:"name"`
	ReferenceID sql.NullString `db:"reference_id"`
	Body        []byte         `db:"body"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// PGRepository stores every entity kind as a JSONB document. Names of items,
// clients and suppliers are unique per owner.
type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, schema)
	return err
}

func (r *PGRepository) Create(ctx context.Context, ownerID string, e model.Entity) (model.Entity, error) {
	if err := r.checkReferences(ctx, ownerID, e); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	b := e.Base()
	b.ID = uuid.New().String()
	b.OwnerID = ownerID
	b.CreatedAt = now
	b.UpdatedAt = now
	assignReference(e)

	rec, err := toRecord(e)
	if err != nil {
		return nil, err
	}

	query := `
        INSERT INTO commerce_records (id, owner_id, kind, name, reference_id, body, created_at, updated_at)
        VALUES (:id, :owner_id, :kind, :name, :reference_id, :body, :created_at, :updated_at)
    `
	if _, err := r.DB.NamedExecContext(ctx, query, rec); err != nil {
		return nil, rejectConflict(err)
	}
	return e, nil
}

func (r *PGRepository) Update(ctx context.Context, ownerID string, e model.Entity) (model.Entity, error) {
	if err := r.checkReferences(ctx, ownerID, e); err != nil {
		return nil, err
	}

	b := e.Base()
	b.OwnerID = ownerID
	b.UpdatedAt = time.Now().UTC()
	rec, err := toRecord(e)
	if err != nil {
		return nil, err
	}

	query := `
        UPDATE commerce_records
        SET name = :name, reference_id = :reference_id, body = :body, updated_at = :updated_at
        WHERE id = :id AND owner_id = :owner_id AND kind = :kind
    `
	res, err := r.DB.NamedExecContext(ctx, query, rec)
	if err != nil {
		return nil, rejectConflict(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, reject("id", "record not found")
	}
	return e, nil
}

func (r *PGRepository) Delete(ctx context.Context, ownerID string, kind model.Kind, ids []string) ([]model.Entity, error) {
	if len(ids) == 0 {
		return []model.Entity{}, nil
	}

	query, args, err := sqlx.In(`
        DELETE FROM commerce_records
        WHERE owner_id = ? AND kind = ? AND id IN (?)
        RETURNING kind, body
    `, ownerID, string(kind), ids)
	if err != nil {
		return nil, err
	}
	// Rebind for Postgres ($1, $2...)
	query = r.DB.Rebind(query)

	var rows []record
	if err := r.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return decodeAll(rows)
}

func (r *PGRepository) ListAll(ctx context.Context, ownerID string) ([]model.Entity, error) {
	var rows []record
	query := `SELECT kind, body FROM commerce_records WHERE owner_id = $1 ORDER BY created_at, id`
	if err := r.DB.SelectContext(ctx, &rows, query, ownerID); err != nil {
		return nil, err
	}
	return decodeAll(rows)
}

// SyncInventory writes engine-computed quantity and price into the stored
// item documents. Items first created by a supplier delivery get a record.
func (r *PGRepository) SyncInventory(ctx context.Context, ownerID string, items []model.InventoryItem) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for i := range items {
		item := items[i]
		res, err := tx.ExecContext(ctx, `
            UPDATE commerce_records
            SET body = jsonb_set(jsonb_set(body, '{quantity}', to_jsonb($1::int)), '{price}', to_jsonb($2::text)),
                updated_at = $3
            WHERE owner_id = $4 AND kind = $5 AND name = $6
        `, item.Quantity, item.Price.String(), now, ownerID, string(model.KindInventoryItem), item.Name)
		if err != nil {
			return fmt.Errorf("failed to update item %q: %w", item.Name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n > 0 {
			continue
		}

		item.ID = uuid.New().String()
		item.OwnerID = ownerID
		item.CreatedAt = now
		item.UpdatedAt = now
		rec, err := toRecord(&item)
		if err != nil {
			return err
		}
		_, err = tx.NamedExecContext(ctx, `
            INSERT INTO commerce_records (id, owner_id, kind, name, reference_id, body, created_at, updated_at)
            VALUES (:id, :owner_id, :kind, :name, :reference_id, :body, :created_at, :updated_at)
        `, rec)
		if err != nil {
			return fmt.Errorf("failed to insert item %q: %w", item.Name, err)
		}
	}
	return tx.Commit()
}

func (r *PGRepository) LogMovements(ctx context.Context, movements []model.InventoryMovement) error {
	if len(movements) == 0 {
		return nil
	}
	query := `
        INSERT INTO inventory_movements (
            id, owner_id, mutation_id, item, movement_type,
            quantity_change, quantity_before, quantity_after,
            price_before, price_after, reference_kind, reference_id, created_at
        )
        VALUES (
            :id, :owner_id, :mutation_id, :item, :movement_type,
            :quantity_change, :quantity_before, :quantity_after,
            :price_before, :price_after, :reference_kind, :reference_id, :created_at
        )
    `
	_, err := r.DB.NamedExecContext(ctx, query, movements)
	return err
}

// checkReferences refuses orders naming a client or supplier that does not
// exist, the way a remote API answers with a 400.
func (r *PGRepository) checkReferences(ctx context.Context, ownerID string, e model.Entity) error {
	var (
		field string
		kind  model.Kind
		name  string
		addr  *model.Address
	)
	switch v := e.(type) {
	case *model.ClientOrder:
		field, kind, name, addr = "client", model.KindClient, v.Client, &v.ShippingAddress
	case *model.Sale:
		field, kind, name, addr = "client", model.KindClient, v.Client, &v.ShippingAddress
	case *model.SupplierOrder:
		field, kind, name = "supplier", model.KindSupplier, v.Supplier
	case *model.Client:
		return checkAddress("location", &v.Location)
	case *model.Supplier:
		return checkAddress("location", &v.Location)
	default:
		return nil
	}

	var exists bool
	err := r.DB.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM commerce_records WHERE owner_id = $1 AND kind = $2 AND name = $3)`,
		ownerID, string(kind), name)
	if err != nil {
		return err
	}

	rej := &errs.RejectionError{Fields: errs.FieldErrors{}}
	if !exists {
		rej.Fields.Add(field, fmt.Sprintf("%s %q does not exist", kind, name))
	}
	if addr != nil {
		var nested *errs.RejectionError
		if errors.As(checkAddress("shipping_address", addr), &nested) {
			rej.Nested = nested.Nested
		}
	}
	if len(rej.Fields) == 0 && len(rej.Nested) == 0 {
		return nil
	}
	return rej
}

// checkAddress requires city and country once any part of an address is set.
func checkAddress(field string, a *model.Address) error {
	if *a == (model.Address{}) {
		return nil
	}
	fe := errs.FieldErrors{}
	if strings.TrimSpace(a.City) == "" {
		fe.Add("city", "is required")
	}
	if strings.TrimSpace(a.Country) == "" {
		fe.Add("country", "is required")
	}
	if len(fe) == 0 {
		return nil
	}
	return &errs.RejectionError{Nested: map[string]errs.FieldErrors{field: fe}}
}

func assignReference(e model.Entity) {
	short := strings.ToUpper(strings.ReplaceAll(e.EntityID(), "-", "")[:10])
	switch v := e.(type) {
	case *model.ClientOrder:
		if v.ReferenceID == "" {
			v.ReferenceID = "ORD-" + short
		}
	case *model.Sale:
		if v.ReferenceID == "" {
			v.ReferenceID = "SAL-" + short
		}
	case *model.SupplierOrder:
		if v.ReferenceID == "" {
			v.ReferenceID = "PO-" + short
		}
	}
}

func toRecord(e model.Entity) (*record, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.EntityKind(), err)
	}
	b := e.Base()
	rec := &record{
		ID:        b.ID,
		OwnerID:   b.OwnerID,
		Kind:      string(e.EntityKind()),
		Body:      body,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
	switch v := e.(type) {
	case *model.InventoryItem:
		rec.Name = sql.NullString{String: v.Name, Valid: true}
	case *model.Client:
		rec.Name = sql.NullString{String: v.Name, Valid: true}
	case *model.Supplier:
		rec.Name = sql.NullString{String: v.Name, Valid: true}
	case *model.ClientOrder:
		rec.ReferenceID = sql.NullString{String: v.ReferenceID, Valid: v.ReferenceID != ""}
	case *model.Sale:
		rec.ReferenceID = sql.NullString{String: v.ReferenceID, Valid: v.ReferenceID != ""}
	case *model.SupplierOrder:
		rec.ReferenceID = sql.NullString{String: v.ReferenceID, Valid: v.ReferenceID != ""}
	}
	return rec, nil
}

func decodeAll(rows []record) ([]model.Entity, error) {
	out := make([]model.Entity, 0, len(rows))
	for _, row := range rows {
		e, err := model.NewEntity(model.Kind(row.Kind))
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(row.Body, e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", row.Kind, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func reject(field, msg string) *errs.RejectionError {
	return &errs.RejectionError{Fields: errs.FieldErrors{field: {msg}}}
}

func rejectConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return reject("name", "already exists")
	}
	return err
}
