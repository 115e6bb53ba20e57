package model

import (
	"fmt"
	"time"
)

type Kind string

const (
	KindInventoryItem Kind = "inventory_item"
	KindClientOrder   Kind = "client_order"
	KindSale          Kind = "sale"
	KindSupplierOrder Kind = "supplier_order"
	KindClient        Kind = "client"
	KindSupplier      Kind = "supplier"
)

// Entity is implemented by the pointer form of every record kind.
type Entity interface {
	EntityID() string
	EntityKind() Kind
	Base() *BaseModel
}

type BaseModel struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *BaseModel) EntityID() string { return b.ID }
func (b *BaseModel) Base() *BaseModel { return b }

// NewEntity returns an empty record of the given kind, ready to be decoded into.
func NewEntity(kind Kind) (Entity, error) {
	switch kind {
	case KindInventoryItem:
		return &InventoryItem{}, nil
	case KindClientOrder:
		return &ClientOrder{}, nil
	case KindSale:
		return &Sale{}, nil
	case KindSupplierOrder:
		return &SupplierOrder{}, nil
	case KindClient:
		return &Client{}, nil
	case KindSupplier:
		return &Supplier{}, nil
	}
	return nil, fmt.Errorf("unknown entity kind %q", kind)
}
