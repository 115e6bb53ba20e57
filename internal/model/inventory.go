package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Variant struct {
	Name    string   `json:"name"`
	Options []string `json:"options"`
}

type InventoryItem struct {
	BaseModel
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Category *string         `json:"category,omitempty"`
	Supplier *string         `json:"supplier,omitempty"`
	Variants []Variant       `json:"variants,omitempty"`
}

func (i *InventoryItem) EntityKind() Kind { return KindInventoryItem }

func (i *InventoryItem) TotalPrice() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Clone copies the item including its variant lists.
func (i InventoryItem) Clone() InventoryItem {
	out := i
	if i.Variants != nil {
		out.Variants = make([]Variant, len(i.Variants))
		for n, v := range i.Variants {
			out.Variants[n] = Variant{Name: v.Name, Options: append([]string(nil), v.Options...)}
		}
	}
	return out
}

const (
	MovementReservation = "reservation"
	MovementRelease     = "release"
	MovementAdjustment  = "adjustment"
	MovementReceipt     = "receipt"
)

type InventoryMovement struct {
	ID             string          `json:"id" db:"id"`
	OwnerID        string          `json:"owner_id" db:"owner_id"`
	MutationID     string          `json:"mutation_id" db:"mutation_id"`
	Item           string          `json:"item" db:"item"`
	MovementType   string          `json:"movement_type" db:"movement_type"`
	QuantityChange int             `json:"quantity_change" db:"quantity_change"`
	QuantityBefore int             `json:"quantity_before" db:"quantity_before"`
	QuantityAfter  int             `json:"quantity_after" db:"quantity_after"`
	PriceBefore    decimal.Decimal `json:"price_before" db:"price_before"`
	PriceAfter     decimal.Decimal `json:"price_after" db:"price_after"`
	ReferenceKind  Kind            `json:"reference_kind" db:"reference_kind"`
	ReferenceID    string          `json:"reference_id" db:"reference_id"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}
