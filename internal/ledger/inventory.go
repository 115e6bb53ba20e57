package ledger

import (
	"github.com/fekuna/omnipos-commerce-service/internal/errs"
	"github.com/fekuna/omnipos-commerce-service/internal/model"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

// PricePrecision is the number of decimal places kept for averaged prices.
const PricePrecision = 4

// Inventory is the owner's stock keyed by item name.
type Inventory map[string]model.InventoryItem

func (inv Inventory) Clone() Inventory {
	out := make(Inventory, len(inv))
	for name, item := range inv {
		out[name] = item.Clone()
	}
	return out
}

// Apply returns a new inventory with every delta applied. The input is never
// modified. A delta against an unknown item or one that drives stock below
// zero is an integrity error: the pre-flight check was bypassed or stock
// moved underneath us, so nothing is clamped.
func Apply(inv Inventory, d Deltas) (Inventory, []model.InventoryMovement, error) {
	if d.IsZero() {
		return inv, nil, nil
	}

	next := inv.Clone()
	var movements []model.InventoryMovement
	var err error
	for _, name := range d.Names() {
		change := d[name]
		item, ok := next[name]
		if !ok {
			err = multierr.Append(err, errs.Integrity("stock delta %+d for unknown item %q", change, name))
			continue
		}

		quantityBefore := item.Quantity
		item.Quantity += change
		if item.Quantity < 0 {
			err = multierr.Append(err, errs.Integrity("item %q would drop to %d (was %d, delta %+d)", name, item.Quantity, quantityBefore, change))
			continue
		}
		next[name] = item

		movementType := model.MovementRelease
		if change < 0 {
			movementType = model.MovementReservation
		}
		movements = append(movements, model.InventoryMovement{
			Item:           name,
			MovementType:   movementType,
			QuantityChange: change,
			QuantityBefore: quantityBefore,
			QuantityAfter:  item.Quantity,
			PriceBefore:    item.Price,
			PriceAfter:     item.Price,
		})
	}
	if err != nil {
		return nil, nil, err
	}
	return next, movements, nil
}

// MergeDelivery books a delivered supplier order into stock. Absent items are
// created at the ordered price; existing ones get the ordered quantity added
// and their price replaced by the quantity-weighted average.
func MergeDelivery(inv Inventory, supplier string, lines []model.Line) (Inventory, []model.InventoryMovement) {
	next := inv.Clone()
	movements := make([]model.InventoryMovement, 0, len(lines))
	for _, l := range lines {
		item, ok := next[l.Item]
		if !ok {
			item = model.InventoryItem{Name: l.Item, Price: decimal.Zero}
			if supplier != "" {
				s := supplier
				item.Supplier = &s
			}
		}

		quantityBefore := item.Quantity
		priceBefore := item.Price
		item.Price = WeightedPrice(item.Quantity, item.Price, l.Quantity, l.UnitPrice)
		item.Quantity += l.Quantity
		next[l.Item] = item

		movements = append(movements, model.InventoryMovement{
			Item:           l.Item,
			MovementType:   model.MovementReceipt,
			QuantityChange: l.Quantity,
			QuantityBefore: quantityBefore,
			QuantityAfter:  item.Quantity,
			PriceBefore:    priceBefore,
			PriceAfter:     item.Price,
		})
	}
	return next, movements
}

// WeightedPrice = (oldQty*oldPrice + addQty*addPrice) / (oldQty+addQty).
func WeightedPrice(oldQty int, oldPrice decimal.Decimal, addQty int, addPrice decimal.Decimal) decimal.Decimal {
	total := oldQty + addQty
	if total <= 0 {
		return addPrice
	}
	if oldQty <= 0 {
		return addPrice.Round(PricePrecision)
	}
	value := oldPrice.Mul(decimal.NewFromInt(int64(oldQty))).
		Add(addPrice.Mul(decimal.NewFromInt(int64(addQty))))
	return value.DivRound(decimal.NewFromInt(int64(total)), PricePrecision)
}
