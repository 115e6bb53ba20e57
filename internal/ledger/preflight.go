package ledger

import (
	"fmt"

	"github.com/fekuna/omnipos-commerce-service/internal/errs"
	"github.com/fekuna/omnipos-commerce-service/internal/model"
)

// CheckCreate validates a new record's lines against current stock. field is
// the line list name used in error keys ("ordered_items" or "sold_items").
func CheckCreate(field string, lines []model.Line, inv Inventory) error {
	return check(field, nil, lines, inv)
}

// CheckEdit validates edited lines. Each item's own prior reservation is
// handed back before availability is compared, so an edit from 5 to 3 is
// checked against stock+5, not raw stock.
func CheckEdit(field string, oldLines, newLines []model.Line, inv Inventory) error {
	return check(field, oldLines, newLines, inv)
}

func check(field string, oldLines, newLines []model.Line, inv Inventory) error {
	verr := errs.NewValidation()
	if len(newLines) == 0 {
		verr.Add(field, "at least one item is required")
		return verr
	}

	held := totals(oldLines)
	requested := totals(newLines)
	for i, l := range newLines {
		if l.Quantity <= 0 {
			verr.Add(fmt.Sprintf("%s.%d.quantity", field, i), "quantity must be greater than zero")
			continue
		}
		item, ok := inv[l.Item]
		if !ok {
			verr.Add(fmt.Sprintf("%s.%d.item", field, i), fmt.Sprintf("item %q is not in inventory", l.Item))
			continue
		}
		available := item.Quantity + held[l.Item]
		if requested[l.Item] > available {
			verr.Add(fmt.Sprintf("%s.%d.quantity", field, i), fmt.Sprintf("only %d of %q available", available, l.Item))
		}
	}
	return verr.OrNil()
}

// CheckRemovable refuses deleting an item still referenced by an open
// (undelivered) line.
func CheckRemovable(name string, open []model.Line) error {
	for _, l := range open {
		if l.Item == name {
			verr := errs.NewValidation()
			verr.Add("name", fmt.Sprintf("item %q is referenced by an open order", name))
			return verr
		}
	}
	return nil
}
