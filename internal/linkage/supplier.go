package linkage

import (
	"github.com/fekuna/omnipos-commerce-service/internal/errs"
	"github.com/fekuna/omnipos-commerce-service/internal/ledger"
	"github.com/fekuna/omnipos-commerce-service/internal/model"
)

// Merged records supplier orders whose delivery has been booked into stock.
// The merge is one-way: deleting the order later does not take stock back.
type Merged map[string]struct{}

func (m Merged) Clone() Merged {
	out := make(Merged, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func (m Merged) Has(id string) bool {
	_, ok := m[id]
	return ok
}

// ShouldMerge is true the first time an authoritative supplier order is seen
// as Delivered. Re-submitting the same Delivered order never merges again.
func (m Merged) ShouldMerge(order *model.SupplierOrder) bool {
	return order.Delivered() && !m.Has(order.ID)
}

// CheckSupplierOrderEdit freezes lines and delivery status of an order whose
// delivery was already merged into stock.
func CheckSupplierOrderEdit(prev, next *model.SupplierOrder, merged Merged) error {
	if !merged.Has(prev.ID) {
		return nil
	}
	verr := errs.NewValidation()
	if !ledger.LinesEqual(prev.OrderedItems, next.OrderedItems) {
		verr.Add("ordered_items", "cannot change once the delivery is in stock")
	}
	if next.DeliveryStatus != prev.DeliveryStatus {
		verr.Add("delivery_status", "cannot change once the delivery is in stock")
	}
	if next.Supplier != prev.Supplier {
		verr.Add("supplier", "cannot change once the delivery is in stock")
	}
	return verr.OrNil()
}
