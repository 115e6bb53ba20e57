package mutation

import (
	"fmt"

	"github.com/fekuna/omnipos-commerce-service/internal/aggregate"
	"github.com/fekuna/omnipos-commerce-service/internal/errs"
	"github.com/fekuna/omnipos-commerce-service/internal/ledger"
	"github.com/fekuna/omnipos-commerce-service/internal/linkage"
	"github.com/fekuna/omnipos-commerce-service/internal/model"
	"github.com/fekuna/omnipos-commerce-service/internal/mutation/dto"
)

// Preflight checks a request against the current snapshot before anything is
// sent to the record store. Every problem comes back in one ValidationError.
func Preflight(snap *aggregate.Snapshot, req *dto.Request) error {
	if err := req.Validate(); err != nil {
		verr := errs.NewValidation()
		verr.Add("request", err.Error())
		return verr
	}

	verr := errs.NewValidation()
	switch req.Kind {
	case model.KindClientOrder:
		checkClientOrder(verr, snap, req)
	case model.KindSale:
		checkSale(verr, snap, req)
	case model.KindSupplierOrder:
		checkSupplierOrder(verr, snap, req)
	case model.KindInventoryItem:
		checkInventoryItem(verr, snap, req)
	case model.KindClient:
		checkParty(verr, snap.Caches.ClientNames, req, func(e model.Entity) string { return e.(*model.Client).Name })
	case model.KindSupplier:
		checkParty(verr, snap.Caches.SupplierNames, req, func(e model.Entity) string { return e.(*model.Supplier).Name })
	}
	return verr.OrNil()
}

// merge copies the fields of err into verr when err is a ValidationError.
func merge(verr *errs.ValidationError, err error) {
	if err == nil {
		return
	}
	if v, ok := err.(*errs.ValidationError); ok {
		for field, msgs := range v.Fields {
			for _, msg := range msgs {
				verr.Add(field, msg)
			}
		}
		return
	}
	verr.Add("request", err.Error())
}

func checkClientOrder(verr *errs.ValidationError, snap *aggregate.Snapshot, req *dto.Request) {
	switch req.Op {
	case dto.OpCreate:
		o := req.Candidate.(*model.ClientOrder)
		requireKnown(verr, "client", o.Client, "", snap.Caches.ClientNames)
		merge(verr, ledger.CheckCreate("ordered_items", o.OrderedItems, snap.Inventory))
	case dto.OpUpdate:
		prev := req.Previous[0].(*model.ClientOrder)
		o := req.Candidate.(*model.ClientOrder)
		requireKnown(verr, "client", o.Client, prev.Client, snap.Caches.ClientNames)
		if linkage.OrderFrozen(prev) {
			merge(verr, linkage.CheckOrderEdit(prev, o))
			return
		}
		merge(verr, ledger.CheckEdit("ordered_items", prev.OrderedItems, o.OrderedItems, snap.Inventory))
	}
}

func checkSale(verr *errs.ValidationError, snap *aggregate.Snapshot, req *dto.Request) {
	switch req.Op {
	case dto.OpCreate:
		s := req.Candidate.(*model.Sale)
		requireKnown(verr, "client", s.Client, "", snap.Caches.ClientNames)
		if s.Linked() {
			verr.Add("linked_order", "set only by delivering a client order")
		}
		merge(verr, ledger.CheckCreate("sold_items", s.SoldItems, snap.Inventory))
	case dto.OpUpdate:
		prev := req.Previous[0].(*model.Sale)
		s := req.Candidate.(*model.Sale)
		requireKnown(verr, "client", s.Client, prev.Client, snap.Caches.ClientNames)
		if linkage.SaleFrozen(prev) {
			merge(verr, linkage.CheckSaleEdit(prev, s))
			return
		}
		if s.Linked() {
			verr.Add("linked_order", "set only by delivering a client order")
		}
		merge(verr, ledger.CheckEdit("sold_items", prev.SoldItems, s.SoldItems, snap.Inventory))
	}
}

func checkSupplierOrder(verr *errs.ValidationError, snap *aggregate.Snapshot, req *dto.Request) {
	if req.Op == dto.OpDelete {
		return
	}
	o := req.Candidate.(*model.SupplierOrder)
	prevSupplier := ""
	if req.Op == dto.OpUpdate {
		prevSupplier = req.Previous[0].(*model.SupplierOrder).Supplier
	}
	requireKnown(verr, "supplier", o.Supplier, prevSupplier, snap.Caches.SupplierNames)
	if len(o.OrderedItems) == 0 {
		verr.Add("ordered_items", "at least one item is required")
	}
	for i, l := range o.OrderedItems {
		if l.Item == "" {
			verr.Add(fmt.Sprintf("ordered_items.%d.item", i), "item is required")
		}
		if l.Quantity <= 0 {
			verr.Add(fmt.Sprintf("ordered_items.%d.quantity", i), "quantity must be greater than zero")
		}
		if l.UnitPrice.IsNegative() {
			verr.Add(fmt.Sprintf("ordered_items.%d.unit_price", i), "price cannot be negative")
		}
	}
	if req.Op == dto.OpUpdate {
		merge(verr, linkage.CheckSupplierOrderEdit(req.Previous[0].(*model.SupplierOrder), o, snap.Merged))
	}
}

func checkInventoryItem(verr *errs.ValidationError, snap *aggregate.Snapshot, req *dto.Request) {
	switch req.Op {
	case dto.OpCreate, dto.OpUpdate:
		item := req.Candidate.(*model.InventoryItem)
		requireName(verr, "name", item.Name)
		prevName := ""
		if req.Op == dto.OpUpdate {
			prevName = req.Previous[0].(*model.InventoryItem).Name
		}
		if _, taken := snap.Inventory[item.Name]; taken && item.Name != prevName {
			verr.Add("name", fmt.Sprintf("item %q already exists", item.Name))
		}
		if item.Quantity < 0 {
			verr.Add("quantity", "quantity cannot be negative")
		}
		if item.Price.IsNegative() {
			verr.Add("price", "price cannot be negative")
		}
		// lines refer to items by name, so a rename orphans them like a delete
		if prevName != "" && item.Name != prevName {
			merge(verr, ledger.CheckRemovable(prevName, req.Open))
		}
	case dto.OpDelete:
		for _, e := range req.Previous {
			merge(verr, ledger.CheckRemovable(e.(*model.InventoryItem).Name, req.Open))
		}
	}
}

func checkParty(verr *errs.ValidationError, names aggregate.NameSet, req *dto.Request, nameOf func(model.Entity) string) {
	if req.Op == dto.OpDelete {
		return
	}
	name := nameOf(req.Candidate)
	requireName(verr, "name", name)
	prevName := ""
	if req.Op == dto.OpUpdate {
		prevName = nameOf(req.Previous[0])
	}
	if names.Has(name) && name != prevName {
		verr.Add("name", fmt.Sprintf("%q is already taken", name))
	}
}

// requireKnown refuses a reference to a client or supplier the snapshot does
// not know. A reference left unchanged by an edit is accepted as is.
func requireKnown(verr *errs.ValidationError, field, value, prev string, known aggregate.NameSet) {
	switch {
	case value == "":
		verr.Add(field, "is required")
	case value != prev && !known.Has(value):
		verr.Add(field, fmt.Sprintf("%q does not exist", value))
	}
}

func requireName(verr *errs.ValidationError, field, value string) {
	if value == "" {
		verr.Add(field, "is required")
	}
}
