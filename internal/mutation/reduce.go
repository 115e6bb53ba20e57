package mutation

import (
	"strings"

	"github.com/fekuna/omnipos-commerce-service/internal/aggregate"
	"github.com/fekuna/omnipos-commerce-service/internal/errs"
	"github.com/fekuna/omnipos-commerce-service/internal/ledger"
	"github.com/fekuna/omnipos-commerce-service/internal/linkage"
	"github.com/fekuna/omnipos-commerce-service/internal/model"
	"github.com/fekuna/omnipos-commerce-service/internal/mutation/dto"
	"github.com/fekuna/omnipos-commerce-service/internal/status"
)

// Effects are the side outputs of one reduction.
type Effects struct {
	Movements []model.InventoryMovement
	// FollowUp is set when a client order was just delivered and has no sale yet.
	FollowUp *model.Sale
}

type Reducer struct {
	cls *status.Classifier
}

func NewReducer(cls *status.Classifier) *Reducer {
	return &Reducer{cls: cls}
}

// Reduce folds an authoritative result into prev and returns the next
// snapshot. prev is never modified; on error prev is returned unchanged.
func (r *Reducer) Reduce(prev *aggregate.Snapshot, req *dto.Request, res *dto.Result) (*aggregate.Snapshot, Effects, error) {
	next := prev.Clone()
	var eff Effects

	var err error
	switch req.Kind {
	case model.KindClientOrder:
		err = r.clientOrder(next, req, res, &eff)
	case model.KindSale:
		err = r.sale(next, req, res, &eff)
	case model.KindSupplierOrder:
		err = r.supplierOrder(next, req, res, &eff)
	case model.KindInventoryItem:
		err = r.inventoryItem(next, req, res, &eff)
	case model.KindClient:
		err = r.client(next, req, res)
	case model.KindSupplier:
		err = r.supplier(next, req, res)
	default:
		err = errs.Integrity("unknown kind %q", req.Kind)
	}
	if err != nil {
		return prev, Effects{}, err
	}
	if err := next.Counters.Check(); err != nil {
		return prev, Effects{}, &errs.IntegrityError{Reason: "counter identity broken", Err: err}
	}

	for i := range eff.Movements {
		eff.Movements[i].OwnerID = prev.OwnerID
		eff.Movements[i].MutationID = req.ID
	}
	return next, eff, nil
}

func (r *Reducer) clientOrder(s *aggregate.Snapshot, req *dto.Request, res *dto.Result, eff *Effects) error {
	switch req.Op {
	case dto.OpCreate:
		o, err := one[*model.ClientOrder](res)
		if err != nil {
			return err
		}
		if err := applyStock(s, ledger.OnCreate(o.OrderedItems), model.KindClientOrder, o.ID, eff); err != nil {
			return err
		}
		s.Counters.ClientOrders.Insert(r.cls.Classify(o.DeliveryStatus), r.cls.Classify(o.PaymentStatus))
		s.Caches.Sources.Add(o.Source)

	case dto.OpUpdate:
		prev, err := previous[*model.ClientOrder](req)
		if err != nil {
			return err
		}
		o, err := one[*model.ClientOrder](res)
		if err != nil {
			return err
		}

		if linkage.OrderFrozen(prev) {
			if o.Client != prev.Client || o.DeliveryStatus != prev.DeliveryStatus || !ledger.LinesEqual(prev.OrderedItems, o.OrderedItems) {
				return errs.Integrity("delivered client order %s changed locked fields", o.ID)
			}
		} else if err := applyStock(s, ledger.OnEdit(prev.OrderedItems, o.OrderedItems), model.KindClientOrder, o.ID, eff); err != nil {
			return err
		}

		err = s.Counters.ClientOrders.Change(
			r.cls.Delta(prev.DeliveryStatus, o.DeliveryStatus),
			r.cls.Delta(prev.PaymentStatus, o.PaymentStatus),
		)
		if err != nil {
			return &errs.IntegrityError{Reason: "client order tally", Err: err}
		}
		s.Caches.Sources.Add(o.Source)

		if linkage.DeliveredTransition(prev.DeliveryStatus, o.DeliveryStatus) && !s.Links.StateOf(o.ReferenceID).Linked {
			if o.ReferenceID == "" {
				return errs.Integrity("delivered client order %s has no reference id to link", o.ID)
			}
			eff.FollowUp = linkage.SaleFromOrder(o)
		}

	case dto.OpDelete:
		orders, err := all[*model.ClientOrder](res.Entities)
		if err != nil {
			return err
		}
		var reverse [][]model.Line
		for _, o := range orders {
			// the linked sale now owns the reservation
			if s.Links.StateOf(o.ReferenceID).Linked {
				delete(s.Links, o.ReferenceID)
			} else {
				reverse = append(reverse, o.OrderedItems)
			}
			if err := s.Counters.ClientOrders.Drop(r.cls.Classify(o.DeliveryStatus), r.cls.Classify(o.PaymentStatus)); err != nil {
				return &errs.IntegrityError{Reason: "client order tally", Err: err}
			}
		}
		return applyStock(s, ledger.OnDelete(reverse...), model.KindClientOrder, ids(orders), eff)
	}
	return nil
}

func (r *Reducer) sale(s *aggregate.Snapshot, req *dto.Request, res *dto.Result, eff *Effects) error {
	switch req.Op {
	case dto.OpCreate:
		sale, err := one[*model.Sale](res)
		if err != nil {
			return err
		}
		if sale.Linked() {
			ref := *sale.LinkedOrder
			if existing, ok := s.Links[ref]; ok && existing != sale.ID {
				return errs.Integrity("client order %s is already linked to sale %s", ref, existing)
			}
			s.Links[ref] = sale.ID
		} else if err := applyStock(s, ledger.OnCreate(sale.SoldItems), model.KindSale, sale.ID, eff); err != nil {
			return err
		}
		s.Counters.Sales.Insert(r.cls.Classify(sale.DeliveryStatus), r.cls.Classify(sale.PaymentStatus))
		s.Caches.Sources.Add(sale.Source)

	case dto.OpUpdate:
		prev, err := previous[*model.Sale](req)
		if err != nil {
			return err
		}
		sale, err := one[*model.Sale](res)
		if err != nil {
			return err
		}

		switch {
		case linkage.SaleFrozen(prev):
			if sale.Client != prev.Client || sale.DeliveryStatus != prev.DeliveryStatus ||
				!sale.Linked() || *sale.LinkedOrder != *prev.LinkedOrder ||
				!ledger.LinesEqual(prev.SoldItems, sale.SoldItems) {
				return errs.Integrity("linked sale %s changed locked fields", sale.ID)
			}
		case sale.Linked():
			return errs.Integrity("sale %s gained a linked order on edit", sale.ID)
		default:
			if err := applyStock(s, ledger.OnEdit(prev.SoldItems, sale.SoldItems), model.KindSale, sale.ID, eff); err != nil {
				return err
			}
		}

		err = s.Counters.Sales.Change(
			r.cls.Delta(prev.DeliveryStatus, sale.DeliveryStatus),
			r.cls.Delta(prev.PaymentStatus, sale.PaymentStatus),
		)
		if err != nil {
			return &errs.IntegrityError{Reason: "sale tally", Err: err}
		}
		s.Caches.Sources.Add(sale.Source)

	case dto.OpDelete:
		sales, err := all[*model.Sale](res.Entities)
		if err != nil {
			return err
		}
		var reverse [][]model.Line
		for _, sale := range sales {
			// while the pair is intact the order owns the reservation
			if sale.Linked() && s.Links[*sale.LinkedOrder] == sale.ID {
				delete(s.Links, *sale.LinkedOrder)
			} else {
				reverse = append(reverse, sale.SoldItems)
			}
			if err := s.Counters.Sales.Drop(r.cls.Classify(sale.DeliveryStatus), r.cls.Classify(sale.PaymentStatus)); err != nil {
				return &errs.IntegrityError{Reason: "sale tally", Err: err}
			}
		}
		return applyStock(s, ledger.OnDelete(reverse...), model.KindSale, ids(sales), eff)
	}
	return nil
}

func (r *Reducer) supplierOrder(s *aggregate.Snapshot, req *dto.Request, res *dto.Result, eff *Effects) error {
	switch req.Op {
	case dto.OpCreate:
		o, err := one[*model.SupplierOrder](res)
		if err != nil {
			return err
		}
		s.Counters.SupplierOrders.Insert(r.cls.Classify(o.DeliveryStatus), r.cls.Classify(o.PaymentStatus))
		mergeSupplierOrder(s, o, eff)

	case dto.OpUpdate:
		prev, err := previous[*model.SupplierOrder](req)
		if err != nil {
			return err
		}
		o, err := one[*model.SupplierOrder](res)
		if err != nil {
			return err
		}
		if s.Merged.Has(prev.ID) &&
			(o.Supplier != prev.Supplier || o.DeliveryStatus != prev.DeliveryStatus || !ledger.LinesEqual(prev.OrderedItems, o.OrderedItems)) {
			return errs.Integrity("supplier order %s changed after its delivery was stocked", o.ID)
		}
		err = s.Counters.SupplierOrders.Change(
			r.cls.Delta(prev.DeliveryStatus, o.DeliveryStatus),
			r.cls.Delta(prev.PaymentStatus, o.PaymentStatus),
		)
		if err != nil {
			return &errs.IntegrityError{Reason: "supplier order tally", Err: err}
		}
		mergeSupplierOrder(s, o, eff)

	case dto.OpDelete:
		orders, err := all[*model.SupplierOrder](res.Entities)
		if err != nil {
			return err
		}
		for _, o := range orders {
			// stock received from a delivered order stays
			delete(s.Merged, o.ID)
			if err := s.Counters.SupplierOrders.Drop(r.cls.Classify(o.DeliveryStatus), r.cls.Classify(o.PaymentStatus)); err != nil {
				return &errs.IntegrityError{Reason: "supplier order tally", Err: err}
			}
		}
	}
	return nil
}

func mergeSupplierOrder(s *aggregate.Snapshot, o *model.SupplierOrder, eff *Effects) {
	for _, l := range o.OrderedItems {
		s.Caches.CatalogAdd(o.Supplier, l.Item)
	}
	if !s.Merged.ShouldMerge(o) {
		return
	}
	inv, movements := ledger.MergeDelivery(s.Inventory, o.Supplier, o.OrderedItems)
	s.Inventory = inv
	s.Merged[o.ID] = struct{}{}
	eff.Movements = append(eff.Movements, reference(movements, model.KindSupplierOrder, o.ID)...)
}

func (r *Reducer) inventoryItem(s *aggregate.Snapshot, req *dto.Request, res *dto.Result, eff *Effects) error {
	switch req.Op {
	case dto.OpCreate, dto.OpUpdate:
		item, err := one[*model.InventoryItem](res)
		if err != nil {
			return err
		}
		before := s.Inventory[item.Name]
		if req.Op == dto.OpUpdate {
			prev, err := previous[*model.InventoryItem](req)
			if err != nil {
				return err
			}
			before = s.Inventory[prev.Name]
			delete(s.Inventory, prev.Name)
		}
		if item.Quantity < 0 {
			return errs.Integrity("inventory item %q stored with negative quantity %d", item.Name, item.Quantity)
		}
		s.Inventory[item.Name] = item.Clone()
		if item.Supplier != nil {
			s.Caches.CatalogAdd(*item.Supplier, item.Name)
		}
		if before.Quantity != item.Quantity || !before.Price.Equal(item.Price) {
			eff.Movements = append(eff.Movements, model.InventoryMovement{
				Item:           item.Name,
				MovementType:   model.MovementAdjustment,
				QuantityChange: item.Quantity - before.Quantity,
				QuantityBefore: before.Quantity,
				QuantityAfter:  item.Quantity,
				PriceBefore:    before.Price,
				PriceAfter:     item.Price,
				ReferenceKind:  model.KindInventoryItem,
				ReferenceID:    item.ID,
			})
		}

	case dto.OpDelete:
		items, err := all[*model.InventoryItem](res.Entities)
		if err != nil {
			return err
		}
		for _, item := range items {
			delete(s.Inventory, item.Name)
		}
	}
	return nil
}

func (r *Reducer) client(s *aggregate.Snapshot, req *dto.Request, res *dto.Result) error {
	switch req.Op {
	case dto.OpCreate:
		c, err := one[*model.Client](res)
		if err != nil {
			return err
		}
		s.Caches.ClientNames.Add(c.Name)
		s.Counters.Clients++
	case dto.OpUpdate:
		prev, err := previous[*model.Client](req)
		if err != nil {
			return err
		}
		c, err := one[*model.Client](res)
		if err != nil {
			return err
		}
		s.Caches.ClientNames.Remove(prev.Name)
		s.Caches.ClientNames.Add(c.Name)
	case dto.OpDelete:
		clients, err := all[*model.Client](res.Entities)
		if err != nil {
			return err
		}
		for _, c := range clients {
			s.Caches.ClientNames.Remove(c.Name)
			s.Counters.Clients--
		}
	}
	return nil
}

func (r *Reducer) supplier(s *aggregate.Snapshot, req *dto.Request, res *dto.Result) error {
	switch req.Op {
	case dto.OpCreate:
		sup, err := one[*model.Supplier](res)
		if err != nil {
			return err
		}
		s.Caches.SupplierNames.Add(sup.Name)
		s.Counters.Suppliers++
	case dto.OpUpdate:
		prev, err := previous[*model.Supplier](req)
		if err != nil {
			return err
		}
		sup, err := one[*model.Supplier](res)
		if err != nil {
			return err
		}
		s.Caches.SupplierNames.Remove(prev.Name)
		s.Caches.SupplierNames.Add(sup.Name)
		if catalog, ok := s.Caches.SupplierCatalog[prev.Name]; ok && prev.Name != sup.Name {
			delete(s.Caches.SupplierCatalog, prev.Name)
			for item := range catalog {
				s.Caches.CatalogAdd(sup.Name, item)
			}
		}
	case dto.OpDelete:
		suppliers, err := all[*model.Supplier](res.Entities)
		if err != nil {
			return err
		}
		for _, sup := range suppliers {
			s.Caches.SupplierNames.Remove(sup.Name)
			delete(s.Caches.SupplierCatalog, sup.Name)
			s.Counters.Suppliers--
		}
	}
	return nil
}

func applyStock(s *aggregate.Snapshot, d ledger.Deltas, kind model.Kind, refID string, eff *Effects) error {
	inv, movements, err := ledger.Apply(s.Inventory, d)
	if err != nil {
		return err
	}
	s.Inventory = inv
	eff.Movements = append(eff.Movements, reference(movements, kind, refID)...)
	return nil
}

func reference(movements []model.InventoryMovement, kind model.Kind, refID string) []model.InventoryMovement {
	for i := range movements {
		movements[i].ReferenceKind = kind
		movements[i].ReferenceID = refID
	}
	return movements
}

func ids[T model.Entity](records []T) string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.EntityID())
	}
	return strings.Join(out, ",")
}

func one[T model.Entity](res *dto.Result) (T, error) {
	var zero T
	if res == nil || len(res.Entities) != 1 {
		n := 0
		if res != nil {
			n = len(res.Entities)
		}
		return zero, errs.Integrity("expected one authoritative record, got %d", n)
	}
	v, ok := res.Entities[0].(T)
	if !ok {
		return zero, errs.Integrity("authoritative record has unexpected type %T", res.Entities[0])
	}
	return v, nil
}

func previous[T model.Entity](req *dto.Request) (T, error) {
	var zero T
	if len(req.Previous) != 1 {
		return zero, errs.Integrity("update carries %d previous records", len(req.Previous))
	}
	v, ok := req.Previous[0].(T)
	if !ok {
		return zero, errs.Integrity("previous record has unexpected type %T", req.Previous[0])
	}
	return v, nil
}

func all[T model.Entity](records []model.Entity) ([]T, error) {
	out := make([]T, 0, len(records))
	for _, e := range records {
		v, ok := e.(T)
		if !ok {
			return nil, errs.Integrity("deleted record has unexpected type %T", e)
		}
		out = append(out, v)
	}
	return out, nil
}
