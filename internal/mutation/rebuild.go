package mutation

import (
	"github.com/fekuna/omnipos-commerce-service/internal/aggregate"
	"github.com/fekuna/omnipos-commerce-service/internal/errs"
	"github.com/fekuna/omnipos-commerce-service/internal/model"
)

// Rebuild derives a snapshot from the full contents of the record store. Stock
// quantities are taken as stored; reservations and deliveries are already in
// them, so lines are only used for counters, caches and the link table.
func (r *Reducer) Rebuild(ownerID string, records []model.Entity) (*aggregate.Snapshot, error) {
	s := aggregate.NewSnapshot(ownerID)

	for _, e := range records {
		switch v := e.(type) {
		case *model.InventoryItem:
			s.Inventory[v.Name] = v.Clone()
			if v.Supplier != nil {
				s.Caches.CatalogAdd(*v.Supplier, v.Name)
			}
		case *model.ClientOrder:
			s.Counters.ClientOrders.Insert(r.cls.Classify(v.DeliveryStatus), r.cls.Classify(v.PaymentStatus))
			s.Caches.Sources.Add(v.Source)
		case *model.Sale:
			s.Counters.Sales.Insert(r.cls.Classify(v.DeliveryStatus), r.cls.Classify(v.PaymentStatus))
			s.Caches.Sources.Add(v.Source)
			if v.Linked() {
				if existing, ok := s.Links[*v.LinkedOrder]; ok {
					return nil, errs.Integrity("client order %s linked to sales %s and %s", *v.LinkedOrder, existing, v.ID)
				}
				s.Links[*v.LinkedOrder] = v.ID
			}
		case *model.SupplierOrder:
			s.Counters.SupplierOrders.Insert(r.cls.Classify(v.DeliveryStatus), r.cls.Classify(v.PaymentStatus))
			for _, l := range v.OrderedItems {
				s.Caches.CatalogAdd(v.Supplier, l.Item)
			}
			if v.Delivered() {
				s.Merged[v.ID] = struct{}{}
			}
		case *model.Client:
			s.Caches.ClientNames.Add(v.Name)
			s.Counters.Clients++
		case *model.Supplier:
			s.Caches.SupplierNames.Add(v.Name)
			s.Counters.Suppliers++
		default:
			return nil, errs.Integrity("cannot rebuild from record of type %T", e)
		}
	}

	if err := s.Counters.Check(); err != nil {
		return nil, &errs.IntegrityError{Reason: "counter identity broken", Err: err}
	}
	return s, nil
}
