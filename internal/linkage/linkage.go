package linkage

import (
	"github.com/fekuna/omnipos-commerce-service/internal/errs"
	"github.com/fekuna/omnipos-commerce-service/internal/ledger"
	"github.com/fekuna/omnipos-commerce-service/internal/model"
)

const frozenMsg = "cannot change once the order is delivered"

// State is the link state of one client order.
type State struct {
	Linked bool
	SaleID string
}

// Links maps a client order reference to the id of the sale created when it
// was delivered.
type Links map[string]string

func (l Links) Clone() Links {
	out := make(Links, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

func (l Links) StateOf(orderRef string) State {
	saleID, ok := l[orderRef]
	return State{Linked: ok, SaleID: saleID}
}

// DeliveredTransition is true only when an edit moves the delivery status
// into Delivered. Records created as Delivered never link.
func DeliveredTransition(oldStatus, newStatus string) bool {
	return oldStatus != model.StatusDelivered && newStatus == model.StatusDelivered
}

// SaleFromOrder builds the sale spawned by delivering order.
func SaleFromOrder(order *model.ClientOrder) *model.Sale {
	ref := order.ReferenceID
	return &model.Sale{
		BaseModel:       model.BaseModel{OwnerID: order.OwnerID},
		Client:          order.Client,
		SoldItems:       model.CloneLines(order.OrderedItems),
		DeliveryStatus:  order.DeliveryStatus,
		PaymentStatus:   order.PaymentStatus,
		ShippingAddress: order.ShippingAddress,
		ShippingCost:    order.ShippingCost,
		Source:          order.Source,
		TrackingNumber:  order.TrackingNumber,
		LinkedOrder:     &ref,
	}
}

// OrderFrozen reports whether prev's client, lines and delivery status are
// locked. A delivered order is frozen whether or not its sale exists yet.
func OrderFrozen(prev *model.ClientOrder) bool {
	return prev.Delivered()
}

// SaleFrozen reports whether a sale is locked by its order link.
func SaleFrozen(prev *model.Sale) bool {
	return prev.Linked()
}

// CheckOrderEdit refuses edits to the locked fields of a frozen order. Only
// payment status, source, shipping address, shipping cost and tracking
// number stay editable.
func CheckOrderEdit(prev, next *model.ClientOrder) error {
	if !OrderFrozen(prev) {
		return nil
	}
	verr := errs.NewValidation()
	if next.Client != prev.Client {
		verr.Add("client", frozenMsg)
	}
	if !ledger.LinesEqual(prev.OrderedItems, next.OrderedItems) {
		verr.Add("ordered_items", frozenMsg)
	}
	if next.DeliveryStatus != prev.DeliveryStatus {
		verr.Add("delivery_status", frozenMsg)
	}
	return verr.OrNil()
}

func CheckSaleEdit(prev, next *model.Sale) error {
	if !SaleFrozen(prev) {
		return nil
	}
	verr := errs.NewValidation()
	if next.Client != prev.Client {
		verr.Add("client", frozenMsg)
	}
	if !ledger.LinesEqual(prev.SoldItems, next.SoldItems) {
		verr.Add("sold_items", frozenMsg)
	}
	if next.DeliveryStatus != prev.DeliveryStatus {
		verr.Add("delivery_status", frozenMsg)
	}
	if !sameLink(prev.LinkedOrder, next.LinkedOrder) {
		verr.Add("linked_order", frozenMsg)
	}
	return verr.OrNil()
}

func sameLink(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
