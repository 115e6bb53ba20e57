package model

import "github.com/shopspring/decimal"

const (
	StatusPending   = "Pending"
	StatusDelivered = "Delivered"
)

// Line is one ordered or sold item. Item is a name reference into the
// owner's inventory, not an id.
type Line struct {
	Item        string           `json:"item"`
	Quantity    int              `json:"quantity"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	TotalProfit *decimal.Decimal `json:"total_profit,omitempty"` // computed by the record store
}

func (l Line) TotalPrice() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func CloneLines(lines []Line) []Line {
	if lines == nil {
		return nil
	}
	return append([]Line(nil), lines...)
}

func SumLines(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.TotalPrice())
	}
	return total
}

type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`
	Country string `json:"country"`
}

type ClientOrder struct {
	BaseModel
	ReferenceID     string          `json:"reference_id"`
	Client          string          `json:"client"`
	OrderedItems    []Line          `json:"ordered_items"`
	DeliveryStatus  string          `json:"delivery_status"`
	PaymentStatus   string          `json:"payment_status"`
	ShippingAddress Address         `json:"shipping_address"`
	ShippingCost    decimal.Decimal `json:"shipping_cost"`
	Source          string          `json:"source"`
	TrackingNumber  string          `json:"tracking_number,omitempty"`
}

func (o *ClientOrder) EntityKind() Kind { return KindClientOrder }

func (o *ClientOrder) Delivered() bool { return o.DeliveryStatus == StatusDelivered }

type Sale struct {
	BaseModel
	ReferenceID     string          `json:"reference_id"`
	Client          string          `json:"client"`
	SoldItems       []Line          `json:"sold_items"`
	DeliveryStatus  string          `json:"delivery_status"`
	PaymentStatus   string          `json:"payment_status"`
	ShippingAddress Address         `json:"shipping_address"`
	ShippingCost    decimal.Decimal `json:"shipping_cost"`
	Source          string          `json:"source"`
	TrackingNumber  string          `json:"tracking_number,omitempty"`
	LinkedOrder     *string         `json:"linked_order"`
}

func (s *Sale) EntityKind() Kind { return KindSale }

func (s *Sale) Linked() bool { return s.LinkedOrder != nil && *s.LinkedOrder != "" }

type SupplierOrder struct {
	BaseModel
	ReferenceID    string `json:"reference_id"`
	Supplier       string `json:"supplier"`
	OrderedItems   []Line `json:"ordered_items"`
	DeliveryStatus string `json:"delivery_status"`
	PaymentStatus  string `json:"payment_status"`
}

func (o *SupplierOrder) EntityKind() Kind { return KindSupplierOrder }

func (o *SupplierOrder) Delivered() bool { return o.DeliveryStatus == StatusDelivered }

func (o *SupplierOrder) TotalPrice() decimal.Decimal { return SumLines(o.OrderedItems) }
