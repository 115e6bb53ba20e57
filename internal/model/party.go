package model

type Client struct {
	BaseModel
	Name        string  `json:"name"`
	Location    Address `json:"location"`
	TotalOrders int     `json:"total_orders"`
}

func (c *Client) EntityKind() Kind { return KindClient }

type Supplier struct {
	BaseModel
	Name        string  `json:"name"`
	Location    Address `json:"location"`
	TotalOrders int     `json:"total_orders"`
}

func (s *Supplier) EntityKind() Kind { return KindSupplier }
