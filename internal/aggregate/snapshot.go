package aggregate

import (
	"fmt"
	"sort"

	"github.com/fekuna/omnipos-commerce-service/internal/ledger"
	"github.com/fekuna/omnipos-commerce-service/internal/linkage"
	"github.com/fekuna/omnipos-commerce-service/internal/status"
)

type NameSet map[string]struct{}

func (n NameSet) Add(name string) {
	if name != "" {
		n[name] = struct{}{}
	}
}

func (n NameSet) Remove(name string) { delete(n, name) }

func (n NameSet) Has(name string) bool {
	_, ok := n[name]
	return ok
}

func (n NameSet) Sorted() []string {
	out := make([]string, 0, len(n))
	for name := range n {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (n NameSet) Clone() NameSet {
	out := make(NameSet, len(n))
	for name := range n {
		out[name] = struct{}{}
	}
	return out
}

// Caches are the name lookups the form layer reads from.
type Caches struct {
	ClientNames     NameSet            `json:"client_names"`
	SupplierNames   NameSet            `json:"supplier_names"`
	SupplierCatalog map[string]NameSet `json:"supplier_catalog"`
	Sources         NameSet            `json:"sources"`
}

func (c Caches) Clone() Caches {
	catalog := make(map[string]NameSet, len(c.SupplierCatalog))
	for supplier, items := range c.SupplierCatalog {
		catalog[supplier] = items.Clone()
	}
	return Caches{
		ClientNames:     c.ClientNames.Clone(),
		SupplierNames:   c.SupplierNames.Clone(),
		SupplierCatalog: catalog,
		Sources:         c.Sources.Clone(),
	}
}

// CatalogAdd records that supplier provides item.
func (c *Caches) CatalogAdd(supplier, item string) {
	if supplier == "" || item == "" {
		return
	}
	set, ok := c.SupplierCatalog[supplier]
	if !ok {
		set = NameSet{}
		c.SupplierCatalog[supplier] = set
	}
	set.Add(item)
}

type Counters struct {
	ClientOrders   status.Counter `json:"client_orders"`
	Sales          status.Counter `json:"sales"`
	SupplierOrders status.Counter `json:"supplier_orders"`
	Clients        int            `json:"clients"`
	Suppliers      int            `json:"suppliers"`
}

func (c Counters) Check() error {
	if err := c.ClientOrders.Check(); err != nil {
		return fmt.Errorf("client orders: %w", err)
	}
	if err := c.Sales.Check(); err != nil {
		return fmt.Errorf("sales: %w", err)
	}
	if err := c.SupplierOrders.Check(); err != nil {
		return fmt.Errorf("supplier orders: %w", err)
	}
	if c.Clients < 0 || c.Suppliers < 0 {
		return fmt.Errorf("negative party count (clients %d, suppliers %d)", c.Clients, c.Suppliers)
	}
	return nil
}

// Snapshot is the complete engine state of one owner. A published snapshot
// is never modified; reducers work on a Clone.
type Snapshot struct {
	OwnerID   string           `json:"owner_id"`
	Version   uint64           `json:"version"`
	Inventory ledger.Inventory `json:"inventory"`
	Counters  Counters         `json:"counters"`
	Caches    Caches           `json:"caches"`
	Links     linkage.Links    `json:"links"`
	Merged    linkage.Merged   `json:"merged"`
}

func NewSnapshot(ownerID string) *Snapshot {
	s := &Snapshot{OwnerID: ownerID}
	s.normalize()
	return s
}

func (s *Snapshot) Clone() *Snapshot {
	return &Snapshot{
		OwnerID:   s.OwnerID,
		Version:   s.Version,
		Inventory: s.Inventory.Clone(),
		Counters:  s.Counters,
		Caches:    s.Caches.Clone(),
		Links:     s.Links.Clone(),
		Merged:    s.Merged.Clone(),
	}
}

// Restore prepares a decoded snapshot for use.
func Restore(s *Snapshot) *Snapshot {
	s.normalize()
	return s
}

// normalize replaces nil maps, e.g. after decoding a checkpoint.
func (s *Snapshot) normalize() {
	if s.Inventory == nil {
		s.Inventory = ledger.Inventory{}
	}
	if s.Links == nil {
		s.Links = linkage.Links{}
	}
	if s.Merged == nil {
		s.Merged = linkage.Merged{}
	}
	if s.Caches.ClientNames == nil {
		s.Caches.ClientNames = NameSet{}
	}
	if s.Caches.SupplierNames == nil {
		s.Caches.SupplierNames = NameSet{}
	}
	if s.Caches.SupplierCatalog == nil {
		s.Caches.SupplierCatalog = map[string]NameSet{}
	}
	if s.Caches.Sources == nil {
		s.Caches.Sources = NameSet{}
	}
}
