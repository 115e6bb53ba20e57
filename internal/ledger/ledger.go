package ledger

import (
	"sort"

	"github.com/fekuna/omnipos-commerce-service/internal/model"
)

// Deltas maps an item name to the signed stock change to apply to it.
type Deltas map[string]int

// Add folds other into d, drops entries that cancel out and returns d.
func (d Deltas) Add(other Deltas) Deltas {
	for name, q := range other {
		d[name] += q
	}
	d.compact()
	return d
}

// IsZero reports whether applying d would change no stock.
func (d Deltas) IsZero() bool {
	for _, q := range d {
		if q != 0 {
			return false
		}
	}
	return true
}

// Names returns the item names in a stable order.
func (d Deltas) Names() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d Deltas) compact() {
	for name, q := range d {
		if q == 0 {
			delete(d, name)
		}
	}
}

func totals(lines []model.Line) map[string]int {
	out := make(map[string]int, len(lines))
	for _, l := range lines {
		out[l.Item] += l.Quantity
	}
	return out
}

// OnCreate reserves every line of a new record.
func OnCreate(lines []model.Line) Deltas {
	d := Deltas{}
	for name, q := range totals(lines) {
		d[name] -= q
	}
	d.compact()
	return d
}

// OnDelete gives back the reservations of every deleted record. Records
// touching the same item are summed into one delta.
func OnDelete(records ...[]model.Line) Deltas {
	d := Deltas{}
	for _, lines := range records {
		for name, q := range totals(lines) {
			d[name] += q
		}
	}
	d.compact()
	return d
}

// OnEdit applies only the change in reservation: an item kept in both lists
// moves by old-new, a removed item returns old, an added item takes new.
func OnEdit(oldLines, newLines []model.Line) Deltas {
	d := Deltas{}
	for name, q := range totals(oldLines) {
		d[name] += q
	}
	for name, q := range totals(newLines) {
		d[name] -= q
	}
	d.compact()
	return d
}

// LinesEqual reports whether two line lists hold the same lines (item,
// quantity and unit price), ignoring order.
func LinesEqual(a, b []model.Line) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, l := range a {
		found := false
		for i, r := range b {
			if used[i] || r.Item != l.Item || r.Quantity != l.Quantity || !r.UnitPrice.Equal(l.UnitPrice) {
				continue
			}
			used[i] = true
			found = true
			break
		}
		if !found {
			return false
		}
	}
	return true
}
