package status

import (
	"fmt"
	"strings"
)

// Category is the bucket a status is counted in.
type Category int

const (
	Active Category = iota
	Completed
	Failed
)

func (c Category) String() string {
	switch c {
	case Active:
		return "active"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("category(%d)", int(c))
}

var (
	DefaultCompleted = []string{"Paid", "Delivered"}
	DefaultFailed    = []string{"Failed", "Canceled", "Returned", "Refunded"}
)

// Classifier maps free-text delivery or payment statuses to a Category.
// Lookups are exact after trimming; unknown and custom statuses are Active.
type Classifier struct {
	table map[string]Category
}

// NewClassifier builds a classifier from the completed and failed status lists.
func NewClassifier(completed, failed []string) *Classifier {
	table := make(map[string]Category, len(completed)+len(failed))
	for _, s := range completed {
		table[strings.TrimSpace(s)] = Completed
	}
	// failed wins when a status is listed twice
	for _, s := range failed {
		table[strings.TrimSpace(s)] = Failed
	}
	return &Classifier{table: table}
}

func NewDefaultClassifier() *Classifier {
	return NewClassifier(DefaultCompleted, DefaultFailed)
}

// Classify returns the category of status.
func (c *Classifier) Classify(status string) Category {
	if cat, ok := c.table[strings.TrimSpace(status)]; ok {
		return cat
	}
	return Active
}

// Transition is the counter adjustment for a status change. It is always
// well-formed, so callers apply it without checking for a no-op.
type Transition struct {
	Decrement Category
	Increment Category
}

// Delta is the transition for a status change from oldStatus to newStatus.
func (c *Classifier) Delta(oldStatus, newStatus string) Transition {
	return Transition{
		Decrement: c.Classify(oldStatus),
		Increment: c.Classify(newStatus),
	}
}

func (t Transition) Noop() bool { return t.Decrement == t.Increment }
