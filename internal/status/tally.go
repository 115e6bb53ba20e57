package status

import (
	"errors"
	"fmt"
)

var ErrNegativeTally = errors.New("status tally would become negative")

type Tally struct {
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

func (t *Tally) bucket(c Category) *int {
	switch c {
	case Completed:
		return &t.Completed
	case Failed:
		return &t.Failed
	}
	return &t.Active
}

func (t Tally) Get(c Category) int { return *t.bucket(c) }

func (t Tally) Sum() int { return t.Active + t.Completed + t.Failed }

func (t *Tally) Add(c Category) { *t.bucket(c)++ }

func (t *Tally) Remove(c Category) error {
	b := t.bucket(c)
	if *b == 0 {
		return fmt.Errorf("%w: %s", ErrNegativeTally, c)
	}
	*b--
	return nil
}

// Apply decrements then increments. On error the tally is left untouched.
func (t *Tally) Apply(tr Transition) error {
	if err := t.Remove(tr.Decrement); err != nil {
		return err
	}
	t.Add(tr.Increment)
	return nil
}

// Counter tracks one record domain: its size plus independent delivery and
// payment tallies that must each sum to Total.
type Counter struct {
	Total    int   `json:"total"`
	Delivery Tally `json:"delivery"`
	Payment  Tally `json:"payment"`
}

func (c *Counter) Insert(delivery, payment Category) {
	c.Total++
	c.Delivery.Add(delivery)
	c.Payment.Add(payment)
}

func (c *Counter) Drop(delivery, payment Category) error {
	if c.Total == 0 {
		return fmt.Errorf("%w: total", ErrNegativeTally)
	}
	next := *c
	if err := next.Delivery.Remove(delivery); err != nil {
		return fmt.Errorf("delivery: %w", err)
	}
	if err := next.Payment.Remove(payment); err != nil {
		return fmt.Errorf("payment: %w", err)
	}
	next.Total--
	*c = next
	return nil
}

func (c *Counter) Change(delivery, payment Transition) error {
	next := *c
	if err := next.Delivery.Apply(delivery); err != nil {
		return fmt.Errorf("delivery: %w", err)
	}
	if err := next.Payment.Apply(payment); err != nil {
		return fmt.Errorf("payment: %w", err)
	}
	*c = next
	return nil
}

func (c Counter) Check() error {
	if c.Delivery.Sum() != c.Total {
		return fmt.Errorf("delivery tally %d != total %d", c.Delivery.Sum(), c.Total)
	}
	if c.Payment.Sum() != c.Total {
		return fmt.Errorf("payment tally %d != total %d", c.Payment.Sum(), c.Total)
	}
	return nil
}
