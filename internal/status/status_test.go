package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_DefaultTable(t *testing.T) {
	c := NewDefaultClassifier()

	cases := map[string]Category{
		"Paid":          Completed,
		"Delivered":     Completed,
		" Delivered ":   Completed,
		"Failed":        Failed,
		"Canceled":      Failed,
		"Returned":      Failed,
		"Refunded":      Failed,
		"Pending":       Active,
		"Awaiting Pick": Active,
		"":              Active,
		"delivered":     Active,
	}
	for in, want := range cases {
		assert.Equal(t, want, c.Classify(in), "status %q", in)
	}
}

func TestClassify_ConfiguredTable(t *testing.T) {
	c := NewClassifier([]string{"Settled"}, []string{"Lost", "Settled"})

	assert.Equal(t, Failed, c.Classify("Settled"))
	assert.Equal(t, Failed, c.Classify("Lost"))
	assert.Equal(t, Active, c.Classify("Paid"))
}

func TestDelta_AlwaysWellFormed(t *testing.T) {
	c := NewDefaultClassifier()

	tr := c.Delta("Pending", "Delivered")
	assert.Equal(t, Transition{Decrement: Active, Increment: Completed}, tr)
	assert.False(t, tr.Noop())

	same := c.Delta("Pending", "Custom Hold")
	assert.Equal(t, Transition{Decrement: Active, Increment: Active}, same)
	assert.True(t, same.Noop())

	var tally Tally
	tally.Add(Active)
	require.NoError(t, tally.Apply(same))
	assert.Equal(t, Tally{Active: 1}, tally)
}

func TestTally_ApplyIsAtomic(t *testing.T) {
	tally := Tally{Completed: 1}

	err := tally.Apply(Transition{Decrement: Active, Increment: Completed})
	require.ErrorIs(t, err, ErrNegativeTally)
	assert.Equal(t, Tally{Completed: 1}, tally)
}

func TestCounter_IdentityHolds(t *testing.T) {
	c := NewDefaultClassifier()
	var counter Counter

	counter.Insert(c.Classify("Pending"), c.Classify("Pending"))
	counter.Insert(c.Classify("Delivered"), c.Classify("Paid"))
	counter.Insert(c.Classify("Canceled"), c.Classify("Refunded"))
	require.NoError(t, counter.Check())

	require.NoError(t, counter.Change(c.Delta("Pending", "Delivered"), c.Delta("Pending", "Paid")))
	require.NoError(t, counter.Drop(c.Classify("Canceled"), c.Classify("Refunded")))
	require.NoError(t, counter.Check())

	assert.Equal(t, 2, counter.Total)
	assert.Equal(t, Tally{Completed: 2}, counter.Delivery)
	assert.Equal(t, Tally{Completed: 2}, counter.Payment)
}

func TestCounter_DropLeavesCounterOnError(t *testing.T) {
	var counter Counter
	counter.Insert(Active, Active)

	err := counter.Drop(Active, Failed)
	require.ErrorIs(t, err, ErrNegativeTally)
	assert.Equal(t, 1, counter.Total)
	assert.Equal(t, Tally{Active: 1}, counter.Delivery)
	require.NoError(t, counter.Check())
}
