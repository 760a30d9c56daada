package broker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algotrader/internal/models"
)

func TestClassifyMapsVendorMessages(t *testing.T) {
	cases := []struct {
		raw      string
		sentinel error
	}{
		{"Error: Too many requests. Try after some time.", ErrRateLimited},
		{"Trigger price for stoploss buy orders should be below the last traded price.", ErrTriggerPriceRule},
		{"Maximum allowed order modifications exceeded.", ErrModifyLimitExceeded},
	}
	for _, tc := range cases {
		err := Classify(errors.New(tc.raw))
		assert.ErrorIs(t, err, tc.sentinel, tc.raw)
		assert.ErrorContains(t, err, tc.raw, "raw message preserved")
	}
}

func TestClassifyPassesThroughUnknownAndSentinelErrors(t *testing.T) {
	unknown := errors.New("margin shortfall")
	assert.Equal(t, unknown, Classify(unknown))

	already := Classify(errors.New("Too many requests"))
	assert.Equal(t, already, Classify(already), "no double wrapping")

	assert.NoError(t, Classify(nil))
}

func TestEffectiveStatusTreatsCancelledWithFillsAsComplete(t *testing.T) {
	o := &models.Order{Status: models.OrderStatusCancelled, FilledQty: 25}
	assert.Equal(t, models.OrderStatusComplete, EffectiveStatus(o))

	o = &models.Order{Status: models.OrderStatusCancelled}
	assert.Equal(t, models.OrderStatusCancelled, EffectiveStatus(o))

	o = &models.Order{Status: models.OrderStatusOpen, FilledQty: 25}
	assert.Equal(t, models.OrderStatusOpen, EffectiveStatus(o))
}

func TestOrderIndexTracksParentage(t *testing.T) {
	idx := NewOrderIndex()

	parent := &models.Order{OrderID: "P1"}
	childA := &models.Order{OrderID: "C1", ParentOrderID: "P1"}
	childB := &models.Order{OrderID: "C2", ParentOrderID: "P1"}
	idx.Add(parent)
	idx.Add(childA)
	idx.Add(childB)
	idx.Add(childA) // duplicate add must not duplicate adjacency
	idx.Add(nil)
	idx.Add(&models.Order{})

	assert.Equal(t, 3, idx.Len())

	got, ok := idx.Get("C1")
	require.True(t, ok)
	assert.Same(t, childA, got)

	children := idx.Children("P1")
	assert.Len(t, children, 2)
	assert.Empty(t, idx.Children("C1"))
	assert.Len(t, idx.All(), 3)
}
