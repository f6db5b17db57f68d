package order

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu       sync.Mutex
	receipts []Receipt
	failNext int32
}

func (s *recordingSink) Submit(ctx context.Context, r Receipt) error {
	if atomic.AddInt32(&s.failNext, -1) >= 0 {
		return errors.New("sheet unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.receipts)
}

func readyPickupOrder() *Order {
	o := New("CA123", "+15551234567", 0.08)
	o.AddItem(Item{Name: "pepperoni pizza", Size: "large", Quantity: 1, UnitPrice: 20.99})
	o.SetDeliveryMethod(DeliveryPickup)
	o.SetCustomerName("Maria")
	return o
}

func TestTotals_Example(t *testing.T) {
	o := New("CA123", "", 0.08)
	o.AddItem(Item{Name: "pepperoni pizza", Size: "large", Quantity: 1, UnitPrice: 20.99})
	o.AddItem(Item{Name: "garlic knots", Size: "regular", Quantity: 2, UnitPrice: 6.99})

	totals := o.Totals()
	assert.Equal(t, 34.97, totals.Subtotal)
	assert.Equal(t, 2.80, totals.Tax)
	assert.Equal(t, 37.77, totals.Total)
}

func TestTotals_RoundedOnceFromUnroundedSum(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	prices := []float64{1.99, 2.99, 6.99, 12.99, 13.99, 20.99, 23.99}
	o := New("CA1", "", 0.0875)

	for step := 0; step < 200; step++ {
		name := []string{"a", "b", "c", "d"}[rng.Intn(4)]
		if rng.Intn(3) == 0 {
			o.RemoveItem(name, "", rng.Intn(3))
		} else {
			o.AddItem(Item{Name: name, Quantity: 1 + rng.Intn(3), UnitPrice: prices[rng.Intn(len(prices))]})
		}

		var subtotal float64
		for _, it := range o.Items() {
			subtotal += it.UnitPrice * float64(it.Quantity)
		}
		got := o.Totals()
		want := math.Round((subtotal+subtotal*0.0875)*100) / 100
		require.Equal(t, want, got.Total, "step %d", step)
	}
}

func TestTotals_CacheInvalidatedOnMutation(t *testing.T) {
	o := New("CA1", "", 0.08)
	o.AddItem(Item{Name: "soda", Quantity: 1, UnitPrice: 2.99})
	assert.Equal(t, 2.99, o.Totals().Subtotal)

	o.AddItem(Item{Name: "water", Quantity: 1, UnitPrice: 1.99})
	assert.Equal(t, 4.98, o.Totals().Subtotal)

	o.RemoveItem("soda", "", 0)
	assert.Equal(t, 1.99, o.Totals().Subtotal)
}

func TestAddItem_Merges(t *testing.T) {
	o := New("CA1", "", 0.08)

	_, merged := o.AddItem(Item{Name: "cheese pizza", Size: "small", Quantity: 1, UnitPrice: 12.99})
	assert.False(t, merged)
	line, merged := o.AddItem(Item{Name: "Cheese Pizza", Size: "small", Quantity: 2, UnitPrice: 12.99})
	assert.True(t, merged)
	assert.Equal(t, 3, line.Quantity)

	_, merged = o.AddItem(Item{Name: "cheese pizza", Size: "large", Quantity: 1, UnitPrice: 18.99})
	assert.False(t, merged)

	// Wings differing only in piece count stay separate lines.
	o.AddItem(Item{Name: "chicken wings", PieceCount: 10, Flavor: "hot", Quantity: 1, UnitPrice: 13.99})
	_, merged = o.AddItem(Item{Name: "chicken wings", PieceCount: 20, Flavor: "hot", Quantity: 1, UnitPrice: 25.99})
	assert.False(t, merged)

	items := o.Items()
	require.Len(t, items, 4)
	assert.Equal(t, "small", items[0].Size)
	assert.Equal(t, 10, items[2].PieceCount)
	assert.Equal(t, 1, items[2].Quantity)
}

func TestAddItem_DefaultsQuantity(t *testing.T) {
	o := New("CA1", "", 0.08)
	line, _ := o.AddItem(Item{Name: "soda", UnitPrice: 2.99})
	assert.Equal(t, 1, line.Quantity)
}

func TestRemoveItem(t *testing.T) {
	o := New("CA1", "", 0.08)
	o.AddItem(Item{Name: "soda", Quantity: 3, UnitPrice: 2.99})
	o.AddItem(Item{Name: "cheese pizza", Size: "large", Quantity: 1, UnitPrice: 18.99})

	removed, ok := o.RemoveItem("soda", "", 1)
	require.True(t, ok)
	assert.Equal(t, 1, removed.Quantity)
	assert.Equal(t, 2, o.Items()[0].Quantity)

	_, ok = o.RemoveItem("cheese pizza", "small", 0)
	assert.False(t, ok)

	_, ok = o.RemoveItem("cheese pizza", "large", 0)
	assert.True(t, ok)
	assert.Len(t, o.Items(), 1)
}

func TestSetAddress(t *testing.T) {
	o := New("CA1", "", 0.08)

	require.False(t, o.SetAddress(" 123 Main St "))
	assert.Equal(t, DeliveryDelivery, o.DeliveryMethod())
	addr, confirmed := o.Address()
	assert.Equal(t, "123 Main St", addr)
	assert.False(t, confirmed)

	assert.True(t, o.MarkAddressSpoken("Great, I have 123 Main Street. Is that right?"))
	_, confirmed = o.Address()
	assert.True(t, confirmed)

	// A new address must be read back again.
	o.SetAddress("45 Oak Ave")
	_, confirmed = o.Address()
	assert.False(t, confirmed)

	o.SetDeliveryMethod(DeliveryPickup)
	addr, _ = o.Address()
	assert.Empty(t, addr)

	assert.True(t, o.SetAddress("9 Elm St"), "pickup switched to delivery")
	assert.Equal(t, DeliveryDelivery, o.DeliveryMethod())
	addr, _ = o.Address()
	assert.Equal(t, "9 Elm St", addr)
}

func TestMarkAddressSpoken(t *testing.T) {
	tests := []struct {
		address    string
		transcript string
		want       bool
	}{
		{"123 Main St", "Delivering to 123 Main Street.", true},
		{"123 Main St", "Delivering to one two three Main Street.", true},
		{"123 Main St", "Delivering to 124 Main Street.", false},
		{"123 Main St", "What is your address?", false},
		{"77 N Broad Street Apt 4", "So that's 77 North Broad Street, apartment 4?", true},
		{"Elm Court", "You said Elm Court, correct?", true},
	}
	for _, tt := range tests {
		t.Run(tt.transcript, func(t *testing.T) {
			o := New("CA1", "", 0.08)
			o.SetAddress(tt.address)
			assert.Equal(t, tt.want, o.MarkAddressSpoken(tt.transcript))
		})
	}
}

func TestMissing(t *testing.T) {
	o := New("CA1", "", 0.08)
	assert.Equal(t, []string{FieldItems, FieldDeliveryMethod, FieldCustomerName}, o.Missing())

	o.AddItem(Item{Name: "soda", Quantity: 1, UnitPrice: 2.99})
	o.SetDeliveryMethod(DeliveryDelivery)
	o.SetCustomerName("Sam")
	assert.Equal(t, []string{FieldAddress}, o.Missing())

	o.SetAddress("10 Pine Rd")
	assert.Equal(t, []string{FieldAddressConfirmation}, o.Missing())

	o.MarkAddressSpoken("10 Pine Road, got it")
	assert.Empty(t, o.Missing())
}

func TestMissing_ZeroPriceItemDoesNotCount(t *testing.T) {
	o := New("CA1", "", 0.08)
	o.AddItem(Item{Name: "mystery", Quantity: 1, UnitPrice: 0})
	assert.Contains(t, o.Missing(), FieldItems)
	assert.False(t, o.HasPricedItem())
}

func TestFinalize_HandsOffOnce(t *testing.T) {
	sink := &recordingSink{}
	f := NewFinalizer(sink, nil)
	o := readyPickupOrder()

	outcome, _ := f.Finalize(context.Background(), o)
	assert.Equal(t, OutcomeSubmitted, outcome)
	outcome, _ = f.Finalize(context.Background(), o)
	assert.Equal(t, OutcomeAlreadyLogged, outcome)

	assert.Equal(t, 1, sink.count())
	assert.True(t, o.Logged())
}

func TestFinalize_ConcurrentAttempts(t *testing.T) {
	sink := &recordingSink{}
	f := NewFinalizer(sink, nil)
	o := readyPickupOrder()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Finalize(context.Background(), o)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, sink.count())
}

func TestFinalize_FailureResetsLogged(t *testing.T) {
	sink := &recordingSink{failNext: 1}
	f := NewFinalizer(sink, nil)
	o := readyPickupOrder()

	outcome, _ := f.Finalize(context.Background(), o)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.False(t, o.Logged())

	outcome, _ = f.Finalize(context.Background(), o)
	assert.Equal(t, OutcomeSubmitted, outcome)
	assert.Equal(t, 1, sink.count())
}

func TestFinalize_DeliveryNeedsConfirmedAddress(t *testing.T) {
	sink := &recordingSink{}
	f := NewFinalizer(sink, nil)

	o := New("CA1", "", 0.08)
	o.AddItem(Item{Name: "soda", Quantity: 1, UnitPrice: 2.99})
	o.SetCustomerName("Sam")
	o.SetDeliveryMethod(DeliveryDelivery)

	outcome, missing := f.Finalize(context.Background(), o)
	assert.Equal(t, OutcomeNotReady, outcome)
	assert.Equal(t, []string{FieldAddress}, missing)

	o.SetAddress("10 Pine Rd")
	outcome, missing = f.Finalize(context.Background(), o)
	assert.Equal(t, OutcomeNotReady, outcome)
	assert.Equal(t, []string{FieldAddressConfirmation}, missing)
	assert.Equal(t, 0, sink.count())

	o.MarkAddressSpoken("I'll send it to 10 Pine Road.")
	outcome, _ = f.Finalize(context.Background(), o)
	assert.Equal(t, OutcomeSubmitted, outcome)

	require.Equal(t, 1, sink.count())
	r := sink.receipts[0]
	assert.Equal(t, "10 Pine Rd", r.Address)
	assert.Equal(t, o.ID, r.OrderID)
	assert.Equal(t, CallerUnknown, r.CustomerPhone)
}

func TestSummary(t *testing.T) {
	o := readyPickupOrder()
	o.AddItem(Item{Name: "garlic knots", Size: "regular", Quantity: 2, UnitPrice: 6.99})
	o.AddItem(Item{Name: "chicken wings", PieceCount: 10, Flavor: "hot", Dressing: "ranch", Quantity: 1, UnitPrice: 13.99})
	o.SetPaymentMethod(PaymentCard)

	assert.Equal(t,
		"Here's your order. You have 1 large pepperoni pizza, 2 garlic knots and 1 chicken wings, 10 pieces, hot with ranch. "+
			"Subtotal is $48.96, tax is $3.92, for a total of $52.88. This is for pickup. Payment will be by card.",
		o.Summary())
}
