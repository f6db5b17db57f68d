package order

import (
	"fmt"
	"strings"
)

// Describe renders one line the way it is read to the caller,
// e.g. "2 large pepperoni pizzas" or "1 chicken wings, 10 pieces, hot".
func (i Item) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d ", i.Quantity)
	if i.Size != "" && i.Size != "regular" && !i.IsWings() {
		b.WriteString(i.Size)
		b.WriteString(" ")
	}
	b.WriteString(i.Name)
	if i.Quantity > 1 && !strings.HasSuffix(i.Name, "s") {
		b.WriteString("s")
	}
	if i.IsWings() {
		fmt.Fprintf(&b, ", %d pieces", i.PieceCount)
		if i.Flavor != "" {
			b.WriteString(", " + i.Flavor)
		}
		if i.Dressing != "" {
			b.WriteString(" with " + i.Dressing)
		}
	}
	if len(i.Modifiers) > 0 {
		b.WriteString(" (" + strings.Join(i.Modifiers, ", ") + ")")
	}
	return b.String()
}

// Summary is the spoken read-back of the whole order.
func (o *Order) Summary() string {
	items := o.Items()
	totals := o.Totals()
	method := o.DeliveryMethod()
	address, _ := o.Address()
	payment := o.PaymentMethod()

	var b strings.Builder
	b.WriteString("Here's your order. ")
	if len(items) > 0 {
		b.WriteString("You have ")
		for idx, it := range items {
			switch {
			case idx == 0:
			case idx == len(items)-1:
				b.WriteString(" and ")
			default:
				b.WriteString(", ")
			}
			b.WriteString(it.Describe())
		}
		b.WriteString(". ")
	}
	fmt.Fprintf(&b, "Subtotal is $%.2f, tax is $%.2f, for a total of $%.2f.", totals.Subtotal, totals.Tax, totals.Total)

	switch method {
	case DeliveryPickup:
		b.WriteString(" This is for pickup.")
	case DeliveryDelivery:
		if address == "" {
			address = "your address"
		}
		fmt.Fprintf(&b, " This is for delivery to %s.", address)
	}
	if payment != PaymentUnset {
		fmt.Fprintf(&b, " Payment will be by %s.", payment)
	}
	return b.String()
}
