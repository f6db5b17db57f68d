package order

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

// DeliveryMethod is how the order leaves the shop.
type DeliveryMethod string

const (
	DeliveryUnset    DeliveryMethod = ""
	DeliveryPickup   DeliveryMethod = "pickup"
	DeliveryDelivery DeliveryMethod = "delivery"
)

// PaymentMethod is how the caller intends to pay.
type PaymentMethod string

const (
	PaymentUnset PaymentMethod = ""
	PaymentCash  PaymentMethod = "cash"
	PaymentCard  PaymentMethod = "card"
)

// Item is one line of the order.
type Item struct {
	Name       string   `json:"name"`
	Category   string   `json:"category,omitempty"`
	Size       string   `json:"size,omitempty"`
	Quantity   int      `json:"quantity"`
	UnitPrice  float64  `json:"unit_price"`
	PieceCount int      `json:"piece_count,omitempty"`
	Flavor     string   `json:"flavor,omitempty"`
	Dressing   string   `json:"dressing,omitempty"`
	Modifiers  []string `json:"modifiers,omitempty"`
}

// LineTotal is UnitPrice × Quantity.
func (i Item) LineTotal() float64 {
	return i.UnitPrice * float64(i.Quantity)
}

// IsWings reports whether the line is priced per piece count.
func (i Item) IsWings() bool {
	return i.PieceCount > 0
}

// mergeKey identifies lines that are the same configuration. Piece count
// is part of it so a 10 and a 20 piece order stay separate lines.
func (i Item) mergeKey() string {
	return strings.Join([]string{
		strings.ToLower(i.Name),
		strings.ToLower(i.Size),
		strings.ToLower(i.Flavor),
		itoa(i.PieceCount),
	}, "|")
}

// Totals are the published money amounts of an order.
type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}

// Order is the record built during one call. Methods are safe for
// concurrent use; the session loop is the only writer apart from the
// finalization path.
type Order struct {
	ID        string
	CallID    string
	CreatedAt time.Time

	mu               sync.Mutex
	taxRate          float64
	items            []Item
	deliveryMethod   DeliveryMethod
	address          string
	addressConfirmed bool
	customerName     string
	customerPhone    string
	paymentMethod    PaymentMethod
	confirmed        bool
	totals           *Totals
	logged           bool
}

// New creates an empty order for a call. callerID seeds the customer
// phone, which is never empty.
func New(callID, callerID string, taxRate float64) *Order {
	return &Order{
		ID:            uuid.New().String(),
		CallID:        callID,
		CreatedAt:     time.Now(),
		taxRate:       taxRate,
		customerPhone: ResolveCallerID(callerID),
	}
}

// AddItem appends the item, or merges it into an existing line of the
// same configuration. Returns the resulting line and whether it merged.
func (o *Order) AddItem(it Item) (Item, bool) {
	if it.Quantity < 1 {
		it.Quantity = 1
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.totals = nil
	key := it.mergeKey()
	for idx := range o.items {
		if o.items[idx].mergeKey() == key {
			o.items[idx].Quantity += it.Quantity
			o.items[idx].Modifiers = appendUnique(o.items[idx].Modifiers, it.Modifiers...)
			if o.items[idx].Dressing == "" {
				o.items[idx].Dressing = it.Dressing
			}
			return o.items[idx], true
		}
	}
	o.items = append(o.items, it)
	return it, false
}

// RemoveItem removes quantity orders of the last line matching name (and
// size, when given). A quantity of zero or at least the line's quantity
// drops the whole line.
func (o *Order) RemoveItem(name, size string, quantity int) (Item, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for idx := len(o.items) - 1; idx >= 0; idx-- {
		line := o.items[idx]
		if !strings.EqualFold(line.Name, name) {
			continue
		}
		if size != "" && !strings.EqualFold(line.Size, size) {
			continue
		}
		o.totals = nil
		if quantity > 0 && quantity < line.Quantity {
			o.items[idx].Quantity -= quantity
			removed := line
			removed.Quantity = quantity
			return removed, true
		}
		o.items = append(o.items[:idx], o.items[idx+1:]...)
		return line, true
	}
	return Item{}, false
}

// Items returns a copy of the lines in insertion order.
func (o *Order) Items() []Item {
	o.mu.Lock()
	defer o.mu.Unlock()
	return copyItems(o.items)
}

// HasPricedItem reports whether at least one line has a positive unit price.
func (o *Order) HasPricedItem() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hasPricedItemLocked()
}

func (o *Order) hasPricedItemLocked() bool {
	for _, it := range o.items {
		if it.UnitPrice > 0 && it.Quantity > 0 {
			return true
		}
	}
	return false
}

// Totals returns the cached totals, computing them on first read after a change.
func (o *Order) Totals() Totals {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.totalsLocked()
}

func (o *Order) totalsLocked() Totals {
	if o.totals != nil {
		return *o.totals
	}
	var subtotal float64
	for _, it := range o.items {
		subtotal += it.LineTotal()
	}
	tax := subtotal * o.taxRate
	t := Totals{
		Subtotal: Round2(subtotal),
		Tax:      Round2(tax),
		Total:    Round2(subtotal + tax),
	}
	o.totals = &t
	return t
}

// SetDeliveryMethod sets pickup or delivery. Switching to pickup clears
// the address.
func (o *Order) SetDeliveryMethod(m DeliveryMethod) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deliveryMethod = m
	if m == DeliveryPickup {
		o.address = ""
		o.addressConfirmed = false
	}
}

// DeliveryMethod returns the current delivery method.
func (o *Order) DeliveryMethod() DeliveryMethod {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.deliveryMethod
}

// SetAddress stores a delivery address, which must be read back before
// the order can finalize. Giving an address makes the order a delivery;
// switched reports whether it was previously marked for pickup.
func (o *Order) SetAddress(address string) (switched bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switched = o.deliveryMethod == DeliveryPickup
	o.deliveryMethod = DeliveryDelivery
	o.address = strings.TrimSpace(address)
	o.addressConfirmed = false
	return switched
}

// Address returns the stored address and whether it has been read back.
func (o *Order) Address() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.address, o.addressConfirmed
}

// MarkAddressSpoken confirms the address when transcript, the text of
// something the agent said, reads it back. Returns true when this call
// confirmed it.
func (o *Order) MarkAddressSpoken(transcript string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.address == "" || o.addressConfirmed {
		return false
	}
	if !addressReadBack(o.address, transcript) {
		return false
	}
	o.addressConfirmed = true
	return true
}

// SetCustomerName sets the name for the ticket.
func (o *Order) SetCustomerName(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.customerName = strings.TrimSpace(name)
}

// CustomerName returns the name for the ticket.
func (o *Order) CustomerName() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.customerName
}

// SetCustomerPhone replaces the phone when raw normalizes to 10 digits.
// A malformed number leaves the existing phone in place.
func (o *Order) SetCustomerPhone(raw string) (string, bool) {
	phone, ok := NormalizePhone(raw)
	if !ok {
		return "", false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.customerPhone = phone
	return phone, true
}

// CustomerPhone returns 10 digits or one of the caller-id sentinels.
func (o *Order) CustomerPhone() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.customerPhone
}

// SetPaymentMethod records cash or card.
func (o *Order) SetPaymentMethod(p PaymentMethod) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paymentMethod = p
}

// PaymentMethod returns the recorded payment method.
func (o *Order) PaymentMethod() PaymentMethod {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paymentMethod
}

// Confirm marks the order as confirmed by the caller.
func (o *Order) Confirm() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.confirmed = true
}

// Confirmed reports whether the caller confirmed the order.
func (o *Order) Confirmed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.confirmed
}

// Logged reports whether the order has been handed off.
func (o *Order) Logged() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.logged
}

// Missing lists what still prevents finalization, in the order the agent
// should ask for it. Empty means the order is ready.
func (o *Order) Missing() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.missingLocked()
}

func (o *Order) missingLocked() []string {
	var missing []string
	if !o.hasPricedItemLocked() {
		missing = append(missing, FieldItems)
	}
	if o.deliveryMethod == DeliveryUnset {
		missing = append(missing, FieldDeliveryMethod)
	}
	if o.deliveryMethod == DeliveryDelivery {
		if o.address == "" {
			missing = append(missing, FieldAddress)
		} else if !o.addressConfirmed {
			missing = append(missing, FieldAddressConfirmation)
		}
	}
	if o.customerName == "" {
		missing = append(missing, FieldCustomerName)
	}
	return missing
}

// Fields reported by Missing.
const (
	FieldItems               = "items"
	FieldDeliveryMethod      = "delivery_method"
	FieldAddress             = "address"
	FieldAddressConfirmation = "address_confirmation"
	FieldCustomerName        = "customer_name"
)

// Receipt is the immutable payload handed to sinks.
type Receipt struct {
	OrderID        string         `json:"order_id"`
	CallID         string         `json:"call_id"`
	CustomerName   string         `json:"customer_name"`
	CustomerPhone  string         `json:"customer_phone"`
	DeliveryMethod DeliveryMethod `json:"delivery_method"`
	Address        string         `json:"address,omitempty"`
	PaymentMethod  PaymentMethod  `json:"payment_method,omitempty"`
	Items          []Item         `json:"items"`
	Totals         Totals         `json:"totals"`
	CreatedAt      time.Time      `json:"created_at"`
	FinalizedAt    time.Time      `json:"finalized_at"`
}

// Snapshot copies the order into a receipt.
func (o *Order) Snapshot() Receipt {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked(time.Now())
}

func (o *Order) snapshotLocked(at time.Time) Receipt {
	return Receipt{
		OrderID:        o.ID,
		CallID:         o.CallID,
		CustomerName:   o.customerName,
		CustomerPhone:  o.customerPhone,
		DeliveryMethod: o.deliveryMethod,
		Address:        o.address,
		PaymentMethod:  o.paymentMethod,
		Items:          copyItems(o.items),
		Totals:         o.totalsLocked(),
		CreatedAt:      o.CreatedAt,
		FinalizedAt:    at,
	}
}

// claim is the finalize check-and-set. It returns the receipt to hand off
// when the order is ready and not yet logged.
func (o *Order) claim(at time.Time) (Receipt, []string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.logged {
		return Receipt{}, nil, false
	}
	if missing := o.missingLocked(); len(missing) > 0 {
		return Receipt{}, missing, false
	}
	o.logged = true
	return o.snapshotLocked(at), nil, true
}

func (o *Order) release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.logged = false
}

// Round2 rounds to cents, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func copyItems(items []Item) []Item {
	var out []Item
	if err := copier.CopyWithOption(&out, items, copier.Option{DeepCopy: true}); err != nil || len(out) != len(items) {
		out = make([]Item, len(items))
		for i, it := range items {
			it.Modifiers = append([]string(nil), it.Modifiers...)
			out[i] = it
		}
	}
	if out == nil {
		out = []Item{}
	}
	return out
}

func appendUnique(list []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, existing := range list {
			if strings.EqualFold(existing, v) {
				found = true
				break
			}
		}
		if !found {
			list = append(list, v)
		}
	}
	return list
}
