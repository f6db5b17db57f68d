package agent

import (
	"fmt"
	"strings"
	"time"

	"pizza-phone-agent/backend/internal/menu"
	"pizza-phone-agent/backend/internal/order"
	"pizza-phone-agent/backend/pkg/config"
)

// PromptBuilder renders the model instructions for a call.
type PromptBuilder struct {
	businessName string
	greeting     string
	location     string
	taxRate      float64
	now          func() time.Time
}

// NewPromptBuilder creates a builder from the business settings.
func NewPromptBuilder(cfg *config.Config) *PromptBuilder {
	return &PromptBuilder{
		businessName: cfg.BusinessName,
		greeting:     cfg.BusinessGreeting,
		location:     cfg.BusinessLocation,
		taxRate:      cfg.TaxRate,
		now:          time.Now,
	}
}

// Greeting is the line the agent opens the call with.
func (b *PromptBuilder) Greeting() string {
	return b.greeting
}

// GreetingInstructions are the instructions of the opening response.
func (b *PromptBuilder) GreetingInstructions() string {
	return fmt.Sprintf("Greet the caller with exactly: %q Then wait for them to answer.", b.greeting)
}

// Instructions builds the session instructions for one call.
func (b *PromptBuilder) Instructions(m *menu.Menu, callerID string) string {
	callerSection := ""
	switch callerID {
	case order.CallerBlocked, order.CallerUnknown, "":
		callerSection = "The caller's number is not available. Ask for a callback number before confirming and record it with set_customer_phone."
	default:
		callerSection = fmt.Sprintf("The caller is calling from %s. Do not ask for a phone number unless they want a different one.", order.FormatPhone(callerID))
	}

	return fmt.Sprintf(`# %s - Phone Orders

You are the phone order taker for %s in %s. Callers are ordering food for pickup or delivery. Speak like a friendly, quick person behind the counter: short sentences, one question at a time.

## Today
%s.

## Caller
%s

## Menu
%s

## How to Take the Order

1. When the caller names an item, call **add_item** right away. Use the menu name. If a tool result has a "prompt", ask the caller exactly that.
2. Pizzas and some sides need a size. Wings need a piece count and a flavor; quantity is the number of wing orders, never the number of pieces.
3. After each item, confirm it briefly and ask if they want anything else.
4. When they are done ordering, ask pickup or delivery and call **set_delivery_method**.
5. For delivery, call **set_address**, then read the address back word for word, including the house number.
6. Ask for a name and call **set_customer_name**.
7. Call **get_order_summary** and read the summary. Use its totals; never add up prices yourself. Tax is %.0f%%.
8. When the caller agrees, call **confirm_order**.

## Rules
- Only describe an item using **get_item_description**. If it says there is no description, say you don't have details on that one.
- If an item is not on the menu, say so and offer what is.
- Payment is cash or card, recorded with **set_payment_method**. Never take card numbers over the phone.
- Never end the call yourself.
`,
		b.businessName,
		b.businessName,
		b.location,
		b.now().Format("Monday, January 2, 2006"),
		callerSection,
		m.Text(),
		b.taxRate*100,
	)
}

// ReconnectContext restores the conversation after the AI leg was
// re-established mid-call.
func (b *PromptBuilder) ReconnectContext(o *order.Order) string {
	var sb strings.Builder
	sb.WriteString("The connection dropped and was restored. The call is still in progress; do not greet the caller again. ")
	if len(o.Items()) == 0 {
		sb.WriteString("No items have been ordered yet.")
	} else {
		sb.WriteString(o.Summary())
	}
	if missing := o.Missing(); len(missing) > 0 {
		sb.WriteString(" Still needed: ")
		sb.WriteString(strings.ReplaceAll(strings.Join(missing, ", "), "_", " "))
		sb.WriteString(".")
	}
	sb.WriteString(" Continue where you left off.")
	return sb.String()
}
