package agent

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pizza-phone-agent/backend/internal/menu"
	"pizza-phone-agent/backend/internal/order"
	"pizza-phone-agent/backend/pkg/config"
)

func testBuilder() *PromptBuilder {
	b := NewPromptBuilder(&config.Config{
		BusinessName:     "Tony's Pizza",
		BusinessGreeting: "Welcome to Tony's Pizza. How can I help you today?",
		BusinessLocation: "Springfield, IL",
		TaxRate:          0.08,
	})
	b.now = func() time.Time { return time.Date(2024, 6, 10, 18, 0, 0, 0, time.UTC) }
	return b
}

func TestInstructions_KnownCaller(t *testing.T) {
	m := menu.Static()
	out := testBuilder().Instructions(m, "5551234567")

	assert.True(t, strings.HasPrefix(out, "# Tony's Pizza - Phone Orders"))
	assert.Contains(t, out, "Springfield, IL")
	assert.Contains(t, out, "Monday, June 10, 2024")
	assert.Contains(t, out, "calling from (555) 123-4567")
	assert.Contains(t, out, "Tax is 8%")
	assert.Contains(t, out, m.Text())
}

func TestInstructions_BlockedCaller(t *testing.T) {
	for _, caller := range []string{order.CallerBlocked, order.CallerUnknown} {
		out := testBuilder().Instructions(menu.Static(), caller)
		assert.Contains(t, out, "Ask for a callback number")
		assert.NotContains(t, out, "calling from")
	}
}

func TestGreetingInstructions(t *testing.T) {
	b := testBuilder()
	assert.Equal(t, "Welcome to Tony's Pizza. How can I help you today?", b.Greeting())
	assert.Contains(t, b.GreetingInstructions(), `"Welcome to Tony's Pizza. How can I help you today?"`)
}

func TestReconnectContext(t *testing.T) {
	b := testBuilder()

	empty := order.New("CA1", "5551234567", 0.08)
	out := b.ReconnectContext(empty)
	assert.Contains(t, out, "do not greet the caller again")
	assert.Contains(t, out, "No items have been ordered yet.")
	assert.Contains(t, out, "Still needed:")

	o := order.New("CA1", "5551234567", 0.08)
	o.AddItem(order.Item{Name: "soda", Quantity: 1, UnitPrice: 2.99})
	out = b.ReconnectContext(o)
	assert.NotContains(t, out, "No items have been ordered yet.")
	assert.Contains(t, out, o.Summary())
	assert.True(t, strings.HasSuffix(out, "Continue where you left off."))
}
