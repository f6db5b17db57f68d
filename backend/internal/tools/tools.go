package tools

import (
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/sashabaranov/go-openai"

	"pizza-phone-agent/backend/internal/menu"
	"pizza-phone-agent/backend/internal/realtime"
)

// Tool names - Order Tools
const (
	ToolAddItem         = "add_item"
	ToolRemoveItem      = "remove_item"
	ToolConfirmOrder    = "confirm_order"
	ToolGetOrderSummary = "get_order_summary"
)

// Tool names - Customer Tools
const (
	ToolSetDeliveryMethod = "set_delivery_method"
	ToolSetAddress        = "set_address"
	ToolSetCustomerName   = "set_customer_name"
	ToolSetCustomerPhone  = "set_customer_phone"
	ToolSetPaymentMethod  = "set_payment_method"
)

// Tool names - Menu Tools
const (
	ToolGetItemDescription = "get_item_description"
)

// criticalTools are confirmations the caller must hear even when they
// start talking again.
var criticalTools = map[string]bool{
	ToolSetDeliveryMethod: true,
	ToolSetCustomerName:   true,
	ToolSetAddress:        true,
}

// IsCritical reports whether the confirmation for tool may interrupt the caller.
func IsCritical(tool string) bool {
	return criticalTools[tool]
}

// AddItemArgs are the arguments of add_item.
type AddItemArgs struct {
	Name       string      `json:"name" jsonschema_description:"Menu item name as listed on the menu"`
	Size       string      `json:"size,omitempty" jsonschema_description:"Size for items sold in several sizes, e.g. small, medium or large"`
	Quantity   flexInt     `json:"quantity,omitempty" jsonschema_description:"How many of this item. Never the number of wing pieces. Defaults to 1"`
	PieceCount flexInt     `json:"piece_count,omitempty" jsonschema_description:"Wings only: pieces per order"`
	Flavor     string      `json:"flavor,omitempty" jsonschema_description:"Wings only: sauce flavor"`
	Dressing   string      `json:"dressing,omitempty" jsonschema_description:"Wings only: dipping dressing"`
	Modifiers  flexStrings `json:"modifiers,omitempty" jsonschema_description:"Free text changes such as extra cheese or well done"`
}

// RemoveItemArgs are the arguments of remove_item.
type RemoveItemArgs struct {
	Name     string  `json:"name" jsonschema_description:"Name of the item to remove"`
	Size     string  `json:"size,omitempty" jsonschema_description:"Size of the line to remove when the order has several"`
	Quantity flexInt `json:"quantity,omitempty" jsonschema_description:"How many to remove. Omit to remove the whole line"`
}

// DeliveryMethodArgs are the arguments of set_delivery_method.
type DeliveryMethodArgs struct {
	Method string `json:"method" jsonschema:"enum=pickup,enum=delivery" jsonschema_description:"pickup or delivery"`
}

// AddressArgs are the arguments of set_address.
type AddressArgs struct {
	Address string `json:"address" jsonschema_description:"Full delivery address with house number and street"`
}

// CustomerNameArgs are the arguments of set_customer_name.
type CustomerNameArgs struct {
	Name string `json:"name" jsonschema_description:"Name for the order"`
}

// CustomerPhoneArgs are the arguments of set_customer_phone.
type CustomerPhoneArgs struct {
	Phone string `json:"phone" jsonschema_description:"Callback number, 10 digits"`
}

// PaymentMethodArgs are the arguments of set_payment_method.
type PaymentMethodArgs struct {
	Method string `json:"method" jsonschema:"enum=cash,enum=card" jsonschema_description:"cash or card"`
}

// ItemDescriptionArgs are the arguments of get_item_description.
type ItemDescriptionArgs struct {
	Name string `json:"name" jsonschema_description:"Menu item the caller asked about"`
}

type emptyArgs struct{}

// GetAllTools returns every tool offered to the model. Flavor, dressing
// and piece count choices come from m.
func GetAllTools(m *menu.Menu) []openai.Tool {
	tools := []openai.Tool{}

	// Order Tools
	tools = append(tools, GetOrderTools(m)...)

	// Customer Tools
	tools = append(tools, GetCustomerTools()...)

	// Menu Tools
	tools = append(tools, function(ToolGetItemDescription,
		"Look up the description of a menu item. Read it exactly as returned. If there is no description on file, say so instead of describing the item.",
		schemaFor(&ItemDescriptionArgs{})))

	return tools
}

// GetOrderTools returns the tools that change the items of the order.
func GetOrderTools(m *menu.Menu) []openai.Tool {
	addItem := schemaFor(&AddItemArgs{})
	if m != nil {
		if p, ok := addItem.Properties.Get("piece_count"); ok {
			p.Description += ". One of " + m.Wings.PieceCountList()
		}
		if p, ok := addItem.Properties.Get("flavor"); ok && len(m.Wings.Flavors) > 0 {
			p.Enum = enumOf(m.Wings.Flavors)
		}
		if p, ok := addItem.Properties.Get("dressing"); ok && len(m.Wings.Dressings) > 0 {
			p.Enum = enumOf(m.Wings.Dressings)
		}
	}

	return []openai.Tool{
		function(ToolAddItem,
			"Add an item to the order as soon as the caller asks for it. For items with several sizes include the size. For wings include piece_count and flavor; quantity is the number of wing orders, not pieces.",
			addItem),
		function(ToolRemoveItem,
			"Remove an item the caller no longer wants, or reduce its quantity.",
			schemaFor(&RemoveItemArgs{})),
		function(ToolGetOrderSummary,
			"Get the current items and totals. Use the returned totals; never add prices yourself.",
			schemaFor(&emptyArgs{})),
		function(ToolConfirmOrder,
			"Confirm the order once the caller has agreed to the summary.",
			schemaFor(&emptyArgs{})),
	}
}

// GetCustomerTools returns the tools that record who the order is for
// and how it is fulfilled.
func GetCustomerTools() []openai.Tool {
	return []openai.Tool{
		function(ToolSetDeliveryMethod,
			"Record whether the order is for pickup or delivery.",
			schemaFor(&DeliveryMethodArgs{})),
		function(ToolSetAddress,
			"Record the delivery address. Read it back to the caller afterwards.",
			schemaFor(&AddressArgs{})),
		function(ToolSetCustomerName,
			"Record the caller's name for the order.",
			schemaFor(&CustomerNameArgs{})),
		function(ToolSetCustomerPhone,
			"Record a callback number when the caller gives one.",
			schemaFor(&CustomerPhoneArgs{})),
		function(ToolSetPaymentMethod,
			"Record how the caller will pay.",
			schemaFor(&PaymentMethodArgs{})),
	}
}

// ToRealtime converts chat-style tool definitions to the realtime
// session format.
func ToRealtime(tools []openai.Tool) []realtime.Tool {
	out := make([]realtime.Tool, 0, len(tools))
	for _, t := range tools {
		if t.Function == nil {
			continue
		}
		out = append(out, realtime.Tool{
			Type:        string(openai.ToolTypeFunction),
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}
	return out
}

func function(name, description string, params *jsonschema.Schema) openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  params,
		},
	}
}

func schemaFor(v interface{}) *jsonschema.Schema {
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	s := r.Reflect(v)
	s.Version = ""
	s.ID = ""
	return s
}

func enumOf(values []string) []interface{} {
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToLower(v))
	}
	return out
}
