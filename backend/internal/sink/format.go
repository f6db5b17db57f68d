package sink

import (
	"fmt"
	"math"
	"strings"
	"time"
	_ "time/tzdata"
	"unicode"
	"unicode/utf8"

	"pizza-phone-agent/backend/internal/menu"
	"pizza-phone-agent/backend/internal/order"
)

// SheetHeaders are the columns of the order log, A through G.
var SheetHeaders = []string{
	"Name",
	"Phone Number",
	"Pick Up/Delivery",
	"Delivery Address",
	"Estimated Pick Up Time (EST)",
	"Price",
	"Order Details",
}

const (
	baseMinutes     = 15
	perExtraItem    = 3
	perPizza        = 5
	deliveryMinutes = 10
)

var shopZone = loadShopZone()

func loadShopZone() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}

// EstimatedMinutes is the ready-time estimate for a receipt: 15 minutes,
// plus 3 per line beyond the third, 5 per pizza line and 10 for
// delivery, rounded up to a multiple of 5.
func EstimatedMinutes(r order.Receipt) int {
	minutes := baseMinutes
	if n := len(r.Items); n > 3 {
		minutes += (n - 3) * perExtraItem
	}
	for _, it := range r.Items {
		if isPizza(it) {
			minutes += perPizza
		}
	}
	if r.DeliveryMethod == order.DeliveryDelivery {
		minutes += deliveryMinutes
	}
	minutes = int(math.Ceil(float64(minutes)/5) * 5)
	if minutes < baseMinutes {
		minutes = baseMinutes
	}
	return minutes
}

// ReadyAt is the estimated ready time in the shop's zone.
func ReadyAt(r order.Receipt) time.Time {
	at := r.FinalizedAt
	if at.IsZero() {
		at = time.Now()
	}
	return at.Add(time.Duration(EstimatedMinutes(r)) * time.Minute).In(shopZone)
}

// SheetRow renders a receipt as one order log row.
func SheetRow(r order.Receipt) []interface{} {
	name := titleCase(r.CustomerName)
	if name == "" {
		name = "Not Provided"
	}

	method, address := "Pickup", "N/A"
	if r.DeliveryMethod == order.DeliveryDelivery {
		method = "Delivery"
		address = titleCase(r.Address)
		if address == "" {
			address = "Address not provided"
		}
	}

	return []interface{}{
		name,
		order.FormatPhone(r.CustomerPhone),
		method,
		address,
		ReadyAt(r).Format("Jan 2, 3:04 PM"),
		fmt.Sprintf("$%.2f", r.Totals.Total),
		ItemDetails(r.Items),
	}
}

// ItemDetails renders the lines for a ticket, e.g.
// "2x Large Pepperoni Pizza; 1x Chicken Wings (10 Pieces, Hot, Blue Cheese)".
func ItemDetails(items []order.Item) string {
	if len(items) == 0 {
		return "No Items"
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, itemDetail(it))
	}
	return titleCase(strings.Join(parts, "; "))
}

func itemDetail(it order.Item) string {
	if it.IsWings() {
		details := []string{fmt.Sprintf("%d pieces", it.PieceCount)}
		if it.Flavor != "" {
			details = append(details, it.Flavor)
		}
		if it.Dressing != "" {
			details = append(details, it.Dressing)
		}
		details = append(details, it.Modifiers...)
		return fmt.Sprintf("%dx %s (%s)", it.Quantity, it.Name, strings.Join(details, ", "))
	}

	size := ""
	if it.Size != "" && it.Size != "regular" {
		size = it.Size + " "
	}
	line := fmt.Sprintf("%dx %s%s", it.Quantity, size, it.Name)
	if len(it.Modifiers) > 0 {
		line += " [" + strings.Join(it.Modifiers, ", ") + "]"
	}
	return line
}

func isPizza(it order.Item) bool {
	return strings.EqualFold(it.Category, menu.CategoryPizza) || strings.Contains(strings.ToLower(it.Name), "pizza")
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		lower := strings.ToLower(w)
		r, size := utf8.DecodeRuneInString(lower)
		words[i] = string(unicode.ToUpper(r)) + lower[size:]
	}
	return strings.Join(words, " ")
}
