package graph

import "time"

// Customer is what the graph knows about a caller.
type Customer struct {
	Phone       string    `json:"phone"`
	Name        string    `json:"name,omitempty"`
	Orders      int       `json:"orders"`
	TotalSpent  float64   `json:"total_spent"`
	LastOrderAt time.Time `json:"last_order_at,omitempty"`
	Favorites   []string  `json:"favorites"`
}

// ErrCustomerNotFound is returned when a phone number has no history
type ErrCustomerNotFound struct {
	Phone string
}

func (e ErrCustomerNotFound) Error() string {
	return "customer not found: " + e.Phone
}
