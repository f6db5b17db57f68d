package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"pizza-phone-agent/backend/internal/order"
	"pizza-phone-agent/backend/pkg/logger"
)

// Repository keeps the customer and order graph in Neo4j:
// (:Customer)-[:PLACED]->(:Order)-[:CONTAINS]->(:MenuItem).
type Repository struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewRepository creates a new graph repository
func NewRepository(driver neo4j.DriverWithContext) *Repository {
	return &Repository{
		driver: driver,
		logger: logger.Get(),
	}
}

// Close closes the Neo4j driver connection
func (r *Repository) Close() error {
	return r.driver.Close(context.Background())
}

// Name implements sink.Named.
func (r *Repository) Name() string { return "graph" }

// EnsureSchema creates the uniqueness constraints the writes rely on.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	statements := []string{
		`CREATE CONSTRAINT customer_phone IF NOT EXISTS FOR (c:Customer) REQUIRE c.phone IS UNIQUE`,
		`CREATE CONSTRAINT order_id IF NOT EXISTS FOR (o:Order) REQUIRE o.id IS UNIQUE`,
		`CREATE CONSTRAINT menu_item_name IF NOT EXISTS FOR (m:MenuItem) REQUIRE m.name IS UNIQUE`,
	}
	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("failed to create constraint: %w", err)
		}
	}
	return nil
}

// Submit records a finalized order. Writes are MERGEs keyed on the order
// id, so a retried submission does not duplicate anything. Orders from
// blocked or unknown numbers are stored without a customer.
func (r *Repository) Submit(ctx context.Context, receipt order.Receipt) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	placedAt := receipt.FinalizedAt
	if placedAt.IsZero() {
		placedAt = time.Now()
	}
	params := map[string]interface{}{
		"orderID":  receipt.OrderID,
		"callID":   receipt.CallID,
		"name":     receipt.CustomerName,
		"method":   string(receipt.DeliveryMethod),
		"total":    receipt.Totals.Total,
		"placedAt": placedAt.UTC().Format(time.RFC3339),
		"items":    itemParams(receipt.Items),
	}
	phone, known := order.NormalizePhone(receipt.CustomerPhone)
	params["phone"] = phone

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		orderQuery := `
			MERGE (o:Order {id: $orderID})
			ON CREATE SET
				o.call_id = $callID,
				o.customer_name = $name,
				o.method = $method,
				o.total = $total,
				o.placed_at = datetime($placedAt)
			WITH o
			UNWIND $items AS item
			MERGE (m:MenuItem {name: item.name})
			ON CREATE SET m.category = item.category
			MERGE (o)-[c:CONTAINS {line: item.line}]->(m)
			SET c.quantity = item.quantity,
				c.size = item.size,
				c.unit_price = item.unit_price,
				c.piece_count = item.piece_count,
				c.flavor = item.flavor
		`
		if _, err := tx.Run(ctx, orderQuery, params); err != nil {
			return nil, fmt.Errorf("failed to write order: %w", err)
		}
		if !known {
			return nil, nil
		}

		customerQuery := `
			MATCH (o:Order {id: $orderID})
			MERGE (c:Customer {phone: $phone})
			ON CREATE SET c.first_order_at = datetime($placedAt)
			SET c.last_order_at = datetime($placedAt),
				c.name = CASE WHEN $name <> '' THEN $name ELSE c.name END
			MERGE (c)-[:PLACED]->(o)
		`
		if _, err := tx.Run(ctx, customerQuery, params); err != nil {
			return nil, fmt.Errorf("failed to link customer: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	r.logger.Debug("Order written to graph",
		zap.String("order_id", receipt.OrderID),
		zap.Bool("customer_linked", known),
	)
	return nil
}

// CustomerHistory summarises a caller's past orders.
func (r *Repository) CustomerHistory(ctx context.Context, phone string) (*Customer, error) {
	digits, ok := order.NormalizePhone(phone)
	if !ok {
		return nil, ErrCustomerNotFound{Phone: phone}
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (c:Customer {phone: $phone})
		OPTIONAL MATCH (c)-[:PLACED]->(o:Order)
		WITH c, count(o) AS orders, sum(o.total) AS spent, max(o.placed_at) AS last
		OPTIONAL MATCH (c)-[:PLACED]->(:Order)-[l:CONTAINS]->(m:MenuItem)
		WITH c, orders, spent, last, m.name AS item, sum(l.quantity) AS qty
		ORDER BY qty DESC
		RETURN
			c.phone AS phone,
			c.name AS name,
			orders,
			spent,
			last,
			collect(item)[0..3] AS favorites
	`

	result, err := session.Run(ctx, query, map[string]interface{}{"phone": digits})
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("failed to fetch record: %w", err)
		}
		return nil, ErrCustomerNotFound{Phone: digits}
	}

	record := result.Record()
	return &Customer{
		Phone:       getStringFromRecord(record, "phone"),
		Name:        getStringFromRecord(record, "name"),
		Orders:      getIntFromRecord(record, "orders"),
		TotalSpent:  order.Round2(getFloat64FromRecord(record, "spent")),
		LastOrderAt: getTimeFromRecord(record, "last"),
		Favorites:   getStringSliceFromRecord(record, "favorites"),
	}, nil
}
