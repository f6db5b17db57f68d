package graph

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pizza-phone-agent/backend/internal/order"
)

func TestItemParams(t *testing.T) {
	params := itemParams([]order.Item{
		{Name: "pepperoni pizza", Category: "pizza", Size: "large", Quantity: 2, UnitPrice: 20.99},
		{Name: "chicken wings", Category: "wings", Quantity: 1, UnitPrice: 13.99, PieceCount: 10, Flavor: "hot"},
	})
	require.Len(t, params, 2)

	first := params[0].(map[string]interface{})
	assert.Equal(t, 1, first["line"])
	assert.Equal(t, "large", first["size"])
	assert.Equal(t, 2, first["quantity"])

	second := params[1].(map[string]interface{})
	assert.Equal(t, 2, second["line"])
	assert.Equal(t, 10, second["piece_count"])
	assert.Equal(t, "hot", second["flavor"])
}

func TestCustomerHistory_RejectsSentinels(t *testing.T) {
	repo := &Repository{}
	_, err := repo.CustomerHistory(context.Background(), order.CallerBlocked)
	require.Error(t, err)
	assert.IsType(t, ErrCustomerNotFound{}, err)
}

// The tests below require a running Neo4j instance.
// Set NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD environment variables
func TestRepository_SubmitAndHistory(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	ctx := context.Background()
	driver, err := createTestDriver()
	if err != nil {
		t.Skipf("Neo4j not available: %v", err)
	}
	defer driver.Close(ctx)

	repo := NewRepository(driver)
	require.NoError(t, repo.EnsureSchema(ctx))

	phone := "555" + time.Now().Format("0102150")
	receipt := order.Receipt{
		OrderID:        "test-order-" + time.Now().Format("20060102150405.000"),
		CallID:         "CA-test",
		CustomerName:   "Dana",
		CustomerPhone:  phone,
		DeliveryMethod: order.DeliveryPickup,
		Items: []order.Item{
			{Name: "test pizza", Category: "pizza", Size: "large", Quantity: 2, UnitPrice: 20},
		},
		Totals:      order.Totals{Subtotal: 40, Tax: 3.2, Total: 43.2},
		FinalizedAt: time.Now(),
	}

	defer func() {
		session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
		defer session.Close(ctx)
		_, _ = session.Run(ctx, "MATCH (c:Customer {phone: $phone}) DETACH DELETE c", map[string]interface{}{"phone": phone})
		_, _ = session.Run(ctx, "MATCH (o:Order {id: $id}) DETACH DELETE o", map[string]interface{}{"id": receipt.OrderID})
	}()

	require.NoError(t, repo.Submit(ctx, receipt))
	// A retried hand-off must not duplicate the order.
	require.NoError(t, repo.Submit(ctx, receipt))

	customer, err := repo.CustomerHistory(ctx, phone)
	require.NoError(t, err)
	assert.Equal(t, "Dana", customer.Name)
	assert.Equal(t, 1, customer.Orders)
	assert.InDelta(t, 43.2, customer.TotalSpent, 0.001)
	assert.Equal(t, []string{"test pizza"}, customer.Favorites)
}

func createTestDriver() (neo4j.DriverWithContext, error) {
	uri := os.Getenv("NEO4J_URI")
	if uri == "" {
		uri = "bolt://localhost:7687"
	}
	user := os.Getenv("NEO4J_USER")
	if user == "" {
		user = "neo4j"
	}
	password := os.Getenv("NEO4J_PASSWORD")
	if password == "" {
		password = "password"
	}

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, err
	}

	// Verify connection
	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, err
	}
	return driver, nil
}
