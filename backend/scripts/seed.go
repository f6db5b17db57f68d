package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"pizza-phone-agent/backend/internal/calllog"
	"pizza-phone-agent/backend/internal/graph"
	"pizza-phone-agent/backend/internal/menu"
	"pizza-phone-agent/backend/internal/order"
	"pizza-phone-agent/backend/pkg/config"
	"pizza-phone-agent/backend/pkg/logger"
)

var demoCustomers = []struct {
	name  string
	phone string
}{
	{"Dana Kim", "5551234567"},
	{"Luis Ortega", "5552345678"},
	{"Priya Shah", "5553456789"},
}

func main() {
	orders := flag.Int("orders", 6, "Demo orders to write to the customer graph")
	calls := flag.Int("calls", 20, "Demo calls to spread over the last week")
	skipGraph := flag.Bool("skip-graph", false, "Do not touch Neo4j")
	skipCalls := flag.Bool("skip-calls", false, "Do not touch the call log")
	flag.Parse()

	// Initialize logger
	if err := logger.Init("development", "pizza-phone-agent-seed"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting demo seeding...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	if !*skipGraph {
		seedGraph(ctx, cfg, log, rng, *orders)
	}
	if !*skipCalls {
		seedCalls(ctx, cfg, log, rng, *calls)
	}

	log.Info("Seeding complete")
}

func seedGraph(ctx context.Context, cfg *config.Config, log *zap.Logger, rng *rand.Rand, n int) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		log.Fatal("Failed to create Neo4j driver", zap.Error(err))
	}
	defer driver.Close(ctx)

	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Fatal("Failed to verify Neo4j connectivity", zap.Error(err))
	}

	repo := graph.NewRepository(driver)
	log.Info("Creating constraints...")
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Warn("Failed to create some constraints (may already exist)", zap.Error(err))
	}

	m := menu.Static()
	names := m.Names()
	for i := 0; i < n; i++ {
		customer := demoCustomers[i%len(demoCustomers)]
		o := order.New("CAseed"+uuid.NewString()[:8], customer.phone, cfg.TaxRate)

		for j := 0; j < 1+rng.Intn(3); j++ {
			if it, ok := demoItem(m, names[rng.Intn(len(names))]); ok {
				o.AddItem(it)
			}
		}
		o.SetCustomerName(customer.name)
		o.SetDeliveryMethod(order.DeliveryPickup)
		o.SetPaymentMethod(order.PaymentCash)

		receipt := o.Snapshot()
		if err := repo.Submit(ctx, receipt); err != nil {
			log.Fatal("Failed to write demo order", zap.Error(err))
		}
		log.Info("Demo order written",
			zap.String("order_id", receipt.OrderID),
			zap.String("customer", customer.name),
			zap.Float64("total", receipt.Totals.Total),
		)
	}
}

// demoItem prices one of name's sizes, or its smallest piece count for wings.
func demoItem(m *menu.Menu, name string) (order.Item, bool) {
	mi, ok := m.Lookup(name)
	if !ok {
		return order.Item{}, false
	}
	it := order.Item{Name: mi.Name, Category: mi.Category, Quantity: 1}
	if mi.IsWings() {
		for _, n := range m.Wings.PieceCounts {
			if price, ok := mi.PriceForPieces(n); ok {
				it.PieceCount, it.UnitPrice = n, price
				break
			}
		}
		if len(m.Wings.Flavors) > 0 {
			it.Flavor = m.Wings.Flavors[0]
		}
	} else {
		it.Size = mi.DefaultSize()
		it.UnitPrice, _ = mi.Price(it.Size)
	}
	return it, it.UnitPrice > 0
}

func seedCalls(ctx context.Context, cfg *config.Config, log *zap.Logger, rng *rand.Rand, n int) {
	store, err := calllog.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to open call log", zap.Error(err))
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		log.Fatal("Failed to migrate call log", zap.Error(err))
	}

	now := time.Now().UTC()
	inserted := 0
	for i := 0; i < n; i++ {
		duration := 30 + rng.Intn(300)
		ok, err := store.LogCall(ctx, calllog.Call{
			CallSID:     "CAseed" + uuid.NewString(),
			ClientSlug:  cfg.ClientSlug,
			CallDate:    now.AddDate(0, 0, -rng.Intn(7)).Format("2006-01-02"),
			DurationSec: duration,
			MinutesUsed: calllog.MinutesFor(duration),
			Answered:    true,
			AIHandled:   true,
		})
		if err != nil {
			log.Fatal("Failed to log demo call", zap.Error(err))
		}
		if ok {
			inserted++
		}
	}
	log.Info("Demo calls logged", zap.Int("inserted", inserted), zap.String("client", cfg.ClientSlug))
}
