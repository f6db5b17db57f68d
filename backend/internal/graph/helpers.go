package graph

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"pizza-phone-agent/backend/internal/order"
)

// field reads key from a record as T, or the zero value when the key is
// missing, null, or of another type.
func field[T any](record *neo4j.Record, key string) T {
	var zero T
	val, ok := record.Get(key)
	if !ok || val == nil {
		return zero
	}
	if v, ok := val.(T); ok {
		return v
	}
	return zero
}

func getStringFromRecord(record *neo4j.Record, key string) string {
	return field[string](record, key)
}

// Cypher integers arrive as int64.
func getIntFromRecord(record *neo4j.Record, key string) int {
	return int(field[int64](record, key))
}

// Order totals written by older seed runs may have been stored as integers.
func getFloat64FromRecord(record *neo4j.Record, key string) float64 {
	if n := field[int64](record, key); n != 0 {
		return float64(n)
	}
	return field[float64](record, key)
}

// Lists come back untyped; non-string members are skipped.
func getStringSliceFromRecord(record *neo4j.Record, key string) []string {
	raw := field[[]interface{}](record, key)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func getTimeFromRecord(record *neo4j.Record, key string) time.Time {
	return field[time.Time](record, key)
}

// itemParams flattens order lines into Cypher parameters.
func itemParams(items []order.Item) []interface{} {
	out := make([]interface{}, 0, len(items))
	for i, it := range items {
		out = append(out, map[string]interface{}{
			"line":        i + 1,
			"name":        it.Name,
			"category":    it.Category,
			"size":        it.Size,
			"quantity":    it.Quantity,
			"unit_price":  it.UnitPrice,
			"piece_count": it.PieceCount,
			"flavor":      it.Flavor,
		})
	}
	return out
}
