package calllog

import (
	"context"
	"embed"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	apperrors "pizza-phone-agent/backend/pkg/errors"
	"pizza-phone-agent/backend/pkg/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresStore is the durable Store.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// OpenPostgres connects to databaseURL and verifies the connection.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, apperrors.NewConfigMissingRequired("DATABASE_URL")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, apperrors.NewStorage("connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperrors.NewStorage("ping", err)
	}
	return &PostgresStore{pool: pool, logger: logger.Get().With(zap.String("component", "calllog"))}, nil
}

// Migrate applies the embedded schema migrations.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(p.pool)
	defer db.Close()

	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return apperrors.NewStorage("migrate", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, sub)
	if err != nil {
		return apperrors.NewStorage("migrate", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return apperrors.NewStorage("migrate", err)
	}
	for _, r := range results {
		p.logger.Info("Applied migration",
			zap.Int64("version", r.Source.Version),
			zap.Duration("duration", r.Duration))
	}
	return nil
}

func (p *PostgresStore) LogCall(ctx context.Context, c Call) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO calls (call_sid, client_slug, call_date, duration_sec, minutes_used,
		                   answered, ai_handled, order_id, order_logged, order_total)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (call_sid) DO NOTHING`,
		c.CallSID, c.ClientSlug, c.CallDate, c.DurationSec, c.MinutesUsed,
		c.Answered, c.AIHandled, c.OrderID, c.OrderLogged, c.OrderTotal)
	if err != nil {
		return false, apperrors.NewStorage("insert", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *PostgresStore) DailyTotals(ctx context.Context, client, since string) ([]DayTotal, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT to_char(call_date, 'YYYY-MM-DD'), COALESCE(SUM(minutes_used), 0), COUNT(*)
		FROM calls
		WHERE client_slug = $1 AND call_date >= $2::date
		GROUP BY call_date
		ORDER BY call_date`, client, since)
	if err != nil {
		return nil, apperrors.NewStorage("query", err)
	}
	defer rows.Close()

	var out []DayTotal
	for rows.Next() {
		var d DayTotal
		var calls int64
		if err := rows.Scan(&d.Date, &d.Minutes, &calls); err != nil {
			return nil, apperrors.NewStorage("scan", err)
		}
		d.Calls = int(calls)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorage("query", err)
	}
	return out, nil
}

// Close releases the pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}
