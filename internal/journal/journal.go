// Package journal keeps an append-only SQLite record of every order this
// client submitted. The journal is an audit trail, not a cache: no trading
// decision reads from it, and cached account state is still rebuilt from the
// remote API at startup.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"talon/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Recorder is the order-recording seam the engine depends on.
type Recorder interface {
	// RecordOrder persists one submitted order.
	RecordOrder(ctx context.Context, order *domain.Order) error
}

// Compile-time interface check.
var _ Recorder = (*SQLite)(nil)

// SQLite implements Recorder backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// Open opens (or creates) the journal database at dbPath and ensures the
// schema exists.
func Open(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id            TEXT PRIMARY KEY,
	symbol        TEXT NOT NULL,
	side          TEXT NOT NULL,
	type          TEXT NOT NULL,
	order_class   TEXT NOT NULL DEFAULT '',
	time_in_force TEXT NOT NULL DEFAULT '',
	qty           TEXT NOT NULL,
	limit_price   TEXT,
	stop_price    TEXT,
	status        TEXT NOT NULL,
	submitted_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol);
`

// Close closes the underlying database connection.
func (j *SQLite) Close() error {
	return j.db.Close()
}

// RecordOrder inserts the order, replacing any earlier record with the same
// venue ID (re-records after status changes are fine).
func (j *SQLite) RecordOrder(ctx context.Context, order *domain.Order) error {
	submittedAt := order.CreatedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO orders
			(id, symbol, side, type, order_class, time_in_force, qty, limit_price, stop_price, status, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.Symbol,
		string(order.Side),
		string(order.Type),
		string(order.OrderClass),
		string(order.TimeInForce),
		order.Qty.String(),
		decimalText(order.LimitPrice),
		decimalText(order.StopPrice),
		string(order.Status),
		submittedAt.UTC(),
	)
	return err
}

// ListRecent returns the most recently submitted orders, newest first.
func (j *SQLite) ListRecent(ctx context.Context, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, symbol, side, type, order_class, time_in_force, qty, limit_price, stop_price, status, submitted_at
		FROM orders
		ORDER BY submitted_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		var (
			o           domain.Order
			side, typ   string
			class, tif  string
			status, qty string
			limitPrice  sql.NullString
			stopPrice   sql.NullString
			submittedAt time.Time
		)
		if err := rows.Scan(&o.ID, &o.Symbol, &side, &typ, &class, &tif, &qty, &limitPrice, &stopPrice, &status, &submittedAt); err != nil {
			return nil, err
		}
		o.Side = domain.Side(side)
		o.Type = domain.OrderType(typ)
		o.OrderClass = domain.OrderClass(class)
		o.TimeInForce = domain.TimeInForce(tif)
		o.Status = domain.OrderStatus(status)
		o.CreatedAt = submittedAt
		if o.Qty, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("corrupt qty %q for order %s: %w", qty, o.ID, err)
		}
		if o.LimitPrice, err = decimalFromText(limitPrice); err != nil {
			return nil, fmt.Errorf("corrupt limit price for order %s: %w", o.ID, err)
		}
		if o.StopPrice, err = decimalFromText(stopPrice); err != nil {
			return nil, fmt.Errorf("corrupt stop price for order %s: %w", o.ID, err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func decimalText(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func decimalFromText(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
