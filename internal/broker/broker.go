// Package broker defines the Gateway seam through which every remote
// account, position, order, and market-data operation is issued, and
// provides the Alpaca and in-memory simulator implementations.
package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"talon/internal/domain"
)

// Gateway abstracts the remote brokerage API. It is the single seam between
// the trading engine and the outside world; every failure it surfaces is a
// *RemoteError carrying at least a message and, where available, the HTTP
// status code and response body.
type Gateway interface {
	// Name returns the gateway identifier (e.g. "alpaca", "simulator").
	Name() string

	// GetAccount returns the account's current financial state.
	GetAccount(ctx context.Context) (*domain.Account, error)

	// GetPositions returns all currently open positions.
	GetPositions(ctx context.Context) ([]domain.Position, error)

	// GetOrders returns orders matching the given status filter
	// ("open", "closed", or "all").
	GetOrders(ctx context.Context, status string) ([]domain.Order, error)

	// GetOrder returns a single order by its venue-assigned ID.
	GetOrder(ctx context.Context, id string) (*domain.Order, error)

	// PlaceOrder submits a new order for execution.
	PlaceOrder(ctx context.Context, req OrderRequest) (*domain.Order, error)

	// ClosePosition liquidates the position for symbol; the venue handles
	// sizing and related order cancellation atomically.
	ClosePosition(ctx context.Context, symbol string) (*domain.Order, error)

	// CancelOrder requests cancellation of an open order by its ID.
	CancelOrder(ctx context.Context, id string) error

	// CancelAllOrders cancels every open order on the account.
	CancelAllOrders(ctx context.Context) error

	// GetBars returns the most recent bars for symbol.
	GetBars(ctx context.Context, symbol string, p BarParams) ([]domain.Bar, error)

	// GetHistoricalBars returns bars for symbol over an explicit date range.
	GetHistoricalBars(ctx context.Context, symbol string, p RangeParams) ([]domain.Bar, error)

	// GetLatestTrade returns the most recent trade for symbol.
	GetLatestTrade(ctx context.Context, symbol string) (*domain.Trade, error)
}

// OrderRequest describes one order submission. For bracket orders, TakeProfit
// and StopLoss carry the leg prices; for standalone stop/limit orders,
// StopPrice/LimitPrice apply to the order itself.
type OrderRequest struct {
	Symbol      string
	Qty         decimal.Decimal
	Side        domain.Side
	Type        domain.OrderType
	TimeInForce domain.TimeInForce
	OrderClass  domain.OrderClass
	LimitPrice  *decimal.Decimal
	StopPrice   *decimal.Decimal
	TakeProfit  *decimal.Decimal // bracket leg: limit price
	StopLoss    *decimal.Decimal // bracket leg: stop price
}

// BarParams selects the most recent bars for a symbol.
type BarParams struct {
	Timeframe string // e.g. "1Min", "15Min", "1Hour", "1Day"
	Limit     int
}

// RangeParams selects bars over an explicit, bounded date range.
type RangeParams struct {
	Timeframe string
	Start     time.Time
	End       time.Time
	Limit     int
}
