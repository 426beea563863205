// Package domain defines the core types shared across the trading client:
// account, position, and order snapshots, OHLCV bars, trades, and the
// enumerations used on the order wire.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Enumerations
// ---------------------------------------------------------------------------

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType is the execution type of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	OrderTypeStop   OrderType = "stop"
)

// TimeInForce controls how long an order stays working.
type TimeInForce string

const (
	// TimeInForceDay expires the order at the end of the current session.
	TimeInForceDay TimeInForce = "day"
	// TimeInForceGTC keeps the order open until filled or cancelled.
	TimeInForceGTC TimeInForce = "gtc"
)

// OrderClass distinguishes simple orders from bracket orders with attached
// stop-loss/take-profit legs.
type OrderClass string

const (
	OrderClassSimple  OrderClass = "simple"
	OrderClassBracket OrderClass = "bracket"
)

// OrderStatus is the venue-reported lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusAccepted        OrderStatus = "accepted"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCanceled        OrderStatus = "canceled"
	OrderStatusRejected        OrderStatus = "rejected"
)

// Terminal reports whether the status is a final state the venue will not
// move the order out of.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Account / Position / Order
// ---------------------------------------------------------------------------

// Account is a point-in-time snapshot of the brokerage account. The remote
// API serializes the monetary fields as strings; the gateway adapter parses
// them into decimals before they reach this type.
type Account struct {
	ID          string
	Status      string
	Currency    string
	Cash        decimal.Decimal
	Equity      decimal.Decimal
	LastEquity  decimal.Decimal
	BuyingPower decimal.Decimal
}

// Position is an open position, keyed by symbol (unique per account).
type Position struct {
	Symbol        string
	Qty           decimal.Decimal // signed; fractional allowed
	AvgEntryPrice decimal.Decimal
	MarketValue   decimal.Decimal
	CostBasis     decimal.Decimal
	UnrealizedPL  decimal.Decimal
	CurrentPrice  decimal.Decimal
	Side          string
}

// Order is a venue order, keyed by its remotely assigned ID. Legs carry the
// stop-loss/take-profit children of a bracket order.
type Order struct {
	ID             string
	ClientOrderID  string
	Symbol         string
	Side           Side
	Type           OrderType
	TimeInForce    TimeInForce
	OrderClass     OrderClass
	Qty            decimal.Decimal
	FilledQty      decimal.Decimal
	FilledAvgPrice decimal.Decimal
	LimitPrice     *decimal.Decimal
	StopPrice      *decimal.Decimal
	Status         OrderStatus
	Legs           []Order
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Bar is a single OHLCV record for a symbol at some timeframe. Bars are
// immutable once returned by the venue.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// Trade is a single market trade (tick).
type Trade struct {
	Symbol    string
	Timestamp time.Time
	Price     float64
	Size      float64
	Exchange  string
	ID        string
}

// ---------------------------------------------------------------------------
// Notifications
// ---------------------------------------------------------------------------

// TradeNotice describes an executed trading action for operator notification.
// Qty is a display string so "ALL" can be reported for venue-sized closes.
type TradeNotice struct {
	Side       Side
	Symbol     string
	Qty        string
	Type       OrderType
	OrderClass OrderClass
	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal
}

// ---------------------------------------------------------------------------
// Symbol helpers
// ---------------------------------------------------------------------------

// IsCryptoPair reports whether symbol denotes a crypto trading pair, which
// the venue writes with a slash separator (e.g. "BTC/USD"). Crypto pairs
// route to the crypto market-data endpoints and carry a feed selector.
func IsCryptoPair(symbol string) bool {
	return strings.Contains(symbol, "/")
}
