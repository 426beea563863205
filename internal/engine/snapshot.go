package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"talon/internal/domain"
)

// ErrNoPosition is returned by position-dependent operations when the local
// snapshot holds no entry for the requested symbol.
var ErrNoPosition = errors.New("no position found")

// RefreshAccount replaces the cached account state with a fresh remote
// fetch. On failure the stale copy is kept and the error is classified,
// escalated, and returned.
func (e *Engine) RefreshAccount(ctx context.Context) error {
	acct, err := e.gw.GetAccount(ctx)
	if err != nil {
		return e.failMutation(ctx, "refresh account", "", err)
	}

	e.mu.Lock()
	e.account = acct
	e.mu.Unlock()
	return nil
}

// RefreshPositions rebuilds the position map from a fresh remote listing.
// The map is replaced wholesale so closed positions disappear rather than
// lingering as stale entries.
func (e *Engine) RefreshPositions(ctx context.Context) error {
	positions, err := e.gw.GetPositions(ctx)
	if err != nil {
		return e.failMutation(ctx, "refresh positions", "", err)
	}

	fresh := make(map[string]domain.Position, len(positions))
	for _, p := range positions {
		fresh[p.Symbol] = p
	}

	e.mu.Lock()
	e.positions = fresh
	e.mu.Unlock()
	return nil
}

// RefreshOrders rebuilds the order map from the venue's open orders, keyed
// by venue order ID. Like RefreshPositions, the map is replaced wholesale.
func (e *Engine) RefreshOrders(ctx context.Context) error {
	orders, err := e.gw.GetOrders(ctx, "open")
	if err != nil {
		return e.failMutation(ctx, "refresh orders", "", err)
	}

	fresh := make(map[string]domain.Order, len(orders))
	for _, o := range orders {
		fresh[o.ID] = o
	}

	e.mu.Lock()
	e.orders = fresh
	e.mu.Unlock()
	return nil
}

// GetPosition refreshes the position map and returns the entry for symbol,
// or ErrNoPosition when the account holds none.
func (e *Engine) GetPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	if err := e.RefreshPositions(ctx); err != nil {
		return nil, err
	}

	e.mu.RLock()
	pos, ok := e.positions[symbol]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoPosition, symbol)
	}
	return &pos, nil
}

// Positions returns a copy of the cached position map. No remote call.
func (e *Engine) Positions() map[string]domain.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]domain.Position, len(e.positions))
	for k, v := range e.positions {
		out[k] = v
	}
	return out
}

// OpenOrders returns a copy of the cached open-order map. No remote call.
func (e *Engine) OpenOrders() map[string]domain.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]domain.Order, len(e.orders))
	for k, v := range e.orders {
		out[k] = v
	}
	return out
}

// Account returns the cached account state, or nil before the first
// successful refresh. No remote call.
func (e *Engine) Account() *domain.Account {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.account == nil {
		return nil
	}
	acct := *e.account
	return &acct
}

// PortfolioValue returns the cached account equity, zero before the first
// successful refresh.
func (e *Engine) PortfolioValue() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.account == nil {
		return decimal.Zero
	}
	return e.account.Equity
}

// BuyingPower returns the cached buying power, zero before the first
// successful refresh.
func (e *Engine) BuyingPower() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.account == nil {
		return decimal.Zero
	}
	return e.account.BuyingPower
}

// DayPL returns equity minus the previous close's equity.
func (e *Engine) DayPL() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.account == nil {
		return decimal.Zero
	}
	return e.account.Equity.Sub(e.account.LastEquity)
}

// DayPLPercent returns the day's profit and loss as a percentage of the
// previous close's equity. Zero when no account is cached or the previous
// equity is zero (a fresh account has no meaningful day change).
func (e *Engine) DayPLPercent() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.account == nil || e.account.LastEquity.IsZero() {
		return decimal.Zero
	}
	return e.account.Equity.Sub(e.account.LastEquity).
		Div(e.account.LastEquity).
		Mul(decimal.NewFromInt(100))
}
