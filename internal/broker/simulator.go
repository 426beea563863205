package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"talon/internal/domain"
)

// Compile-time interface check.
var _ Gateway = (*SimulatorGateway)(nil)

// SimulatorGateway implements Gateway for paper trading and tests. It tracks
// cash, positions, and orders in memory; market orders fill immediately at
// the last seeded price, while limit and stop orders rest open.
type SimulatorGateway struct {
	mu        sync.Mutex
	cash      decimal.Decimal
	lastCash  decimal.Decimal
	prices    map[string]decimal.Decimal
	positions map[string]*domain.Position
	orders    map[string]*domain.Order
	bars      map[string][]domain.Bar
	seq       int
}

// NewSimulatorGateway creates a SimulatorGateway seeded with the given cash
// balance.
func NewSimulatorGateway(startingCash float64) *SimulatorGateway {
	cash := decimal.NewFromFloat(startingCash)
	return &SimulatorGateway{
		cash:      cash,
		lastCash:  cash,
		prices:    make(map[string]decimal.Decimal),
		positions: make(map[string]*domain.Position),
		orders:    make(map[string]*domain.Order),
		bars:      make(map[string][]domain.Bar),
	}
}

// SetPrice seeds the simulated market price for symbol. Market orders for
// symbol fill at this price.
func (g *SimulatorGateway) SetPrice(symbol string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prices[symbol] = decimal.NewFromFloat(price)
}

// SetBars seeds the bar series returned for (symbol, timeframe).
func (g *SimulatorGateway) SetBars(symbol, timeframe string, bars []domain.Bar) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bars[symbol+"|"+timeframe] = bars
}

// Name returns "simulator".
func (g *SimulatorGateway) Name() string { return "simulator" }

// GetAccount returns the simulated account: equity is cash plus the value of
// all open positions at seeded prices.
func (g *SimulatorGateway) GetAccount(_ context.Context) (*domain.Account, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	equity := g.cash
	for _, p := range g.positions {
		equity = equity.Add(p.Qty.Mul(g.prices[p.Symbol]))
	}
	return &domain.Account{
		ID:          "simulator",
		Status:      "ACTIVE",
		Currency:    "USD",
		Cash:        g.cash,
		Equity:      equity,
		LastEquity:  g.lastCash,
		BuyingPower: g.cash.Mul(decimal.NewFromInt(2)),
	}, nil
}

// GetPositions returns all simulated positions.
func (g *SimulatorGateway) GetPositions(_ context.Context) ([]domain.Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]domain.Position, 0, len(g.positions))
	for _, p := range g.positions {
		cp := *p
		cp.CurrentPrice = g.prices[p.Symbol]
		cp.MarketValue = cp.Qty.Mul(cp.CurrentPrice)
		out = append(out, cp)
	}
	return out, nil
}

// GetOrders returns simulated orders matching the status filter.
func (g *SimulatorGateway) GetOrders(_ context.Context, status string) ([]domain.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []domain.Order
	for _, o := range g.orders {
		switch status {
		case "open":
			if o.Status.Terminal() {
				continue
			}
		case "closed":
			if !o.Status.Terminal() {
				continue
			}
		}
		out = append(out, *o)
	}
	return out, nil
}

// GetOrder returns a simulated order by ID.
func (g *SimulatorGateway) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	o, ok := g.orders[id]
	if !ok {
		return nil, &RemoteError{Op: "GetOrder", StatusCode: 404, Message: fmt.Sprintf("order %s not found", id)}
	}
	cp := *o
	return &cp, nil
}

// PlaceOrder records the order; market orders fill immediately at the seeded
// price and adjust cash and the position for the symbol.
func (g *SimulatorGateway) PlaceOrder(_ context.Context, req OrderRequest) (*domain.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++
	order := &domain.Order{
		ID:          fmt.Sprintf("sim-%d", g.seq),
		Symbol:      req.Symbol,
		Side:        req.Side,
		Type:        req.Type,
		TimeInForce: req.TimeInForce,
		OrderClass:  req.OrderClass,
		Qty:         req.Qty,
		LimitPrice:  req.LimitPrice,
		StopPrice:   req.StopPrice,
		Status:      domain.OrderStatusNew,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if req.Type == domain.OrderTypeMarket {
		price, ok := g.prices[req.Symbol]
		if !ok {
			return nil, &RemoteError{
				Op:         "PlaceOrder",
				Symbol:     req.Symbol,
				StatusCode: 422,
				Message:    fmt.Sprintf("no market price seeded for %s", req.Symbol),
			}
		}
		g.fill(order, price)
	}

	if req.OrderClass == domain.OrderClassBracket {
		order.Legs = g.bracketLegs(order, req)
	}

	g.orders[order.ID] = order
	cp := *order
	return &cp, nil
}

// ClosePosition liquidates the full position for symbol at the seeded price.
func (g *SimulatorGateway) ClosePosition(_ context.Context, symbol string) (*domain.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.positions[symbol]
	if !ok {
		return nil, &RemoteError{
			Op:         "ClosePosition",
			Symbol:     symbol,
			StatusCode: 404,
			Message:    "position does not exist",
			Body:       fmt.Sprintf(`{"code":40410000,"message":"position does not exist","symbol":%q}`, symbol),
		}
	}

	g.seq++
	side := domain.SideSell
	if p.Qty.IsNegative() {
		side = domain.SideBuy
	}
	order := &domain.Order{
		ID:          fmt.Sprintf("sim-%d", g.seq),
		Symbol:      symbol,
		Side:        side,
		Type:        domain.OrderTypeMarket,
		TimeInForce: domain.TimeInForceDay,
		Qty:         p.Qty.Abs(),
		Status:      domain.OrderStatusNew,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	g.fill(order, g.prices[symbol])
	g.orders[order.ID] = order
	cp := *order
	return &cp, nil
}

// CancelOrder cancels a single open simulated order.
func (g *SimulatorGateway) CancelOrder(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	o, ok := g.orders[id]
	if !ok {
		return &RemoteError{Op: "CancelOrder", StatusCode: 404, Message: fmt.Sprintf("order %s not found", id)}
	}
	if !o.Status.Terminal() {
		o.Status = domain.OrderStatusCanceled
		o.UpdatedAt = time.Now()
	}
	return nil
}

// CancelAllOrders cancels every open simulated order.
func (g *SimulatorGateway) CancelAllOrders(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, o := range g.orders {
		if !o.Status.Terminal() {
			o.Status = domain.OrderStatusCanceled
			o.UpdatedAt = time.Now()
		}
	}
	return nil
}

// GetBars returns the seeded bar series for (symbol, timeframe), truncated
// to the requested limit.
func (g *SimulatorGateway) GetBars(_ context.Context, symbol string, p BarParams) ([]domain.Bar, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	bars := g.bars[symbol+"|"+p.Timeframe]
	if p.Limit > 0 && len(bars) > p.Limit {
		bars = bars[len(bars)-p.Limit:]
	}
	out := make([]domain.Bar, len(bars))
	copy(out, bars)
	return out, nil
}

// GetHistoricalBars returns seeded bars filtered to [Start, End].
func (g *SimulatorGateway) GetHistoricalBars(_ context.Context, symbol string, p RangeParams) ([]domain.Bar, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []domain.Bar
	for _, b := range g.bars[symbol+"|"+p.Timeframe] {
		if b.Timestamp.Before(p.Start) || b.Timestamp.After(p.End) {
			continue
		}
		out = append(out, b)
		if p.Limit > 0 && len(out) >= p.Limit {
			break
		}
	}
	return out, nil
}

// GetLatestTrade synthesizes a trade at the seeded price.
func (g *SimulatorGateway) GetLatestTrade(_ context.Context, symbol string) (*domain.Trade, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	price, ok := g.prices[symbol]
	if !ok {
		return nil, &RemoteError{
			Op:         "GetLatestTrade",
			Symbol:     symbol,
			StatusCode: 404,
			Message:    fmt.Sprintf("no trade found for %s", symbol),
		}
	}
	return &domain.Trade{
		Symbol:    symbol,
		Timestamp: time.Now(),
		Price:     price.InexactFloat64(),
		Size:      1,
		Exchange:  "SIM",
		ID:        fmt.Sprintf("sim-trade-%d", g.seq),
	}, nil
}

// ---------------------------------------------------------------------------
// Internals (callers hold g.mu)
// ---------------------------------------------------------------------------

// fill marks the order filled at price and applies its effect to cash and
// the symbol's position.
func (g *SimulatorGateway) fill(order *domain.Order, price decimal.Decimal) {
	order.Status = domain.OrderStatusFilled
	order.FilledQty = order.Qty
	order.FilledAvgPrice = price

	signed := order.Qty
	if order.Side == domain.SideSell {
		signed = signed.Neg()
	}

	notional := order.Qty.Mul(price)
	if order.Side == domain.SideBuy {
		g.cash = g.cash.Sub(notional)
	} else {
		g.cash = g.cash.Add(notional)
	}

	p, ok := g.positions[order.Symbol]
	if !ok {
		p = &domain.Position{Symbol: order.Symbol, AvgEntryPrice: price}
		g.positions[order.Symbol] = p
	}
	p.Qty = p.Qty.Add(signed)
	p.CostBasis = p.Qty.Mul(p.AvgEntryPrice)
	if p.Qty.IsZero() {
		delete(g.positions, order.Symbol)
		return
	}
	p.Side = "long"
	if p.Qty.IsNegative() {
		p.Side = "short"
	}
}

// bracketLegs creates the resting stop-loss and take-profit legs of a
// bracket order.
func (g *SimulatorGateway) bracketLegs(parent *domain.Order, req OrderRequest) []domain.Order {
	var legs []domain.Order
	if req.StopLoss != nil {
		g.seq++
		leg := domain.Order{
			ID:          fmt.Sprintf("sim-%d", g.seq),
			Symbol:      req.Symbol,
			Side:        domain.SideSell,
			Type:        domain.OrderTypeStop,
			TimeInForce: req.TimeInForce,
			OrderClass:  domain.OrderClassBracket,
			Qty:         req.Qty,
			StopPrice:   req.StopLoss,
			Status:      domain.OrderStatusNew,
			CreatedAt:   parent.CreatedAt,
			UpdatedAt:   parent.UpdatedAt,
		}
		g.orders[leg.ID] = &leg
		legs = append(legs, leg)
	}
	if req.TakeProfit != nil {
		g.seq++
		leg := domain.Order{
			ID:          fmt.Sprintf("sim-%d", g.seq),
			Symbol:      req.Symbol,
			Side:        domain.SideSell,
			Type:        domain.OrderTypeLimit,
			TimeInForce: req.TimeInForce,
			OrderClass:  domain.OrderClassBracket,
			Qty:         req.Qty,
			LimitPrice:  req.TakeProfit,
			Status:      domain.OrderStatusNew,
			CreatedAt:   parent.CreatedAt,
			UpdatedAt:   parent.UpdatedAt,
		}
		g.orders[leg.ID] = &leg
		legs = append(legs, leg)
	}
	return legs
}
