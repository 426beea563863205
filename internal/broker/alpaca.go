package broker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"talon/internal/domain"
	"talon/internal/util"
)

// Compile-time interface check.
var _ Gateway = (*AlpacaGateway)(nil)

// AlpacaGateway implements Gateway using the Alpaca trading and market-data
// REST APIs. The SDK clients carry their own retry/timeout behaviour; this
// adapter only paces outbound calls and normalizes failures into
// *RemoteError. The SDK does not accept contexts, so cancellation is checked
// before each call rather than mid-flight.
type AlpacaGateway struct {
	tc *alpaca.Client
	md *marketdata.Client
	rl *util.RateLimiter
}

// AlpacaOpts configures an AlpacaGateway.
type AlpacaOpts struct {
	APIKey    string
	APISecret string
	BaseURL   string // trading API; empty for the SDK default
	DataURL   string // market-data API; empty for the SDK default
	// RateLimitPerMin paces outbound calls; 0 disables pacing.
	RateLimitPerMin int
}

// NewAlpacaGateway creates an AlpacaGateway from the given credentials and
// endpoints. Crypto market-data requests use the "us" feed, which some
// brokerage crypto endpoints require.
func NewAlpacaGateway(opts AlpacaOpts) *AlpacaGateway {
	tradeOpts := alpaca.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
	}
	if opts.BaseURL != "" {
		tradeOpts.BaseURL = opts.BaseURL
	}

	dataOpts := marketdata.ClientOpts{
		APIKey:     opts.APIKey,
		APISecret:  opts.APISecret,
		CryptoFeed: "us",
	}
	if opts.DataURL != "" {
		dataOpts.BaseURL = opts.DataURL
	}

	g := &AlpacaGateway{
		tc: alpaca.NewClient(tradeOpts),
		md: marketdata.NewClient(dataOpts),
	}
	if opts.RateLimitPerMin > 0 {
		g.rl = util.NewRateLimiter(opts.RateLimitPerMin)
	}
	return g
}

// Name returns "alpaca".
func (g *AlpacaGateway) Name() string { return "alpaca" }

// ---------------------------------------------------------------------------
// Account / positions / orders
// ---------------------------------------------------------------------------

// GetAccount returns the current account state.
func (g *AlpacaGateway) GetAccount(ctx context.Context) (*domain.Account, error) {
	if err := g.pace(ctx); err != nil {
		return nil, err
	}
	acct, err := g.tc.GetAccount()
	if err != nil {
		return nil, g.wrap("GetAccount", "", err)
	}
	return &domain.Account{
		ID:          acct.ID,
		Status:      string(acct.Status),
		Currency:    acct.Currency,
		Cash:        acct.Cash,
		Equity:      acct.Equity,
		LastEquity:  acct.LastEquity,
		BuyingPower: acct.BuyingPower,
	}, nil
}

// GetPositions returns all open positions.
func (g *AlpacaGateway) GetPositions(ctx context.Context) ([]domain.Position, error) {
	if err := g.pace(ctx); err != nil {
		return nil, err
	}
	positions, err := g.tc.GetPositions()
	if err != nil {
		return nil, g.wrap("GetPositions", "", err)
	}
	out := make([]domain.Position, 0, len(positions))
	for i := range positions {
		out = append(out, toPosition(&positions[i]))
	}
	return out, nil
}

// GetOrders returns orders matching the status filter ("open", "closed",
// "all"), with bracket legs nested.
func (g *AlpacaGateway) GetOrders(ctx context.Context, status string) ([]domain.Order, error) {
	if err := g.pace(ctx); err != nil {
		return nil, err
	}
	orders, err := g.tc.GetOrders(alpaca.GetOrdersRequest{
		Status: status,
		Nested: true,
		Limit:  500,
	})
	if err != nil {
		return nil, g.wrap("GetOrders", "", err)
	}
	out := make([]domain.Order, 0, len(orders))
	for i := range orders {
		out = append(out, toOrder(&orders[i]))
	}
	return out, nil
}

// GetOrder returns a single order by ID.
func (g *AlpacaGateway) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	if err := g.pace(ctx); err != nil {
		return nil, err
	}
	order, err := g.tc.GetOrder(id)
	if err != nil {
		return nil, g.wrap("GetOrder", "", err)
	}
	o := toOrder(order)
	return &o, nil
}

// PlaceOrder submits an order.
func (g *AlpacaGateway) PlaceOrder(ctx context.Context, req OrderRequest) (*domain.Order, error) {
	if err := g.pace(ctx); err != nil {
		return nil, err
	}
	qty := req.Qty
	preq := alpaca.PlaceOrderRequest{
		Symbol:      req.Symbol,
		Qty:         &qty,
		Side:        alpaca.Side(req.Side),
		Type:        alpaca.OrderType(req.Type),
		TimeInForce: alpaca.TimeInForce(req.TimeInForce),
		LimitPrice:  req.LimitPrice,
		StopPrice:   req.StopPrice,
	}
	if req.OrderClass != "" {
		preq.OrderClass = alpaca.OrderClass(req.OrderClass)
	}
	if req.TakeProfit != nil {
		preq.TakeProfit = &alpaca.TakeProfit{LimitPrice: req.TakeProfit}
	}
	if req.StopLoss != nil {
		preq.StopLoss = &alpaca.StopLoss{StopPrice: req.StopLoss}
	}

	order, err := g.tc.PlaceOrder(preq)
	if err != nil {
		return nil, g.wrap("PlaceOrder", req.Symbol, err)
	}
	o := toOrder(order)
	return &o, nil
}

// ClosePosition liquidates the position for symbol via the venue's dedicated
// close operation.
func (g *AlpacaGateway) ClosePosition(ctx context.Context, symbol string) (*domain.Order, error) {
	if err := g.pace(ctx); err != nil {
		return nil, err
	}
	order, err := g.tc.ClosePosition(symbol, alpaca.ClosePositionRequest{})
	if err != nil {
		return nil, g.wrap("ClosePosition", symbol, err)
	}
	o := toOrder(order)
	return &o, nil
}

// CancelOrder cancels a single open order.
func (g *AlpacaGateway) CancelOrder(ctx context.Context, id string) error {
	if err := g.pace(ctx); err != nil {
		return err
	}
	if err := g.tc.CancelOrder(id); err != nil {
		return g.wrap("CancelOrder", "", err)
	}
	return nil
}

// CancelAllOrders cancels every open order.
func (g *AlpacaGateway) CancelAllOrders(ctx context.Context) error {
	if err := g.pace(ctx); err != nil {
		return err
	}
	if err := g.tc.CancelAllOrders(); err != nil {
		return g.wrap("CancelAllOrders", "", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// GetBars returns the most recent p.Limit bars for symbol. Requests always
// carry the limit, the timeframe, and adjustment=raw; crypto pairs route to
// the crypto endpoint.
func (g *AlpacaGateway) GetBars(ctx context.Context, symbol string, p BarParams) ([]domain.Bar, error) {
	if err := g.pace(ctx); err != nil {
		return nil, err
	}
	tf, err := parseTimeFrame(p.Timeframe)
	if err != nil {
		return nil, g.wrap("GetBars", symbol, err)
	}

	if domain.IsCryptoPair(symbol) {
		bars, err := g.md.GetCryptoBars(symbol, marketdata.GetCryptoBarsRequest{
			TimeFrame:  tf,
			TotalLimit: p.Limit,
		})
		if err != nil {
			return nil, g.wrap("GetBars", symbol, err)
		}
		return cryptoBars(symbol, bars), nil
	}

	bars, err := g.md.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame:  tf,
		Adjustment: marketdata.Raw,
		TotalLimit: p.Limit,
	})
	if err != nil {
		return nil, g.wrap("GetBars", symbol, err)
	}
	return stockBars(symbol, bars), nil
}

// GetHistoricalBars returns bars for symbol over the explicit [Start, End]
// range, uncached and bounded by p.Limit when set.
func (g *AlpacaGateway) GetHistoricalBars(ctx context.Context, symbol string, p RangeParams) ([]domain.Bar, error) {
	if err := g.pace(ctx); err != nil {
		return nil, err
	}
	tf, err := parseTimeFrame(p.Timeframe)
	if err != nil {
		return nil, g.wrap("GetHistoricalBars", symbol, err)
	}

	if domain.IsCryptoPair(symbol) {
		bars, err := g.md.GetCryptoBars(symbol, marketdata.GetCryptoBarsRequest{
			TimeFrame:  tf,
			Start:      p.Start,
			End:        p.End,
			TotalLimit: p.Limit,
		})
		if err != nil {
			return nil, g.wrap("GetHistoricalBars", symbol, err)
		}
		return cryptoBars(symbol, bars), nil
	}

	bars, err := g.md.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame:  tf,
		Adjustment: marketdata.Raw,
		Start:      p.Start,
		End:        p.End,
		TotalLimit: p.Limit,
	})
	if err != nil {
		return nil, g.wrap("GetHistoricalBars", symbol, err)
	}
	return stockBars(symbol, bars), nil
}

// GetLatestTrade returns the most recent trade for symbol.
func (g *AlpacaGateway) GetLatestTrade(ctx context.Context, symbol string) (*domain.Trade, error) {
	if err := g.pace(ctx); err != nil {
		return nil, err
	}

	if domain.IsCryptoPair(symbol) {
		trade, err := g.md.GetLatestCryptoTrade(symbol, marketdata.GetLatestCryptoTradeRequest{})
		if err != nil {
			return nil, g.wrap("GetLatestTrade", symbol, err)
		}
		return &domain.Trade{
			Symbol:    symbol,
			Timestamp: trade.Timestamp,
			Price:     trade.Price,
			Size:      trade.Size,
			ID:        strconv.FormatInt(trade.ID, 10),
		}, nil
	}

	trade, err := g.md.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return nil, g.wrap("GetLatestTrade", symbol, err)
	}
	return &domain.Trade{
		Symbol:    symbol,
		Timestamp: trade.Timestamp,
		Price:     trade.Price,
		Size:      float64(trade.Size),
		Exchange:  trade.Exchange,
		ID:        strconv.FormatInt(trade.ID, 10),
	}, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// pace applies the outbound rate limit and honours context cancellation.
func (g *AlpacaGateway) pace(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if g.rl == nil {
		return nil
	}
	return g.rl.Wait(ctx)
}

// wrap normalizes an SDK failure into a *RemoteError. Trading-API errors
// carry a structured status code; other failures keep only their message,
// which the fallback text classification handles.
func (g *AlpacaGateway) wrap(op, symbol string, err error) error {
	re := &RemoteError{
		Op:      op,
		Symbol:  symbol,
		Message: err.Error(),
		Err:     err,
	}
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		re.StatusCode = apiErr.StatusCode
		re.Message = apiErr.Message
	}
	return re
}

// parseTimeFrame parses strings like "1Min", "15Min", "1Hour", "1Day" into
// the SDK's timeframe type.
func parseTimeFrame(s string) (marketdata.TimeFrame, error) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i == len(s) {
		return marketdata.TimeFrame{}, fmt.Errorf("invalid timeframe %q", s)
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return marketdata.TimeFrame{}, fmt.Errorf("invalid timeframe %q", s)
	}

	var unit marketdata.TimeFrameUnit
	switch strings.ToLower(s[i:]) {
	case "min", "minute":
		unit = marketdata.Min
	case "hour":
		unit = marketdata.Hour
	case "day":
		unit = marketdata.Day
	case "week":
		unit = marketdata.Week
	case "month":
		unit = marketdata.Month
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("invalid timeframe unit %q", s[i:])
	}
	return marketdata.NewTimeFrame(n, unit), nil
}

func toPosition(p *alpaca.Position) domain.Position {
	return domain.Position{
		Symbol:        p.Symbol,
		Qty:           p.Qty,
		AvgEntryPrice: p.AvgEntryPrice,
		MarketValue:   deref(p.MarketValue),
		CostBasis:     p.CostBasis,
		UnrealizedPL:  deref(p.UnrealizedPL),
		CurrentPrice:  deref(p.CurrentPrice),
		Side:          string(p.Side),
	}
}

func toOrder(o *alpaca.Order) domain.Order {
	out := domain.Order{
		ID:             o.ID,
		ClientOrderID:  o.ClientOrderID,
		Symbol:         o.Symbol,
		Side:           domain.Side(o.Side),
		Type:           domain.OrderType(o.Type),
		TimeInForce:    domain.TimeInForce(o.TimeInForce),
		OrderClass:     domain.OrderClass(o.OrderClass),
		FilledQty:      o.FilledQty,
		FilledAvgPrice: deref(o.FilledAvgPrice),
		LimitPrice:     o.LimitPrice,
		StopPrice:      o.StopPrice,
		Status:         domain.OrderStatus(o.Status),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	if o.Qty != nil {
		out.Qty = *o.Qty
	}
	for i := range o.Legs {
		out.Legs = append(out.Legs, toOrder(&o.Legs[i]))
	}
	return out
}

func stockBars(symbol string, bars []marketdata.Bar) []domain.Bar {
	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		out = append(out, domain.Bar{
			Symbol:     strings.ToUpper(symbol),
			Timestamp:  b.Timestamp,
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     int64(b.Volume),
			TradeCount: int64(b.TradeCount),
			VWAP:       b.VWAP,
		})
	}
	return out
}

func cryptoBars(symbol string, bars []marketdata.CryptoBar) []domain.Bar {
	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		out = append(out, domain.Bar{
			Symbol:     strings.ToUpper(symbol),
			Timestamp:  b.Timestamp,
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     int64(b.Volume),
			TradeCount: int64(b.TradeCount),
			VWAP:       b.VWAP,
		})
	}
	return out
}

func deref(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Decimal{}
	}
	return *d
}
