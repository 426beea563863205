package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"talon/internal/broker"
	"talon/internal/domain"
)

var one = decimal.NewFromInt(1)

// BuyMarket buys qty of symbol at market with the given protective exit
// prices. The submission shape depends on the quantity:
//
//   - when floor(qty) is at least one share, that whole quantity becomes a
//     single bracket order (day TIF) whose take-profit and stop-loss legs
//     the venue manages atomically, and any fractional remainder is dropped;
//   - purely fractional quantities, which the venue rejects in bracket form,
//     become a plain market buy followed by two standalone GTC exit orders,
//     with a bounded wait for fill confirmation in between so the exits are
//     not rejected for insufficient held quantity.
//
// Exit prices are rounded to cents; fractional quantities to four decimal
// places, the venue's precision limit.
func (e *Engine) BuyMarket(ctx context.Context, symbol string, qty, stopLoss, takeProfit decimal.Decimal) (*domain.Order, error) {
	stop := stopLoss.Round(2)
	target := takeProfit.Round(2)

	if e.risk != nil {
		var notional decimal.Decimal
		if trade := e.GetLatestTrade(ctx, symbol); trade != nil {
			notional = qty.Mul(decimal.NewFromFloat(trade.Price))
		}
		if err := e.risk.CheckBuy(e.Account(), notional); err != nil {
			e.log.Warn("buy rejected by risk check", "symbol", symbol, "qty", qty, "err", err)
			return nil, err
		}
	}

	if whole := qty.Floor(); whole.GreaterThanOrEqual(one) {
		return e.buyBracket(ctx, symbol, whole, stop, target)
	}
	return e.buyFractional(ctx, symbol, qty.Round(4), stop, target)
}

func (e *Engine) buyBracket(ctx context.Context, symbol string, qty, stop, target decimal.Decimal) (*domain.Order, error) {
	order, err := e.gw.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:      symbol,
		Qty:         qty,
		Side:        domain.SideBuy,
		Type:        domain.OrderTypeMarket,
		TimeInForce: domain.TimeInForceDay,
		OrderClass:  domain.OrderClassBracket,
		TakeProfit:  &target,
		StopLoss:    &stop,
	})
	if err != nil {
		return nil, e.failMutation(ctx, "place bracket order", symbol, err)
	}

	e.debugf("bracket buy %s qty=%s stop=%s target=%s id=%s", symbol, qty, stop, target, order.ID)
	e.recordOrder(ctx, order)
	e.notifyTrade(ctx, domain.TradeNotice{
		Side:       domain.SideBuy,
		Symbol:     symbol,
		Qty:        qty.String(),
		Type:       domain.OrderTypeMarket,
		OrderClass: domain.OrderClassBracket,
		StopLoss:   &stop,
		TakeProfit: &target,
	})
	if err := e.RefreshOrders(ctx); err != nil {
		return order, err
	}
	return order, nil
}

func (e *Engine) buyFractional(ctx context.Context, symbol string, qty, stop, target decimal.Decimal) (*domain.Order, error) {
	order, err := e.gw.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:      symbol,
		Qty:         qty,
		Side:        domain.SideBuy,
		Type:        domain.OrderTypeMarket,
		TimeInForce: domain.TimeInForceDay,
	})
	if err != nil {
		return nil, e.failMutation(ctx, "place market buy", symbol, err)
	}

	e.debugf("fractional buy %s qty=%s id=%s", symbol, qty, order.ID)
	e.recordOrder(ctx, order)
	e.notifyTrade(ctx, domain.TradeNotice{
		Side:       domain.SideBuy,
		Symbol:     symbol,
		Qty:        qty.String(),
		Type:       domain.OrderTypeMarket,
		StopLoss:   &stop,
		TakeProfit: &target,
	})

	if !e.awaitFill(ctx, order.ID) {
		e.log.Warn("fill not confirmed before deadline, submitting exits anyway",
			"symbol", symbol, "orderID", order.ID)
	}

	// Exit orders are best-effort: the entry already succeeded and must be
	// reported as such even if an exit submission fails.
	exits := []broker.OrderRequest{
		{
			Symbol:      symbol,
			Qty:         qty,
			Side:        domain.SideSell,
			Type:        domain.OrderTypeStop,
			TimeInForce: domain.TimeInForceGTC,
			StopPrice:   &stop,
		},
		{
			Symbol:      symbol,
			Qty:         qty,
			Side:        domain.SideSell,
			Type:        domain.OrderTypeLimit,
			TimeInForce: domain.TimeInForceGTC,
			LimitPrice:  &target,
		},
	}
	for _, req := range exits {
		exit, err := e.gw.PlaceOrder(ctx, req)
		if err != nil {
			e.reportSideChannel("place exit order", symbol, err)
			continue
		}
		e.recordOrder(ctx, exit)
	}

	if err := e.RefreshOrders(ctx); err != nil {
		return order, err
	}
	return order, nil
}

// awaitFill polls the venue for the order until it reaches a terminal
// status or the fill-wait deadline passes. Returns true only on a
// confirmed fill.
func (e *Engine) awaitFill(ctx context.Context, orderID string) bool {
	deadline := time.Now().Add(e.fillWait)
	for {
		order, err := e.gw.GetOrder(ctx, orderID)
		if err != nil {
			e.debugf("fill check %s failed: %v", orderID, err)
		} else if order.Status.Terminal() {
			return order.Status == domain.OrderStatusFilled
		}

		if !time.Now().Before(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(e.fillPoll):
		}
	}
}

// SellMarket sells qty of symbol at market with GTC time-in-force. A zero
// qty means "the whole position": the current position quantity is looked
// up and its absolute value used, and if no position exists the call fails
// locally without any order submission.
func (e *Engine) SellMarket(ctx context.Context, symbol string, qty decimal.Decimal) (*domain.Order, error) {
	if qty.IsZero() {
		pos, err := e.GetPosition(ctx, symbol)
		if err != nil {
			return nil, err
		}
		qty = pos.Qty.Abs()
	}

	order, err := e.gw.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:      symbol,
		Qty:         qty,
		Side:        domain.SideSell,
		Type:        domain.OrderTypeMarket,
		TimeInForce: domain.TimeInForceGTC,
	})
	if err != nil {
		return nil, e.failMutation(ctx, "place sell order", symbol, err)
	}

	e.debugf("market sell %s qty=%s id=%s", symbol, qty, order.ID)
	e.recordOrder(ctx, order)
	e.notifyTrade(ctx, domain.TradeNotice{
		Side:   domain.SideSell,
		Symbol: symbol,
		Qty:    qty.String(),
		Type:   domain.OrderTypeMarket,
	})
	if err := e.RefreshOrders(ctx); err != nil {
		return order, err
	}
	return order, nil
}

// ClosePosition asks the venue to liquidate the entire position for symbol.
// The venue sizes the closing order and cancels related open orders itself.
func (e *Engine) ClosePosition(ctx context.Context, symbol string) (*domain.Order, error) {
	order, err := e.gw.ClosePosition(ctx, symbol)
	if err != nil {
		if re, ok := broker.AsRemote(err); ok {
			e.debugf("close position %s: status=%d message=%q body=%s",
				symbol, re.StatusCode, re.Message, re.Body)
		}
		return nil, e.failMutation(ctx, "close position", symbol, err)
	}

	e.debugf("close position %s id=%s", symbol, order.ID)
	e.recordOrder(ctx, order)
	e.notifyTrade(ctx, domain.TradeNotice{
		Side:   domain.SideSell,
		Symbol: symbol,
		Qty:    "ALL",
		Type:   domain.OrderTypeMarket,
	})
	if err := e.RefreshPositions(ctx); err != nil {
		return order, err
	}
	return order, nil
}

// CancelOrder cancels one open order, then refreshes the order map so the
// cancellation is reflected locally.
func (e *Engine) CancelOrder(ctx context.Context, id string) error {
	if err := e.gw.CancelOrder(ctx, id); err != nil {
		return e.failMutation(ctx, "cancel order", "", err)
	}
	e.debugf("cancel order %s", id)
	return e.RefreshOrders(ctx)
}

// CancelAllOrders cancels every open order and clears the local order map.
func (e *Engine) CancelAllOrders(ctx context.Context) error {
	if err := e.gw.CancelAllOrders(ctx); err != nil {
		return e.failMutation(ctx, "cancel all orders", "", err)
	}
	e.debugf("cancel all orders")

	e.mu.Lock()
	e.orders = make(map[string]domain.Order)
	e.mu.Unlock()
	return nil
}
