package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"talon/internal/domain"
)

// RiskManager applies pre-trade checks to buy intents. Both limits are
// fractions of account equity; a zero limit disables that check.
type RiskManager struct {
	// MaxPositionPct caps a single order's notional as a fraction of
	// equity, e.g. 0.25 allows at most a quarter of equity per order.
	MaxPositionPct float64

	// MaxDailyLossPct halts new buys once the day's loss exceeds this
	// fraction of the previous close's equity.
	MaxDailyLossPct float64
}

// CheckBuy validates a buy against the account state. A zero notional
// skips the position-size check (no reference price was available).
func (r *RiskManager) CheckBuy(account *domain.Account, notional decimal.Decimal) error {
	if r == nil || account == nil {
		return nil
	}

	if r.MaxDailyLossPct > 0 && account.LastEquity.IsPositive() {
		dayPL := account.Equity.Sub(account.LastEquity)
		maxLoss := account.LastEquity.Mul(decimal.NewFromFloat(r.MaxDailyLossPct))
		if dayPL.IsNegative() && dayPL.Neg().GreaterThanOrEqual(maxLoss) {
			return fmt.Errorf("daily loss %s exceeds limit %s", dayPL.Neg(), maxLoss)
		}
	}

	if r.MaxPositionPct > 0 && notional.IsPositive() && account.Equity.IsPositive() {
		maxNotional := account.Equity.Mul(decimal.NewFromFloat(r.MaxPositionPct))
		if notional.GreaterThan(maxNotional) {
			return fmt.Errorf("order notional %s exceeds limit %s", notional, maxNotional)
		}
	}
	return nil
}
