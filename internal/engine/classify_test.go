package engine

import (
	"context"
	"errors"
	"testing"

	"talon/internal/broker"
	"talon/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		symbol   string
		mutation bool
		err      error
		escalate bool
		label    string
	}{
		{
			name:     "rate limit on read",
			symbol:   "AAPL",
			err:      &broker.RemoteError{StatusCode: 429, Message: "too many requests"},
			escalate: true,
			label:    labelRateLimit,
		},
		{
			name:     "rate limit by message only",
			symbol:   "AAPL",
			err:      errors.New("rate limit exceeded"),
			escalate: true,
			label:    labelRateLimit,
		},
		{
			name:     "not found crypto pair",
			symbol:   "FAKE/USD",
			err:      &broker.RemoteError{StatusCode: 404, Message: "symbol not found"},
			escalate: true,
			label:    labelSymbolNotFound,
		},
		{
			name:   "not found equity read",
			symbol: "DELISTED",
			err:    &broker.RemoteError{StatusCode: 404, Message: "symbol not found"},
		},
		{
			name:     "not found on mutation",
			symbol:   "AAPL",
			mutation: true,
			err:      &broker.RemoteError{StatusCode: 404, Message: "position does not exist"},
			escalate: true,
		},
		{
			name:     "generic mutation failure",
			symbol:   "AAPL",
			mutation: true,
			err:      &broker.RemoteError{StatusCode: 403, Message: "insufficient buying power"},
			escalate: true,
		},
		{
			name:   "generic read failure",
			symbol: "AAPL",
			err:    errors.New("connection reset"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			escalate, label := classify(tt.symbol, tt.mutation, tt.err)
			if escalate != tt.escalate {
				t.Errorf("escalate = %v, want %v", escalate, tt.escalate)
			}
			if label != tt.label {
				t.Errorf("label = %q, want %q", label, tt.label)
			}
		})
	}
}

func TestRateLimitedBarFetchEscalates(t *testing.T) {
	gw := &fakeGateway{barsErr: &broker.RemoteError{Op: "GetBars", Symbol: "AAPL", StatusCode: 429, Message: "too many requests"}}
	e, notifier, _ := newTestEngine(t, gw)

	if got := e.GetBars(context.Background(), "AAPL", "1Min", 5); got != nil {
		t.Errorf("rate-limited fetch returned %v, want nil", got)
	}
	if len(notifier.labels) != 1 || notifier.labels[0] != labelRateLimit {
		t.Errorf("escalations = %v, want [%q]", notifier.labels, labelRateLimit)
	}
}

func TestNotFoundCryptoBarFetchEscalates(t *testing.T) {
	gw := &fakeGateway{barsErr: &broker.RemoteError{Op: "GetBars", Symbol: "FAKE/USD", StatusCode: 404, Message: "not found"}}
	e, notifier, _ := newTestEngine(t, gw)

	e.GetBars(context.Background(), "FAKE/USD", "1Min", 5)
	if len(notifier.labels) != 1 || notifier.labels[0] != labelSymbolNotFound {
		t.Errorf("escalations = %v, want [%q]", notifier.labels, labelSymbolNotFound)
	}
}

func TestNotFoundEquityBarFetchOnlyLogs(t *testing.T) {
	gw := &fakeGateway{barsErr: &broker.RemoteError{Op: "GetBars", Symbol: "DELISTED", StatusCode: 404, Message: "not found"}}
	e, notifier, _ := newTestEngine(t, gw)

	if got := e.GetBars(context.Background(), "DELISTED", "1Min", 5); got != nil {
		t.Errorf("404 fetch returned %v, want nil", got)
	}
	if len(notifier.labels) != 0 {
		t.Errorf("escalations = %v, want none for a not-found equity read", notifier.labels)
	}
}

func TestMutationFailureEscalatesWithOpLabel(t *testing.T) {
	gw := &fakeGateway{cancelAllErr: &broker.RemoteError{Op: "CancelAllOrders", StatusCode: 500, Message: "internal error"}}
	e, notifier, _ := newTestEngine(t, gw)

	if err := e.CancelAllOrders(context.Background()); err == nil {
		t.Fatal("CancelAllOrders should re-raise the failure")
	}
	if len(notifier.labels) != 1 || notifier.labels[0] != "cancel all orders" {
		t.Errorf("escalations = %v, want the operation name as label", notifier.labels)
	}
}

func TestRiskManagerCheckBuy(t *testing.T) {
	acct := &domain.Account{Equity: dec("9000"), LastEquity: dec("10000")}

	var nilRM *RiskManager
	if err := nilRM.CheckBuy(acct, dec("100000")); err != nil {
		t.Errorf("nil risk manager must allow everything: %v", err)
	}

	rm := &RiskManager{MaxPositionPct: 0.25, MaxDailyLossPct: 0.05}
	// Down 1000 on 10000 equity exceeds the 5% daily loss limit.
	if err := rm.CheckBuy(acct, dec("100")); err == nil {
		t.Error("daily loss limit should reject the buy")
	}

	flat := &domain.Account{Equity: dec("10000"), LastEquity: dec("10000")}
	if err := rm.CheckBuy(flat, dec("2000")); err != nil {
		t.Errorf("buy within limits rejected: %v", err)
	}
	if err := rm.CheckBuy(flat, dec("3000")); err == nil {
		t.Error("notional above 25% of equity should be rejected")
	}
	// Zero notional skips the size check.
	if err := rm.CheckBuy(flat, dec("0")); err != nil {
		t.Errorf("zero notional rejected: %v", err)
	}
}
