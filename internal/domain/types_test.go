package domain

import "testing"

func TestOrderStatusTerminal(t *testing.T) {
	terminal := []OrderStatus{OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%q.Terminal() = false, want true", s)
		}
	}

	working := []OrderStatus{OrderStatusNew, OrderStatusAccepted, OrderStatusPartiallyFilled}
	for _, s := range working {
		if s.Terminal() {
			t.Errorf("%q.Terminal() = true, want false", s)
		}
	}
}

func TestEnumWireValues(t *testing.T) {
	if SideBuy != "buy" || SideSell != "sell" {
		t.Errorf("Side wire values wrong: %q %q", SideBuy, SideSell)
	}
	if OrderTypeMarket != "market" || OrderTypeLimit != "limit" || OrderTypeStop != "stop" {
		t.Errorf("OrderType wire values wrong: %q %q %q", OrderTypeMarket, OrderTypeLimit, OrderTypeStop)
	}
	if TimeInForceDay != "day" || TimeInForceGTC != "gtc" {
		t.Errorf("TimeInForce wire values wrong: %q %q", TimeInForceDay, TimeInForceGTC)
	}
	if OrderClassSimple != "simple" || OrderClassBracket != "bracket" {
		t.Errorf("OrderClass wire values wrong: %q %q", OrderClassSimple, OrderClassBracket)
	}
}

func TestIsCryptoPair(t *testing.T) {
	cases := []struct {
		symbol string
		want   bool
	}{
		{"AAPL", false},
		{"MSFT", false},
		{"BTC/USD", true},
		{"ETH/USD", true},
		{"", false},
	}
	for _, c := range cases {
		if got := IsCryptoPair(c.symbol); got != c.want {
			t.Errorf("IsCryptoPair(%q) = %v, want %v", c.symbol, got, c.want)
		}
	}
}
