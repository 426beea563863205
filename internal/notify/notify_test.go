package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"talon/internal/domain"
)

func TestFormatTrade(t *testing.T) {
	stop := decimal.NewFromFloat(95)
	tp := decimal.NewFromFloat(110)

	cases := []struct {
		name   string
		notice domain.TradeNotice
		want   string
	}{
		{
			"bracket buy",
			domain.TradeNotice{
				Side: domain.SideBuy, Symbol: "AAPL", Qty: "2",
				Type: domain.OrderTypeMarket, OrderClass: domain.OrderClassBracket,
				StopLoss: &stop, TakeProfit: &tp,
			},
			"BUY 2 AAPL (market, bracket) stop=95.00 target=110.00",
		},
		{
			"plain sell",
			domain.TradeNotice{Side: domain.SideSell, Symbol: "MSFT", Qty: "5", Type: domain.OrderTypeMarket},
			"SELL 5 MSFT (market)",
		},
		{
			"close all",
			domain.TradeNotice{Side: domain.SideSell, Symbol: "TSLA", Qty: "ALL", Type: domain.OrderTypeMarket},
			"SELL ALL TSLA (market)",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := FormatTrade(c.notice); got != c.want {
				t.Errorf("FormatTrade = %q, want %q", got, c.want)
			}
		})
	}
}

func TestWebhookNotifierSendTrade(t *testing.T) {
	var body atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body.Store(string(b))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, 5*time.Second)
	err := n.SendTrade(context.Background(), domain.TradeNotice{
		Side: domain.SideBuy, Symbol: "AAPL", Qty: "2", Type: domain.OrderTypeMarket,
	})
	if err != nil {
		t.Fatalf("SendTrade failed: %v", err)
	}

	var payload map[string]string
	if err := json.Unmarshal([]byte(body.Load().(string)), &payload); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if payload["kind"] != "trade" {
		t.Errorf("kind = %q, want trade", payload["kind"])
	}
	if !strings.Contains(payload["text"], "AAPL") {
		t.Errorf("text = %q, want it to mention AAPL", payload["text"])
	}
}

func TestWebhookNotifierRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, 5*time.Second)
	err := n.SendError(context.Background(), "Rate Limit Hit", errors.New("429"))
	if err != nil {
		t.Fatalf("SendError should succeed on the third attempt: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("delivery attempts = %d, want 3", got)
	}
}
