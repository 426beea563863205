package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"talon/internal/domain"
)

func openTestJournal(t *testing.T) *SQLite {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndListRecent(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	stop := decimal.NewFromFloat(95)
	base := time.Date(2026, 8, 3, 14, 30, 0, 0, time.UTC)

	orders := []domain.Order{
		{
			ID: "o-1", Symbol: "AAPL", Side: domain.SideBuy, Type: domain.OrderTypeMarket,
			TimeInForce: domain.TimeInForceDay, OrderClass: domain.OrderClassBracket,
			Qty: decimal.NewFromInt(2), StopPrice: &stop,
			Status: domain.OrderStatusAccepted, CreatedAt: base,
		},
		{
			ID: "o-2", Symbol: "BTC/USD", Side: domain.SideSell, Type: domain.OrderTypeMarket,
			TimeInForce: domain.TimeInForceGTC,
			Qty:         decimal.RequireFromString("0.3500"),
			Status:      domain.OrderStatusFilled, CreatedAt: base.Add(time.Minute),
		},
	}
	for i := range orders {
		if err := j.RecordOrder(ctx, &orders[i]); err != nil {
			t.Fatalf("RecordOrder(%s) failed: %v", orders[i].ID, err)
		}
	}

	got, err := j.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListRecent returned %d orders, want 2", len(got))
	}
	// Newest first.
	if got[0].ID != "o-2" || got[1].ID != "o-1" {
		t.Errorf("order of results = %s, %s; want o-2, o-1", got[0].ID, got[1].ID)
	}
	if !got[1].Qty.Equal(decimal.NewFromInt(2)) {
		t.Errorf("o-1 qty = %s, want 2", got[1].Qty)
	}
	if got[1].StopPrice == nil || !got[1].StopPrice.Equal(stop) {
		t.Errorf("o-1 stop price = %v, want 95", got[1].StopPrice)
	}
	if got[0].LimitPrice != nil {
		t.Errorf("o-2 limit price = %v, want nil", got[0].LimitPrice)
	}
	if got[0].TimeInForce != domain.TimeInForceGTC {
		t.Errorf("o-2 tif = %q, want gtc", got[0].TimeInForce)
	}
}

func TestRecordOrderReplacesByID(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	order := domain.Order{
		ID: "o-1", Symbol: "AAPL", Side: domain.SideBuy, Type: domain.OrderTypeMarket,
		Qty: decimal.NewFromInt(1), Status: domain.OrderStatusNew,
		CreatedAt: time.Date(2026, 8, 3, 14, 30, 0, 0, time.UTC),
	}
	if err := j.RecordOrder(ctx, &order); err != nil {
		t.Fatalf("RecordOrder failed: %v", err)
	}

	order.Status = domain.OrderStatusFilled
	if err := j.RecordOrder(ctx, &order); err != nil {
		t.Fatalf("re-RecordOrder failed: %v", err)
	}

	got, err := j.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ListRecent returned %d orders, want 1", len(got))
	}
	if got[0].Status != domain.OrderStatusFilled {
		t.Errorf("status = %q, want filled", got[0].Status)
	}
}

func TestListRecentLimit(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	base := time.Date(2026, 8, 3, 14, 30, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		o := domain.Order{
			ID: string(rune('a' + i)), Symbol: "AAPL", Side: domain.SideBuy,
			Type: domain.OrderTypeMarket, Qty: decimal.NewFromInt(1),
			Status: domain.OrderStatusNew, CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := j.RecordOrder(ctx, &o); err != nil {
			t.Fatalf("RecordOrder failed: %v", err)
		}
	}

	got, err := j.ListRecent(ctx, 3)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("ListRecent returned %d orders, want 3", len(got))
	}
}
