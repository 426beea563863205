package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"talon/internal/broker"
	"talon/internal/domain"
)

// ----------------------------------------------------------------------------
// Fakes
// ----------------------------------------------------------------------------

type fakeGateway struct {
	mu sync.Mutex

	account      *domain.Account
	accountErr   error
	positions    []domain.Position
	positionsErr error
	orders       []domain.Order
	ordersErr    error
	bars         []domain.Bar
	barsErr      error
	trade        *domain.Trade
	tradeErr     error

	placeFn    func(broker.OrderRequest) (*domain.Order, error)
	getOrderFn func(string) (*domain.Order, error)
	closeFn    func(string) (*domain.Order, error)

	cancelErr    error
	cancelAllErr error

	placed         []broker.OrderRequest
	canceled       []string
	accountCalls   int
	positionsCalls int
	ordersCalls    int
	barCalls       int
	getOrderCalls  int
	cancelAllCalls int
	seq            int
}

var _ broker.Gateway = (*fakeGateway)(nil)

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) GetAccount(context.Context) (*domain.Account, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.accountCalls++
	if g.accountErr != nil {
		return nil, g.accountErr
	}
	if g.account == nil {
		return &domain.Account{ID: "acct"}, nil
	}
	acct := *g.account
	return &acct, nil
}

func (g *fakeGateway) GetPositions(context.Context) ([]domain.Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.positionsCalls++
	return g.positions, g.positionsErr
}

func (g *fakeGateway) GetOrders(context.Context, string) ([]domain.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ordersCalls++
	return g.orders, g.ordersErr
}

func (g *fakeGateway) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	g.mu.Lock()
	fn := g.getOrderFn
	g.getOrderCalls++
	g.mu.Unlock()
	if fn != nil {
		return fn(id)
	}
	return &domain.Order{ID: id, Status: domain.OrderStatusFilled}, nil
}

func (g *fakeGateway) PlaceOrder(_ context.Context, req broker.OrderRequest) (*domain.Order, error) {
	g.mu.Lock()
	g.placed = append(g.placed, req)
	g.seq++
	seq := g.seq
	fn := g.placeFn
	g.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return &domain.Order{
		ID:     fmt.Sprintf("ord-%d", seq),
		Symbol: req.Symbol,
		Side:   req.Side,
		Qty:    req.Qty,
		Status: domain.OrderStatusAccepted,
	}, nil
}

func (g *fakeGateway) ClosePosition(_ context.Context, symbol string) (*domain.Order, error) {
	if g.closeFn != nil {
		return g.closeFn(symbol)
	}
	return &domain.Order{ID: "close-1", Symbol: symbol, Side: domain.SideSell, Status: domain.OrderStatusAccepted}, nil
}

func (g *fakeGateway) CancelOrder(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.canceled = append(g.canceled, id)
	return nil
}

func (g *fakeGateway) CancelAllOrders(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelAllCalls++
	return g.cancelAllErr
}

func (g *fakeGateway) GetBars(context.Context, string, broker.BarParams) ([]domain.Bar, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.barCalls++
	return g.bars, g.barsErr
}

func (g *fakeGateway) GetHistoricalBars(context.Context, string, broker.RangeParams) ([]domain.Bar, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.barCalls++
	return g.bars, g.barsErr
}

func (g *fakeGateway) GetLatestTrade(context.Context, string) (*domain.Trade, error) {
	return g.trade, g.tradeErr
}

type fakeNotifier struct {
	mu     sync.Mutex
	labels []string
	trades []domain.TradeNotice
}

func (n *fakeNotifier) SendError(_ context.Context, label string, _ error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.labels = append(n.labels, label)
	return nil
}

func (n *fakeNotifier) SendTrade(_ context.Context, notice domain.TradeNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.trades = append(n.trades, notice)
	return nil
}

// fakeClock lets tests move through the bar cache TTL without waiting.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 8, 3, 14, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestEngine(t *testing.T, gw *fakeGateway, extra ...func(*Options)) (*Engine, *fakeNotifier, *fakeClock) {
	t.Helper()
	notifier := &fakeNotifier{}
	clock := newFakeClock()
	opts := Options{
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:            clock.Now,
		FillWait:         -1, // no fill wait in tests unless overridden
		FillPollInterval: time.Millisecond,
	}
	for _, fn := range extra {
		fn(&opts)
	}
	return New(gw, notifier, opts), notifier, clock
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// ----------------------------------------------------------------------------
// Snapshot
// ----------------------------------------------------------------------------

func TestInitializePopulatesSnapshot(t *testing.T) {
	gw := &fakeGateway{
		account: &domain.Account{ID: "acct", Equity: dec("10500"), LastEquity: dec("10000"), BuyingPower: dec("21000")},
		positions: []domain.Position{
			{Symbol: "AAPL", Qty: dec("2")},
			{Symbol: "BTC/USD", Qty: dec("0.5")},
		},
		orders: []domain.Order{{ID: "o-1", Symbol: "AAPL"}},
	}
	e, _, _ := newTestEngine(t, gw)

	if err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if got := e.PortfolioValue(); !got.Equal(dec("10500")) {
		t.Errorf("PortfolioValue = %s, want 10500", got)
	}
	if got := e.BuyingPower(); !got.Equal(dec("21000")) {
		t.Errorf("BuyingPower = %s, want 21000", got)
	}
	if got := len(e.Positions()); got != 2 {
		t.Errorf("cached positions = %d, want 2", got)
	}
	if got := len(e.OpenOrders()); got != 1 {
		t.Errorf("cached orders = %d, want 1", got)
	}
}

func TestInitializeFailsOnAccountError(t *testing.T) {
	gw := &fakeGateway{accountErr: errors.New("boom")}
	e, notifier, _ := newTestEngine(t, gw)

	if err := e.Initialize(context.Background()); err == nil {
		t.Fatal("Initialize should fail when the account fetch fails")
	}
	if gw.positionsCalls != 0 {
		t.Errorf("positions fetched despite account failure")
	}
	if len(notifier.labels) != 1 {
		t.Errorf("escalations = %d, want 1", len(notifier.labels))
	}
}

func TestRefreshPositionsReplacesStaleEntries(t *testing.T) {
	gw := &fakeGateway{positions: []domain.Position{
		{Symbol: "AAPL", Qty: dec("2")},
		{Symbol: "TSLA", Qty: dec("1")},
	}}
	e, _, _ := newTestEngine(t, gw)
	ctx := context.Background()

	if err := e.RefreshPositions(ctx); err != nil {
		t.Fatalf("RefreshPositions failed: %v", err)
	}

	// TSLA closed remotely; the refresh must not leave it behind.
	gw.mu.Lock()
	gw.positions = []domain.Position{{Symbol: "AAPL", Qty: dec("2")}}
	gw.mu.Unlock()
	if err := e.RefreshPositions(ctx); err != nil {
		t.Fatalf("second RefreshPositions failed: %v", err)
	}

	positions := e.Positions()
	if len(positions) != 1 {
		t.Fatalf("cached positions = %d, want 1", len(positions))
	}
	if _, ok := positions["TSLA"]; ok {
		t.Error("stale TSLA position survived refresh")
	}
}

func TestRefreshKeepsStaleStateOnFailure(t *testing.T) {
	gw := &fakeGateway{positions: []domain.Position{{Symbol: "AAPL", Qty: dec("2")}}}
	e, _, _ := newTestEngine(t, gw)
	ctx := context.Background()

	if err := e.RefreshPositions(ctx); err != nil {
		t.Fatalf("RefreshPositions failed: %v", err)
	}
	gw.mu.Lock()
	gw.positionsErr = errors.New("remote down")
	gw.mu.Unlock()
	if err := e.RefreshPositions(ctx); err == nil {
		t.Fatal("RefreshPositions should propagate the remote failure")
	}
	if len(e.Positions()) != 1 {
		t.Error("failed refresh wiped the previous snapshot")
	}
}

func TestGetPosition(t *testing.T) {
	gw := &fakeGateway{positions: []domain.Position{{Symbol: "AAPL", Qty: dec("2")}}}
	e, _, _ := newTestEngine(t, gw)
	ctx := context.Background()

	pos, err := e.GetPosition(ctx, "AAPL")
	if err != nil {
		t.Fatalf("GetPosition failed: %v", err)
	}
	if !pos.Qty.Equal(dec("2")) {
		t.Errorf("qty = %s, want 2", pos.Qty)
	}

	if _, err := e.GetPosition(ctx, "MSFT"); !errors.Is(err, ErrNoPosition) {
		t.Errorf("missing symbol error = %v, want ErrNoPosition", err)
	}
}

func TestDayPL(t *testing.T) {
	gw := &fakeGateway{account: &domain.Account{Equity: dec("10500"), LastEquity: dec("10000")}}
	e, _, _ := newTestEngine(t, gw)

	// Before any refresh both values are zero.
	if !e.DayPL().IsZero() || !e.DayPLPercent().IsZero() {
		t.Error("DayPL must be zero before the first account refresh")
	}

	if err := e.RefreshAccount(context.Background()); err != nil {
		t.Fatalf("RefreshAccount failed: %v", err)
	}
	if got := e.DayPL(); !got.Equal(dec("500")) {
		t.Errorf("DayPL = %s, want 500", got)
	}
	if got := e.DayPLPercent(); !got.Equal(dec("5")) {
		t.Errorf("DayPLPercent = %s, want 5", got)
	}
}

func TestDayPLPercentZeroLastEquity(t *testing.T) {
	gw := &fakeGateway{account: &domain.Account{Equity: dec("100"), LastEquity: decimal.Zero}}
	e, _, _ := newTestEngine(t, gw)

	if err := e.RefreshAccount(context.Background()); err != nil {
		t.Fatalf("RefreshAccount failed: %v", err)
	}
	if got := e.DayPLPercent(); !got.IsZero() {
		t.Errorf("DayPLPercent with zero last equity = %s, want 0", got)
	}
}
