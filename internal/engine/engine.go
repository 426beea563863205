// Package engine implements the order-execution and state-reconciliation
// core: a locally cached snapshot of account, position, and order state
// synchronized with the remote brokerage, translation of trading intents
// into correctly sequenced order submissions, and classification of remote
// failures into silent, logged, and escalated categories.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"talon/internal/broker"
	"talon/internal/debuglog"
	"talon/internal/domain"
	"talon/internal/journal"
	"talon/internal/notify"
)

// Engine owns the local account/position/order snapshot and the bar cache,
// and drives all trading operations through the remote gateway.
//
// Each public operation is a single unit of work that blocks only on the
// gateway (or on fill confirmation in the fractional buy path). The design
// assumes one trading loop driving intents; the internal mutex only makes
// map access race-free, it does not order concurrent intents.
type Engine struct {
	gw       broker.Gateway
	notifier notify.Notifier
	recorder journal.Recorder
	debug    *debuglog.Logger
	risk     *RiskManager
	log      *slog.Logger

	now      func() time.Time
	barTTL   time.Duration
	fillWait time.Duration
	fillPoll time.Duration

	mu        sync.RWMutex
	account   *domain.Account
	positions map[string]domain.Position
	orders    map[string]domain.Order
	barCache  map[barKey]barEntry
}

// Options configures optional engine collaborators and tunables.
type Options struct {
	// Logger for operational logging; slog.Default() when nil.
	Logger *slog.Logger

	// Recorder journals every submitted order; nil disables journaling.
	Recorder journal.Recorder

	// Debug is the append-only debug line sink; nil disables it.
	Debug *debuglog.Logger

	// Risk enables pre-trade risk checks on buys; nil disables them.
	Risk *RiskManager

	// BarCacheTTL is the bar memoization window. Default 60s.
	BarCacheTTL time.Duration

	// FillWait bounds how long a fractional buy waits for fill
	// confirmation before submitting its exit orders anyway. Default 2s.
	FillWait time.Duration

	// FillPollInterval is the delay between fill-confirmation polls.
	// Default 250ms.
	FillPollInterval time.Duration

	// Clock overrides the time source; used by tests to exercise the bar
	// cache TTL without real waits.
	Clock func() time.Time
}

// New creates an Engine over the given gateway and notifier.
func New(gw broker.Gateway, notifier notify.Notifier, opts Options) *Engine {
	e := &Engine{
		gw:        gw,
		notifier:  notifier,
		recorder:  opts.Recorder,
		debug:     opts.Debug,
		risk:      opts.Risk,
		log:       opts.Logger,
		now:       opts.Clock,
		barTTL:    opts.BarCacheTTL,
		fillWait:  opts.FillWait,
		fillPoll:  opts.FillPollInterval,
		positions: make(map[string]domain.Position),
		orders:    make(map[string]domain.Order),
		barCache:  make(map[barKey]barEntry),
	}
	if e.log == nil {
		e.log = slog.Default().With("component", "engine")
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.barTTL <= 0 {
		e.barTTL = 60 * time.Second
	}
	if e.fillWait < 0 {
		e.fillWait = 0
	} else if e.fillWait == 0 {
		e.fillWait = 2 * time.Second
	}
	if e.fillPoll <= 0 {
		e.fillPoll = 250 * time.Millisecond
	}
	return e
}

// Initialize fetches the initial account, position, and order state. A
// failure of the first account fetch is escalated and returned: no
// subsequent sizing decision is trustworthy without account data.
func (e *Engine) Initialize(ctx context.Context) error {
	if err := e.RefreshAccount(ctx); err != nil {
		return err
	}
	if err := e.RefreshPositions(ctx); err != nil {
		return err
	}
	return e.RefreshOrders(ctx)
}

// debugf writes one line to the debug sink, if configured.
func (e *Engine) debugf(format string, args ...any) {
	e.debug.Printf(format, args...)
}

// recordOrder journals a submitted order. Journal failures are logged and
// otherwise ignored; the journal is an audit trail, not trading state.
func (e *Engine) recordOrder(ctx context.Context, order *domain.Order) {
	if e.recorder == nil || order == nil {
		return
	}
	if err := e.recorder.RecordOrder(ctx, order); err != nil {
		e.log.Warn("journal write failed", "orderID", order.ID, "err", err)
	}
}

// notifyTrade sends a trade notification. Delivery failures are logged and
// otherwise ignored.
func (e *Engine) notifyTrade(ctx context.Context, notice domain.TradeNotice) {
	if err := e.notifier.SendTrade(ctx, notice); err != nil {
		e.log.Warn("trade notification failed", "symbol", notice.Symbol, "err", err)
	}
}
