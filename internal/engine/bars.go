package engine

import (
	"context"
	"time"

	"talon/internal/broker"
	"talon/internal/domain"
)

type barKey struct {
	symbol    string
	timeframe string
	limit     int
}

type barEntry struct {
	bars      []domain.Bar
	fetchedAt time.Time
}

// GetBars returns the most recent bars for symbol, memoized per
// (symbol, timeframe, limit) for the cache TTL. Failures and empty remote
// results degrade to an empty slice; empty results are never cached, so a
// symbol whose data arrives late is retried on the next call.
func (e *Engine) GetBars(ctx context.Context, symbol, timeframe string, limit int) []domain.Bar {
	key := barKey{symbol: symbol, timeframe: timeframe, limit: limit}

	e.mu.RLock()
	entry, ok := e.barCache[key]
	e.mu.RUnlock()
	if ok && e.now().Sub(entry.fetchedAt) < e.barTTL {
		return entry.bars
	}

	bars, err := e.gw.GetBars(ctx, symbol, broker.BarParams{Timeframe: timeframe, Limit: limit})
	if err != nil {
		e.failRead(ctx, "fetch bars", symbol, err)
		return nil
	}
	if len(bars) == 0 {
		return nil
	}

	e.mu.Lock()
	e.barCache[key] = barEntry{bars: bars, fetchedAt: e.now()}
	e.mu.Unlock()
	return bars
}

// GetHistoricalBars returns bars over an explicit date range. Not cached:
// backfill ranges rarely repeat within a TTL. Failures degrade to an empty
// slice and are only logged, even for crypto pairs; a backfill gap is an
// inconvenience, not an operator emergency.
func (e *Engine) GetHistoricalBars(ctx context.Context, symbol, timeframe string, start, end time.Time, limit int) []domain.Bar {
	bars, err := e.gw.GetHistoricalBars(ctx, symbol, broker.RangeParams{
		Timeframe: timeframe,
		Start:     start,
		End:       end,
		Limit:     limit,
	})
	if err != nil {
		e.debugf("fetch historical bars %s failed: %v", symbol, err)
		e.log.Warn("historical bars unavailable", "symbol", symbol, "timeframe", timeframe, "err", err)
		return nil
	}
	return bars
}

// GetLatestTrade returns the most recent trade for symbol, or nil when the
// venue has none or the fetch fails.
func (e *Engine) GetLatestTrade(ctx context.Context, symbol string) *domain.Trade {
	trade, err := e.gw.GetLatestTrade(ctx, symbol)
	if err != nil {
		e.failRead(ctx, "fetch latest trade", symbol, err)
		return nil
	}
	return trade
}
