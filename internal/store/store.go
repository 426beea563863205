// Package store persists historical bar data as a local Parquet archive for
// offline analysis. The archive is write-mostly: the trading engine never
// reads from it.
package store

import (
	"context"
	"time"

	"talon/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars, merging with existing data.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol within [start, end].
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols present in the archive.
	ListSymbols(ctx context.Context) ([]string, error)
}
