// Package notify delivers operator notifications: escalated failures and
// executed-trade reports. Delivery is fire-and-forget from the engine's
// perspective; a notifier's own failures are returned but never block
// trading.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"talon/internal/domain"
)

// Notifier is the outbound notification seam.
type Notifier interface {
	// SendError reports an escalated failure with a short operator-facing
	// label (e.g. "Rate Limit Hit").
	SendError(ctx context.Context, label string, err error) error

	// SendTrade reports an executed trading action.
	SendTrade(ctx context.Context, notice domain.TradeNotice) error
}

// Compile-time interface check.
var _ Notifier = (*LogNotifier)(nil)

// LogNotifier writes notifications to the structured log. It is the default
// when no webhook is configured.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a LogNotifier on the given logger.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// SendError logs the escalated failure.
func (n *LogNotifier) SendError(_ context.Context, label string, err error) error {
	n.log.Error("escalation", "label", label, "err", err)
	return nil
}

// SendTrade logs the trade report.
func (n *LogNotifier) SendTrade(_ context.Context, notice domain.TradeNotice) error {
	n.log.Info("trade", "summary", FormatTrade(notice))
	return nil
}

// FormatTrade renders a TradeNotice as a single human-readable line.
func FormatTrade(n domain.TradeNotice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s (%s", strings.ToUpper(string(n.Side)), n.Qty, n.Symbol, n.Type)
	if n.OrderClass != "" && n.OrderClass != domain.OrderClassSimple {
		fmt.Fprintf(&b, ", %s", n.OrderClass)
	}
	b.WriteString(")")
	if n.StopLoss != nil {
		fmt.Fprintf(&b, " stop=%s", n.StopLoss.StringFixed(2))
	}
	if n.TakeProfit != nil {
		fmt.Fprintf(&b, " target=%s", n.TakeProfit.StringFixed(2))
	}
	return b.String()
}
