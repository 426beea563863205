package engine

import (
	"context"

	"talon/internal/broker"
	"talon/internal/domain"
)

// Escalation labels sent with notifications for failures the operator must
// act on immediately.
const (
	labelRateLimit      = "Rate Limit Hit"
	labelSymbolNotFound = "Symbol Not Found"
)

// classify maps a remote failure to its handling. The rules, in order:
//
//  1. rate-limit responses always escalate, reads included, because they
//     degrade every subsequent call;
//  2. not-found for a crypto pair escalates as a symbol lookup bug (the
//     feed covers all supported pairs, so 404 means a malformed symbol);
//  3. not-found on a read is routine (unlisted or delisted equity) and is
//     only logged;
//  4. any other mutation failure escalates, since account state may have
//     changed remotely;
//  5. any other read failure is only logged and the caller degrades to an
//     empty result.
func classify(symbol string, mutation bool, err error) (escalate bool, label string) {
	switch {
	case broker.IsRateLimited(err):
		return true, labelRateLimit
	case broker.IsNotFound(err) && domain.IsCryptoPair(symbol):
		return true, labelSymbolNotFound
	case broker.IsNotFound(err) && !mutation:
		return false, ""
	case mutation:
		return true, ""
	default:
		return false, ""
	}
}

// failMutation reports a failed state-changing operation and returns the
// error for the caller to re-raise.
func (e *Engine) failMutation(ctx context.Context, op, symbol string, err error) error {
	e.reportFailure(ctx, op, symbol, true, err)
	return err
}

// failRead reports a failed read operation; the caller degrades to an
// empty result instead of propagating the error.
func (e *Engine) failRead(ctx context.Context, op, symbol string, err error) {
	e.reportFailure(ctx, op, symbol, false, err)
}

func (e *Engine) reportFailure(ctx context.Context, op, symbol string, mutation bool, err error) {
	attrs := []any{"op", op, "err", err}
	if symbol != "" {
		attrs = append(attrs, "symbol", symbol)
		e.debugf("%s %s failed: %v", op, symbol, err)
	} else {
		e.debugf("%s failed: %v", op, err)
	}
	if status := broker.StatusOf(err); status != 0 {
		attrs = append(attrs, "status", status)
	}

	escalate, label := classify(symbol, mutation, err)
	if !escalate {
		e.log.Warn("remote call failed", attrs...)
		return
	}
	e.log.Error("remote call failed", attrs...)

	if label == "" {
		label = op
	}
	if nerr := e.notifier.SendError(ctx, label, err); nerr != nil {
		e.log.Warn("error notification failed", "label", label, "err", nerr)
	}
}

// reportSideChannel logs a failure of a best-effort side operation (exit
// orders, journal writes). Never escalates, never propagates.
func (e *Engine) reportSideChannel(op, symbol string, err error) {
	e.debugf("%s %s failed: %v", op, symbol, err)
	e.log.Warn("side operation failed", "op", op, "symbol", symbol, "err", err)
}
