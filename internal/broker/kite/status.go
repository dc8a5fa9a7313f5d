package kite

import (
	"errors"
	"fmt"
	"strings"

	"rebalance-bot/internal/types"
)

// mapStatus normalizes Kite order statuses into the engine's model. Anything
// unrecognized is treated as still open so the executor keeps polling rather
// than acting on a guess.
func mapStatus(status string) types.OrderStatus {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "COMPLETE":
		return types.StatusFilled
	case "CANCELLED", "CANCELLED AMO":
		return types.StatusCancelled
	case "REJECTED":
		return types.StatusRejected
	case "EXPIRED", "LAPSED":
		return types.StatusExpired
	default:
		return types.StatusOpen
	}
}

// classifyError wraps broker rejections with the sentinel error the engine
// branches on. Kite surfaces RMS rejections as message text, so this matches
// on the message; a structured rejection code would be preferable if the SDK
// exposed one.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, types.ErrInsufficientFunds) || errors.Is(err, types.ErrShortSellDisallowed) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient holding") ||
		strings.Contains(msg, "holdings available") ||
		strings.Contains(msg, "short sell"):
		return fmt.Errorf("%w: %v", types.ErrShortSellDisallowed, err)
	case strings.Contains(msg, "insufficient funds") ||
		strings.Contains(msg, "insufficient balance") ||
		strings.Contains(msg, "margin required") ||
		strings.Contains(msg, "required margin"):
		return fmt.Errorf("%w: %v", types.ErrInsufficientFunds, err)
	default:
		return err
	}
}
