package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput      = errors.New("invalid transfer input")
	ErrBalanceNotFound   = errors.New("balance not found for account and asset type")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// IdempotencyConflictError signals that the supplied key already produced a
// completed transaction. It carries that transaction's id so callers can
// reconcile instead of treating the replay as a generic failure.
type IdempotencyConflictError struct {
	TransactionID uuid.UUID
}

func (e *IdempotencyConflictError) Error() string {
	return fmt.Sprintf("idempotency key already used by transaction %s", e.TransactionID)
}
