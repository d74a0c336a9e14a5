// Package credit checks and debits user credit balances. Debits are
// optimistic: the balance is read, and the new value is written only if
// the stored balance is still the one read, retrying on contention.
package credit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nugget/libula/internal/reqctx"
)

// DefaultMaxAttempts bounds debit retries under contention.
const DefaultMaxAttempts = 5

var (
	// ErrInsufficientCredit means the balance does not allow new work.
	ErrInsufficientCredit = errors.New("not enough credit")
	// ErrCredit means a balance could not be read or debited.
	ErrCredit = errors.New("credit update failed")
)

// Balances is the storage the account works against. [store.Store]
// implements it.
type Balances interface {
	Credit(ctx context.Context, userID string) (int64, error)
	CompareAndSwapCredit(ctx context.Context, userID string, old, next int64) (bool, error)
}

// Account checks and debits balances.
type Account struct {
	balances    Balances
	maxAttempts int
	logger      *slog.Logger

	// beforeWrite runs between reading a balance and the guarded
	// write. Tests use it to interleave debits.
	beforeWrite func(userID string, balance int64)
}

// NewAccount creates an Account. maxAttempts <= 0 uses
// [DefaultMaxAttempts].
func NewAccount(b Balances, maxAttempts int, logger *slog.Logger) *Account {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Account{balances: b, maxAttempts: maxAttempts, logger: logger}
}

// Check returns [ErrInsufficientCredit] unless userID has a positive
// balance.
func (a *Account) Check(ctx context.Context, userID string) error {
	bal, err := a.balances.Credit(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: read balance: %w", ErrCredit, err)
	}
	if bal <= 0 {
		reqctx.Logger(ctx, a.logger).Info("credit check rejected", "balance", bal)
		return ErrInsufficientCredit
	}
	return nil
}

// Debit subtracts amount from the balance of userID and returns the
// new balance. The balance may go negative; Check gates new work, not
// the debit. A non-positive amount is a no-op.
func (a *Account) Debit(ctx context.Context, userID string, amount int64) (int64, error) {
	log := reqctx.Logger(ctx, a.logger)
	if amount <= 0 {
		return 0, nil
	}

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		bal, err := a.balances.Credit(ctx, userID)
		if err != nil {
			return 0, fmt.Errorf("%w: read balance: %w", ErrCredit, err)
		}
		if a.beforeWrite != nil {
			a.beforeWrite(userID, bal)
		}

		next := bal - amount
		ok, err := a.balances.CompareAndSwapCredit(ctx, userID, bal, next)
		if err != nil {
			return 0, fmt.Errorf("%w: write balance: %w", ErrCredit, err)
		}
		if ok {
			log.Debug("credit debited", "amount", amount, "balance", next, "attempt", attempt)
			return next, nil
		}
		log.Debug("credit changed concurrently, retrying", "read", bal, "attempt", attempt)
	}
	return 0, fmt.Errorf("%w: balance kept changing after %d attempts", ErrCredit, a.maxAttempts)
}
