package saga

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/corewire/routeforge/internal/routemodel"
	"github.com/corewire/routeforge/pkg/apperrors"
	"github.com/corewire/routeforge/pkg/logger"
)

// Coordinator implements debit/credit/compensate/executeTransfer against an
// AccountStore, advancing each transaction's saga state machine:
// CREATED -> DEBITED -> CREDITED on success, CREATED -> FAILED on a
// pre-debit failure, DEBITED -> COMPENSATED on a post-debit failure.
// Satisfies executor.SagaCoordinator structurally.
type Coordinator struct {
	store *AccountStore
	log   *logger.Logger
}

// New builds a Coordinator over store.
func New(store *AccountStore, log *logger.Logger) *Coordinator {
	if log == nil {
		log = logger.NewDefault("saga")
	}
	return &Coordinator{store: store, log: log}
}

// Debit locks the source account, requires ACTIVE status and a sufficient
// balance, decrements it, and advances the transaction to DEBITED.
func (c *Coordinator) Debit(ctx context.Context, accountNumber string, amount int64, transactionID string) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		acct, err := lockAccount(ctx, tx, accountNumber)
		if err != nil {
			return err
		}
		if acct.Status != routemodel.AccountStatusActive {
			return apperrors.AccountNotActive(accountNumber, string(acct.Status))
		}
		if acct.Balance < amount {
			return apperrors.InsufficientBalance(accountNumber, formatAmount(amount), formatAmount(acct.Balance))
		}
		acct.Balance -= amount
		if err := updateAccount(ctx, tx, acct); err != nil {
			return err
		}
		return advanceTransaction(ctx, tx, transactionID, routemodel.TransactionPending, routemodel.SagaDebited, "", nil, nil)
	})
}

// Credit locks the destination account, requires ACTIVE status, increments
// it, and advances the transaction to CREDITED.
func (c *Coordinator) Credit(ctx context.Context, accountNumber string, amount int64, transactionID string) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		acct, err := lockAccount(ctx, tx, accountNumber)
		if err != nil {
			return err
		}
		if acct.Status != routemodel.AccountStatusActive {
			return apperrors.AccountNotActive(accountNumber, string(acct.Status))
		}
		acct.Balance += amount
		if err := updateAccount(ctx, tx, acct); err != nil {
			return err
		}
		return advanceTransaction(ctx, tx, transactionID, routemodel.TransactionPending, routemodel.SagaCredited, "", nil, nil)
	})
}

// Compensate re-credits a debited amount back to the source account. Only
// meaningful when the transaction is currently DEBITED; calls in any other
// state are no-ops, logged as a warning rather than an error.
func (c *Coordinator) Compensate(ctx context.Context, accountNumber string, amount int64, transactionID string) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		state, err := txnSagaState(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if state != routemodel.SagaDebited {
			c.log.WithField("transaction_id", transactionID).WithField("saga_state", string(state)).
				Warn("compensate called outside DEBITED state, ignoring")
			return nil
		}
		acct, err := lockAccount(ctx, tx, accountNumber)
		if err != nil {
			return err
		}
		acct.Balance += amount
		if err := updateAccount(ctx, tx, acct); err != nil {
			return err
		}
		now := time.Now().UTC()
		return advanceTransaction(ctx, tx, transactionID, routemodel.TransactionFailed, routemodel.SagaCompensated, "", nil, &now)
	})
}

// ExecuteTransfer creates a transaction row, runs debit then credit, and
// compensates the debit on any post-debit failure. It returns the
// transaction id whether or not the transfer ultimately succeeds.
func (c *Coordinator) ExecuteTransfer(ctx context.Context, source, dest string, amount int64, description string) (string, error) {
	txnID := uuid.NewString()
	txn := routemodel.Transaction{
		TransactionID: txnID,
		Source:        source,
		Dest:          dest,
		Amount:        amount,
		Description:   description,
		Status:        routemodel.TransactionPending,
		SagaState:     routemodel.SagaCreated,
	}
	if err := c.store.CreateTransaction(ctx, txn); err != nil {
		return txnID, err
	}

	if err := c.Debit(ctx, source, amount, txnID); err != nil {
		c.failTransaction(ctx, txnID, err.Error())
		return txnID, err
	}

	if err := c.Credit(ctx, dest, amount, txnID); err != nil {
		compErr := c.Compensate(ctx, source, amount, txnID)
		if compErr != nil {
			combined := apperrors.CompensationFailed(err, compErr)
			c.recordError(ctx, txnID, combined.Error())
			return txnID, combined
		}
		c.setErrorMessage(ctx, txnID, err.Error())
		return txnID, err
	}

	if err := c.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		return advanceTransaction(ctx, tx, txnID, routemodel.TransactionCompleted, routemodel.SagaCredited, "", &now, nil)
	}); err != nil {
		return txnID, err
	}
	return txnID, nil
}

func (c *Coordinator) failTransaction(ctx context.Context, txnID, errMsg string) {
	_ = c.withTx(ctx, func(tx *sql.Tx) error {
		return advanceTransaction(ctx, tx, txnID, routemodel.TransactionFailed, routemodel.SagaFailed, errMsg, nil, nil)
	})
}

// setErrorMessage records errMsg on the transaction row without disturbing
// the saga state Compensate already advanced it to.
func (c *Coordinator) setErrorMessage(ctx context.Context, txnID, errMsg string) {
	_ = c.withTx(ctx, func(tx *sql.Tx) error {
		state, err := txnSagaState(ctx, tx, txnID)
		if err != nil {
			return err
		}
		return advanceTransaction(ctx, tx, txnID, routemodel.TransactionFailed, state, errMsg, nil, nil)
	})
}

// recordError marks the transaction FAILED after compensation itself failed:
// the debit was never undone, so the saga cannot claim COMPENSATED.
func (c *Coordinator) recordError(ctx context.Context, txnID, errMsg string) {
	_ = c.withTx(ctx, func(tx *sql.Tx) error {
		return advanceTransaction(ctx, tx, txnID, routemodel.TransactionFailed, routemodel.SagaFailed, errMsg, nil, nil)
	})
}

func (c *Coordinator) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.store.DB.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.DatabaseError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.DatabaseError("commit transaction", err)
	}
	return nil
}

func formatAmount(amount int64) string {
	return strconv.FormatInt(amount, 10)
}
