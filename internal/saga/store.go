// Package saga implements the transactional account ledger and the
// debit/credit/compensate/executeTransfer state machine that banking nodes
// delegate to. Row locking is grounded on the teacher's work-queue store's
// SELECT ... FOR UPDATE pattern inside an explicit sql.Tx, adapted from
// SKIP LOCKED (skip a busy row) to plain blocking FOR UPDATE (wait for a
// busy row) because a transfer must act on a specific source and dest
// account, not whichever one happens to be free.
package saga

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/corewire/routeforge/internal/routemodel"
	"github.com/corewire/routeforge/pkg/apperrors"
)

// AccountStore persists accounts and their transaction log with row-level
// locking and optimistic versioning.
type AccountStore struct {
	DB *sql.DB
}

// NewAccountStore wraps a Postgres handle as an AccountStore.
func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{DB: db}
}

// lockAccount reads an account row with FOR UPDATE, blocking until any
// concurrent holder releases it. Must be called inside tx.
func lockAccount(ctx context.Context, tx *sql.Tx, accountNumber string) (routemodel.Account, error) {
	var a routemodel.Account
	row := tx.QueryRowContext(ctx, `
		SELECT account_number, account_name, balance, status, version, created_at, updated_at
		FROM accounts
		WHERE account_number = $1
		FOR UPDATE
	`, accountNumber)
	if err := row.Scan(&a.AccountNumber, &a.Name, &a.Balance, &a.Status, &a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return routemodel.Account{}, apperrors.AccountNotFound(accountNumber)
		}
		return routemodel.Account{}, apperrors.DatabaseError("lock account", err)
	}
	return a, nil
}

// updateAccount writes a's balance/status back, bumping version optimistically
// (the WHERE clause's version check catches any update that raced past the
// row lock, e.g. a stale in-memory copy reused across requests).
func updateAccount(ctx context.Context, tx *sql.Tx, a routemodel.Account) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, status = $2, version = version + 1, updated_at = $3
		WHERE account_number = $4 AND version = $5
	`, a.Balance, a.Status, time.Now().UTC(), a.AccountNumber, a.Version)
	if err != nil {
		return apperrors.DatabaseError("update account", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return apperrors.DatabaseError("update account", err)
	}
	if rows == 0 {
		return apperrors.Internal("concurrent account update detected for "+a.AccountNumber, nil)
	}
	return nil
}

// CreateAccount inserts a new account at version 0, ACTIVE unless a
// different status is supplied.
func (s *AccountStore) CreateAccount(ctx context.Context, a routemodel.Account) error {
	if a.Status == "" {
		a.Status = routemodel.AccountStatusActive
	}
	now := time.Now().UTC()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO accounts (account_number, account_name, balance, status, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,0,$5,$5)
	`, a.AccountNumber, a.Name, a.Balance, a.Status, now)
	if err != nil {
		return apperrors.DatabaseError("create account", err)
	}
	return nil
}

// GetAccount reads an account without locking it.
func (s *AccountStore) GetAccount(ctx context.Context, accountNumber string) (routemodel.Account, error) {
	var a routemodel.Account
	row := s.DB.QueryRowContext(ctx, `
		SELECT account_number, account_name, balance, status, version, created_at, updated_at
		FROM accounts
		WHERE account_number = $1
	`, accountNumber)
	if err := row.Scan(&a.AccountNumber, &a.Name, &a.Balance, &a.Status, &a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return routemodel.Account{}, apperrors.AccountNotFound(accountNumber)
		}
		return routemodel.Account{}, apperrors.DatabaseError("get account", err)
	}
	return a, nil
}

// CreateTransaction inserts a new transaction row in CREATED/PENDING state.
func (s *AccountStore) CreateTransaction(ctx context.Context, txn routemodel.Transaction) error {
	if txn.Status == "" {
		txn.Status = routemodel.TransactionPending
	}
	if txn.SagaState == "" {
		txn.SagaState = routemodel.SagaCreated
	}
	now := time.Now().UTC()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO transactions
			(transaction_id, source_account, dest_account, amount, description, status, saga_state, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, txn.TransactionID, txn.Source, txn.Dest, txn.Amount, txn.Description, txn.Status, txn.SagaState, now)
	if err != nil {
		return apperrors.DatabaseError("create transaction", err)
	}
	return nil
}

// advanceTransaction updates a transaction row's status/sagaState/errorMessage.
// completedAt/compensatedAt are only written when non-nil, so a later call
// that merely updates the error message (e.g. after a successful
// compensation) can't clobber a timestamp an earlier call already set.
func advanceTransaction(ctx context.Context, tx *sql.Tx, txnID string, status routemodel.TransactionStatus, state routemodel.SagaState, errMsg string, completedAt, compensatedAt *time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1, saga_state = $2, error_message = $3,
		    completed_at = COALESCE($4, completed_at),
		    compensated_at = COALESCE($5, compensated_at)
		WHERE transaction_id = $6
	`, status, state, errMsg, completedAt, compensatedAt, txnID)
	if err != nil {
		return apperrors.DatabaseError("advance transaction", err)
	}
	return nil
}

// GetTransaction reads a transaction row.
func (s *AccountStore) GetTransaction(ctx context.Context, txnID string) (routemodel.Transaction, error) {
	var t routemodel.Transaction
	row := s.DB.QueryRowContext(ctx, `
		SELECT transaction_id, source_account, dest_account, amount, description, status, saga_state, error_message, created_at, completed_at, compensated_at
		FROM transactions
		WHERE transaction_id = $1
	`, txnID)
	if err := row.Scan(&t.TransactionID, &t.Source, &t.Dest, &t.Amount, &t.Description, &t.Status, &t.SagaState, &t.ErrorMessage, &t.CreatedAt, &t.CompletedAt, &t.CompensatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return routemodel.Transaction{}, apperrors.New(apperrors.CodeRouteNotFound, "transaction not found: "+txnID, 404)
		}
		return routemodel.Transaction{}, apperrors.DatabaseError("get transaction", err)
	}
	return t, nil
}

func txnSagaState(ctx context.Context, tx *sql.Tx, txnID string) (routemodel.SagaState, error) {
	var state routemodel.SagaState
	row := tx.QueryRowContext(ctx, `SELECT saga_state FROM transactions WHERE transaction_id = $1 FOR UPDATE`, txnID)
	if err := row.Scan(&state); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperrors.New(apperrors.CodeRouteNotFound, "transaction not found: "+txnID, 404)
		}
		return "", apperrors.DatabaseError("read saga state", err)
	}
	return state, nil
}
