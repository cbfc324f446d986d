package routemodel

import "time"

// AccountStatus tracks whether an account may participate in transfers.
type AccountStatus string

const (
	AccountStatusActive AccountStatus = "ACTIVE"
	AccountStatusFrozen AccountStatus = "FROZEN"
	AccountStatusClosed AccountStatus = "CLOSED"
)

// Account is a ledger entry the saga coordinator debits and credits.
type Account struct {
	AccountNumber string        `json:"accountNumber"`
	Name          string        `json:"name"`
	Balance       int64         `json:"balance"` // minor units; always >= 0
	Status        AccountStatus `json:"status"`
	Version       int64         `json:"version"` // monotonic per update
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// TransactionStatus is the transfer's outer, user-visible status.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionFailed    TransactionStatus = "FAILED"
)

// SagaState tracks a transfer's progress through the debit/credit/compensate
// state machine.
type SagaState string

const (
	SagaCreated     SagaState = "CREATED"
	SagaDebited     SagaState = "DEBITED"
	SagaCredited    SagaState = "CREDITED"
	SagaCompensated SagaState = "COMPENSATED"
	SagaFailed      SagaState = "FAILED"
)

// Transaction is the saga's unit of work: a transfer from one account to
// another, tracked through both its outer status and its saga state.
type Transaction struct {
	TransactionID string            `json:"transactionId"`
	Source        string            `json:"source"`
	Dest          string            `json:"dest"`
	Amount        int64             `json:"amount"` // minor units; always > 0
	Description   string            `json:"description,omitempty"`
	Status        TransactionStatus `json:"status"`
	SagaState     SagaState         `json:"sagaState"`
	ErrorMessage  string            `json:"errorMessage,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	CompletedAt   *time.Time        `json:"completedAt,omitempty"`
	CompensatedAt *time.Time        `json:"compensatedAt,omitempty"`
}
