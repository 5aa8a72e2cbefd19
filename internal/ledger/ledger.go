// Package ledger defines the contract of the ledger store: the only
// component that mutates account balances and writes transaction records.
// The loan and fixed-deposit engines go through the same contract instead
// of touching balances themselves.
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avolkov/bankcore/internal/models"
)

// Constraint controls how AdjustBalance treats the resulting balance.
type Constraint int

const (
	// Unchecked applies the delta regardless of the resulting balance.
	Unchecked Constraint = iota
	// NonNegative rejects the adjustment with an insufficient-funds error
	// if the resulting balance would drop below zero. The balance read and
	// the write happen inside the same atomic unit, so two concurrent
	// debits can never both observe a stale sufficient balance.
	NonNegative
)

// TransactionFilter narrows a transaction listing.
type TransactionFilter struct {
	AccountID *int64
	Type      *models.TransactionType
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// Tx is the set of reads and writes available inside one atomic unit.
// All of them commit or abort together; an error returned from the unit
// function rolls back every change.
type Tx interface {
	AccountByID(id int64) (*models.Account, error)
	CreateAccount(a *models.Account) error
	// AdjustBalance applies a signed delta to an account balance and
	// returns the updated account.
	AdjustBalance(accountID int64, delta decimal.Decimal, constraint Constraint) (*models.Account, error)
	// SetBalance overwrites an account balance. Used only by the maturity
	// sweep to zero a fixed-deposit anchor during payout.
	SetBalance(accountID int64, balance decimal.Decimal) error
	// LiquidAccountByUserID returns the user's first CHECKING or SAVINGS
	// account, or a not-found error if the user has none.
	LiquidAccountByUserID(userID int64) (*models.Account, error)
	CreateTransaction(t *models.Transaction) error

	CreateLoan(l *models.Loan) error
	LoanByID(id int64) (*models.Loan, error)
	UpdateLoanStatus(loanID int64, status models.LoanStatus) error
	CreateLoanSchedules(rows []models.LoanSchedule) error
	LoanScheduleByID(id int64) (*models.LoanSchedule, error)
	MarkSchedulePaid(scheduleID int64, paidAmount decimal.Decimal, paidAt time.Time) error
	CountUnpaidSchedules(loanID int64) (int, error)
	CreateLoanPayment(p *models.LoanPayment) error

	CreateFixedDeposit(fd *models.FixedDeposit) error
	DeactivateFixedDeposit(id int64) error
}

// Store is the durable ledger. WithinTx opens atomic units; the remaining
// methods are plain reads (plus the user table, which has no balance
// semantics) that need no unit of their own.
type Store interface {
	// WithinTx runs fn inside a single atomic unit. Serialization conflicts
	// are retried a bounded number of times before surfacing as a conflict
	// error; any other error from fn aborts the unit with no partial effect.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	AccountByID(ctx context.Context, id int64) (*models.Account, error)
	AccountsByUserID(ctx context.Context, userID int64) ([]models.Account, error)
	// DeleteAccount removes an account; it fails with a conflict error when
	// transactions, loans or fixed deposits still reference it.
	DeleteAccount(ctx context.Context, id int64) error

	CreateUser(ctx context.Context, u *models.User) error
	UserByID(ctx context.Context, id int64) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)

	TransactionByID(ctx context.Context, id int64) (*models.Transaction, error)
	Transactions(ctx context.Context, filter TransactionFilter) ([]models.Transaction, error)

	LoanByID(ctx context.Context, id int64) (*models.Loan, error)
	LoansByUserID(ctx context.Context, userID int64) ([]models.Loan, error)
	// UnpaidSchedulesDueBefore returns unpaid installments due strictly
	// before t, for the overdue-marking job.
	UnpaidSchedulesDueBefore(ctx context.Context, t time.Time) ([]models.LoanSchedule, error)

	FixedDepositByID(ctx context.Context, id int64) (*models.FixedDeposit, error)
	FixedDepositsByUserID(ctx context.Context, userID int64, isActive bool) ([]models.FixedDeposit, error)
	// MaturedActiveDeposits returns active deposits with maturity date at or
	// before t, anchor account attached.
	MaturedActiveDeposits(ctx context.Context, t time.Time) ([]models.FixedDeposit, error)
}
