package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType classifies a ledger account.
type AccountType string

const (
	AccountChecking AccountType = "CHECKING"
	AccountSavings  AccountType = "SAVINGS"
	// AccountLoan and AccountFixedDeposit are anchor accounts created by the
	// loan and fixed-deposit engines; ordinary transfers never touch them.
	AccountLoan         AccountType = "LOAN"
	AccountFixedDeposit AccountType = "FIXED_DEPOSIT"
)

// Liquid reports whether the account type can receive ordinary payouts.
func (t AccountType) Liquid() bool {
	return t == AccountChecking || t == AccountSavings
}

// Account represents a ledger account. Balance changes only through the
// ledger store, paired with a Transaction record in the same atomic unit.
type Account struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	AccountNumber string          `json:"account_number"`
	Type          AccountType     `json:"type"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
