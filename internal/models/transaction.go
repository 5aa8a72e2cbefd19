package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger transaction.
type TransactionType string

const (
	TransactionDeposit                TransactionType = "DEPOSIT"
	TransactionWithdrawal             TransactionType = "WITHDRAWAL"
	TransactionTransfer               TransactionType = "TRANSFER"
	TransactionLoan                   TransactionType = "LOAN"
	TransactionLoanPayment            TransactionType = "LOAN_PAYMENT"
	TransactionFixedDeposit           TransactionType = "FIXED_DEPOSIT"
	TransactionFixedDepositWithdrawal TransactionType = "FIXED_DEPOSIT_WITHDRAWAL"
	TransactionInterestCredit         TransactionType = "INTEREST_CREDIT"
)

// Transaction is an immutable, append-only audit record. Every balance
// mutation is paired with exactly one Transaction created in the same
// atomic unit; there is no update or delete path.
type Transaction struct {
	ID                      int64           `json:"id"`
	Reference               string          `json:"reference"`
	Type                    TransactionType `json:"type"`
	Amount                  decimal.Decimal `json:"amount"`
	Fee                     decimal.Decimal `json:"fee"`
	FromAccountID           int64           `json:"from_account_id"`
	ToAccountID             *int64          `json:"to_account_id,omitempty"`
	ToExternalAccountNumber string          `json:"to_external_account_number,omitempty"`
	ToExternalRoutingNumber string          `json:"to_external_routing_number,omitempty"`
	Description             string          `json:"description,omitempty"`
	CreatedAt               time.Time       `json:"created_at"`
}
