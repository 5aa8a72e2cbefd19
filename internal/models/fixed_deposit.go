package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FixedDeposit is a term deposit whose principal sits in a FIXED_DEPOSIT-type
// anchor account until the maturity sweep closes it.
type FixedDeposit struct {
	ID            int64           `json:"id"`
	AccountID     int64           `json:"account_id"`
	DepositAmount decimal.Decimal `json:"deposit_amount"`
	InterestRate  decimal.Decimal `json:"interest_rate"`
	StartDate     time.Time       `json:"start_date"`
	MaturityDate  time.Time       `json:"maturity_date"`
	IsActive      bool            `json:"is_active"`

	Account *Account `json:"account,omitempty"`
}
