package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanStatus is the loan lifecycle state.
type LoanStatus string

const (
	LoanPending  LoanStatus = "PENDING"
	LoanApproved LoanStatus = "APPROVED"
	LoanRejected LoanStatus = "REJECTED"
	LoanOverdue  LoanStatus = "OVERDUE"
	LoanPaid     LoanStatus = "PAID"
)

// PaymentStatus is the state of a single schedule installment.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
)

// Loan represents a flat-interest loan anchored to a LOAN-type account.
type Loan struct {
	ID                    int64           `json:"id"`
	UserID                int64           `json:"user_id"`
	AccountID             int64           `json:"account_id"`
	DisbursementAccountID int64           `json:"disbursement_account_id"`
	Amount                decimal.Decimal `json:"amount"`
	InterestRate          decimal.Decimal `json:"interest_rate"`
	TermMonths            int             `json:"term_months"`
	Status                LoanStatus      `json:"status"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`

	Schedules []LoanSchedule `json:"schedules,omitempty"`
	Payments  []LoanPayment  `json:"payments,omitempty"`
}

// LoanSchedule is one installment of a loan's amortization schedule.
type LoanSchedule struct {
	ID         int64            `json:"id"`
	LoanID     int64            `json:"loan_id"`
	DueDate    time.Time        `json:"due_date"`
	DueAmount  decimal.Decimal  `json:"due_amount"`
	Status     PaymentStatus    `json:"status"`
	PaidAmount *decimal.Decimal `json:"paid_amount,omitempty"`
	PaidAt     *time.Time       `json:"paid_at,omitempty"`
}

// LoanPayment is an append-only record of a repayment event.
type LoanPayment struct {
	ID          int64           `json:"id"`
	LoanID      int64           `json:"loan_id"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate time.Time       `json:"payment_date"`
}
