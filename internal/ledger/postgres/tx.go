package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avolkov/bankcore/internal/apperr"
	"github.com/avolkov/bankcore/internal/ledger"
	"github.com/avolkov/bankcore/internal/models"
)

// pgTx wraps one SQL transaction as a ledger atomic unit.
type pgTx struct {
	tx *sql.Tx
}

// AccountByID reads an account and locks its row for the rest of the unit.
func (t *pgTx) AccountByID(id int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM bank.accounts WHERE id = $1 FOR UPDATE`
	a, err := scanAccount(t.tx.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "account not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return a, nil
}

func (t *pgTx) CreateAccount(a *models.Account) error {
	query := `
		INSERT INTO bank.accounts (user_id, account_number, type, balance, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err := t.tx.QueryRow(query, a.UserID, a.AccountNumber, a.Type, a.Balance, a.Currency).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// AdjustBalance locks the account row, checks the constraint against the
// balance read inside this unit, and applies the delta.
func (t *pgTx) AdjustBalance(accountID int64, delta decimal.Decimal, constraint ledger.Constraint) (*models.Account, error) {
	a, err := t.AccountByID(accountID)
	if err != nil {
		return nil, err
	}
	next := a.Balance.Add(delta)
	if constraint == ledger.NonNegative && next.IsNegative() {
		return nil, apperr.New(apperr.KindInsufficientFunds, "insufficient funds")
	}
	query := `
		UPDATE bank.accounts SET balance = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2
		RETURNING updated_at`
	if err := t.tx.QueryRow(query, next, accountID).Scan(&a.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to adjust balance: %w", err)
	}
	a.Balance = next
	return a, nil
}

func (t *pgTx) SetBalance(accountID int64, balance decimal.Decimal) error {
	res, err := t.tx.Exec(
		`UPDATE bank.accounts SET balance = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`,
		balance, accountID)
	if err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	if n == 0 {
		return apperr.New(apperr.KindNotFound, "account not found")
	}
	return nil
}

func (t *pgTx) LiquidAccountByUserID(userID int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM bank.accounts
		WHERE user_id = $1 AND type IN ('CHECKING', 'SAVINGS')
		ORDER BY id LIMIT 1 FOR UPDATE`
	a, err := scanAccount(t.tx.QueryRow(query, userID))
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "no liquid account for user")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find liquid account: %w", err)
	}
	return a, nil
}

func (t *pgTx) CreateTransaction(txn *models.Transaction) error {
	if txn.Reference == "" {
		txn.Reference = uuid.NewString()
	}
	var toAccount sql.NullInt64
	if txn.ToAccountID != nil {
		toAccount = sql.NullInt64{Int64: *txn.ToAccountID, Valid: true}
	}
	query := `
		INSERT INTO bank.transactions
			(reference, type, amount, fee, from_account_id, to_account_id,
			 to_external_account_number, to_external_routing_number, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := t.tx.QueryRow(query, txn.Reference, txn.Type, txn.Amount, txn.Fee, txn.FromAccountID,
		toAccount, txn.ToExternalAccountNumber, txn.ToExternalRoutingNumber, txn.Description).
		Scan(&txn.ID, &txn.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (t *pgTx) CreateLoan(l *models.Loan) error {
	query := `
		INSERT INTO bank.loans
			(user_id, account_id, disbursement_account_id, amount, interest_rate, term_months, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err := t.tx.QueryRow(query, l.UserID, l.AccountID, l.DisbursementAccountID, l.Amount,
		l.InterestRate, l.TermMonths, l.Status).
		Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// LoanByID reads a loan and locks its row for the rest of the unit.
func (t *pgTx) LoanByID(id int64) (*models.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM bank.loans WHERE id = $1 FOR UPDATE`
	l, err := scanLoan(t.tx.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "loan not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find loan: %w", err)
	}
	return l, nil
}

func (t *pgTx) UpdateLoanStatus(loanID int64, status models.LoanStatus) error {
	res, err := t.tx.Exec(
		`UPDATE bank.loans SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`,
		status, loanID)
	if err != nil {
		return fmt.Errorf("failed to update loan status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update loan status: %w", err)
	}
	if n == 0 {
		return apperr.New(apperr.KindNotFound, "loan not found")
	}
	return nil
}

func (t *pgTx) CreateLoanSchedules(rows []models.LoanSchedule) error {
	query := `
		INSERT INTO bank.loan_schedules (loan_id, due_date, due_amount, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	for i := range rows {
		err := t.tx.QueryRow(query, rows[i].LoanID, rows[i].DueDate, rows[i].DueAmount, rows[i].Status).
			Scan(&rows[i].ID)
		if err != nil {
			return fmt.Errorf("failed to create loan schedule: %w", err)
		}
	}
	return nil
}

// LoanScheduleByID reads an installment and locks its row for the rest of
// the unit, so a concurrent repayment of the same installment blocks here.
func (t *pgTx) LoanScheduleByID(id int64) (*models.LoanSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM bank.loan_schedules WHERE id = $1 FOR UPDATE`
	sc, err := scanSchedule(t.tx.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "loan schedule not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find loan schedule: %w", err)
	}
	return sc, nil
}

func (t *pgTx) MarkSchedulePaid(scheduleID int64, paidAmount decimal.Decimal, paidAt time.Time) error {
	res, err := t.tx.Exec(
		`UPDATE bank.loan_schedules SET status = 'PAID', paid_amount = $1, paid_at = $2 WHERE id = $3`,
		paidAmount, paidAt, scheduleID)
	if err != nil {
		return fmt.Errorf("failed to mark schedule paid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark schedule paid: %w", err)
	}
	if n == 0 {
		return apperr.New(apperr.KindNotFound, "loan schedule not found")
	}
	return nil
}

func (t *pgTx) CountUnpaidSchedules(loanID int64) (int, error) {
	var n int
	err := t.tx.QueryRow(
		`SELECT COUNT(*) FROM bank.loan_schedules WHERE loan_id = $1 AND status <> 'PAID'`, loanID).
		Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unpaid schedules: %w", err)
	}
	return n, nil
}

func (t *pgTx) CreateLoanPayment(p *models.LoanPayment) error {
	if p.PaymentDate.IsZero() {
		p.PaymentDate = time.Now()
	}
	query := `
		INSERT INTO bank.loan_payments (loan_id, amount, payment_date)
		VALUES ($1, $2, $3)
		RETURNING id`
	if err := t.tx.QueryRow(query, p.LoanID, p.Amount, p.PaymentDate).Scan(&p.ID); err != nil {
		return fmt.Errorf("failed to create loan payment: %w", err)
	}
	return nil
}

func (t *pgTx) CreateFixedDeposit(fd *models.FixedDeposit) error {
	query := `
		INSERT INTO bank.fixed_deposits (account_id, deposit_amount, interest_rate, start_date, maturity_date, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	err := t.tx.QueryRow(query, fd.AccountID, fd.DepositAmount, fd.InterestRate,
		fd.StartDate, fd.MaturityDate, fd.IsActive).
		Scan(&fd.ID)
	if err != nil {
		return fmt.Errorf("failed to create fixed deposit: %w", err)
	}
	return nil
}

func (t *pgTx) DeactivateFixedDeposit(id int64) error {
	res, err := t.tx.Exec(`UPDATE bank.fixed_deposits SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate fixed deposit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to deactivate fixed deposit: %w", err)
	}
	if n == 0 {
		return apperr.New(apperr.KindNotFound, "fixed deposit not found")
	}
	return nil
}
