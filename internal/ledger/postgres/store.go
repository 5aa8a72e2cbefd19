// Package postgres implements the ledger contract on PostgreSQL. Atomic
// units are SQL transactions; balance reads inside a unit take row locks so
// concurrent debits against the same account are linearized by the database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/avolkov/bankcore/internal/apperr"
	"github.com/avolkov/bankcore/internal/ledger"
	"github.com/avolkov/bankcore/internal/models"
)

// maxTxAttempts bounds the transparent retry on serialization conflicts.
const maxTxAttempts = 3

// Store is the PostgreSQL ledger store.
type Store struct {
	db  *sql.DB
	log *logrus.Logger
}

// NewStore initializes a new store.
func NewStore(db *sql.DB, log *logrus.Logger) *Store {
	return &Store{db: db, log: log}
}

// WithinTx runs fn inside a SQL transaction, retrying serialization and
// deadlock failures a bounded number of times before surfacing a conflict.
func (s *Store) WithinTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !retryable(err) {
			return err
		}
		s.log.Warnf("Ledger transaction conflict (attempt %d/%d): %v", attempt, maxTxAttempts, err)
	}
	return apperr.Wrap(apperr.KindConflict, "transaction conflict", err)
}

func (s *Store) runTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&pgTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func retryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// serialization_failure, deadlock_detected
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

const accountColumns = `id, user_id, account_number, type, balance, currency, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	a := &models.Account{}
	err := row.Scan(&a.ID, &a.UserID, &a.AccountNumber, &a.Type, &a.Balance, &a.Currency, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// AccountByID retrieves an account outside any atomic unit.
func (s *Store) AccountByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM bank.accounts WHERE id = $1`
	a, err := scanAccount(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "account not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return a, nil
}

// AccountsByUserID lists a user's accounts, oldest first.
func (s *Store) AccountsByUserID(ctx context.Context, userID int64) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM bank.accounts WHERE user_id = $1 ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// DeleteAccount removes an account; dependent rows surface as a conflict.
func (s *Store) DeleteAccount(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bank.accounts WHERE id = $1`, id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return apperr.New(apperr.KindConflict, "account has associated records")
		}
		return fmt.Errorf("failed to delete account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if n == 0 {
		return apperr.New(apperr.KindNotFound, "account not found")
	}
	return nil
}

// CreateUser inserts a user; a duplicate email surfaces as a conflict.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO bank.users (username, email, role, password_hash, created_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := s.db.QueryRowContext(ctx, query, u.Username, u.Email, u.Role, u.PasswordHash).
		Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return apperr.New(apperr.KindConflict, "email already registered")
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

const userColumns = `id, username, email, role, password_hash, created_at`

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// UserByID retrieves a user by id.
func (s *Store) UserByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM bank.users WHERE id = $1`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return u, nil
}

// UserByEmail retrieves a user by email.
func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM bank.users WHERE email = $1`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, email))
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return u, nil
}

const transactionColumns = `id, reference, type, amount, fee, from_account_id, to_account_id,
	to_external_account_number, to_external_routing_number, description, created_at`

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	t := &models.Transaction{}
	var toAccount sql.NullInt64
	var extAccount, extRouting, description sql.NullString
	err := row.Scan(&t.ID, &t.Reference, &t.Type, &t.Amount, &t.Fee, &t.FromAccountID,
		&toAccount, &extAccount, &extRouting, &description, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if toAccount.Valid {
		t.ToAccountID = &toAccount.Int64
	}
	t.ToExternalAccountNumber = extAccount.String
	t.ToExternalRoutingNumber = extRouting.String
	t.Description = description.String
	return t, nil
}

// TransactionByID retrieves a single transaction.
func (s *Store) TransactionByID(ctx context.Context, id int64) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM bank.transactions WHERE id = $1`
	t, err := scanTransaction(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "transaction not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction: %w", err)
	}
	return t, nil
}

// Transactions lists transactions matching the filter, newest first.
func (s *Store) Transactions(ctx context.Context, filter ledger.TransactionFilter) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM bank.transactions WHERE 1=1`
	var args []any
	n := 0
	next := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}
	if filter.AccountID != nil {
		p := next(*filter.AccountID)
		query += fmt.Sprintf(" AND (from_account_id = %s OR to_account_id = %s)", p, p)
	}
	if filter.Type != nil {
		query += " AND type = " + next(*filter.Type)
	}
	if filter.From != nil {
		query += " AND created_at >= " + next(*filter.From)
	}
	if filter.To != nil {
		query += " AND created_at <= " + next(*filter.To)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + next(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + next(filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

const loanColumns = `id, user_id, account_id, disbursement_account_id, amount, interest_rate,
	term_months, status, created_at, updated_at`

func scanLoan(row rowScanner) (*models.Loan, error) {
	l := &models.Loan{}
	err := row.Scan(&l.ID, &l.UserID, &l.AccountID, &l.DisbursementAccountID, &l.Amount,
		&l.InterestRate, &l.TermMonths, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// LoanByID retrieves a loan with its schedules and payments attached.
func (s *Store) LoanByID(ctx context.Context, id int64) (*models.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM bank.loans WHERE id = $1`
	l, err := scanLoan(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "loan not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find loan: %w", err)
	}
	if err := s.attachLoanDetails(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// LoansByUserID lists a user's loans, newest first, with details attached.
func (s *Store) LoansByUserID(ctx context.Context, userID int64) ([]models.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM bank.loans WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	var out []models.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := s.attachLoanDetails(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) attachLoanDetails(ctx context.Context, l *models.Loan) error {
	schedules, err := s.loanSchedules(ctx, l.ID)
	if err != nil {
		return err
	}
	l.Schedules = schedules

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, loan_id, amount, payment_date FROM bank.loan_payments WHERE loan_id = $1 ORDER BY payment_date DESC, id DESC`, l.ID)
	if err != nil {
		return fmt.Errorf("failed to list loan payments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p models.LoanPayment
		if err := rows.Scan(&p.ID, &p.LoanID, &p.Amount, &p.PaymentDate); err != nil {
			return fmt.Errorf("failed to scan loan payment: %w", err)
		}
		l.Payments = append(l.Payments, p)
	}
	return rows.Err()
}

const scheduleColumns = `id, loan_id, due_date, due_amount, status, paid_amount, paid_at`

func scanSchedule(row rowScanner) (*models.LoanSchedule, error) {
	sc := &models.LoanSchedule{}
	var paidAmount decimal.NullDecimal
	var paidAt sql.NullTime
	err := row.Scan(&sc.ID, &sc.LoanID, &sc.DueDate, &sc.DueAmount, &sc.Status, &paidAmount, &paidAt)
	if err != nil {
		return nil, err
	}
	if paidAmount.Valid {
		sc.PaidAmount = &paidAmount.Decimal
	}
	if paidAt.Valid {
		sc.PaidAt = &paidAt.Time
	}
	return sc, nil
}

func (s *Store) loanSchedules(ctx context.Context, loanID int64) ([]models.LoanSchedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM bank.loan_schedules WHERE loan_id = $1 ORDER BY due_date`, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list loan schedules: %w", err)
	}
	defer rows.Close()

	var out []models.LoanSchedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan schedule: %w", err)
		}
		out = append(out, *sc)
	}
	return out, rows.Err()
}

// UnpaidSchedulesDueBefore lists unpaid installments due strictly before t.
func (s *Store) UnpaidSchedulesDueBefore(ctx context.Context, t time.Time) ([]models.LoanSchedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM bank.loan_schedules WHERE status <> 'PAID' AND due_date < $1 ORDER BY due_date`, t)
	if err != nil {
		return nil, fmt.Errorf("failed to list due schedules: %w", err)
	}
	defer rows.Close()

	var out []models.LoanSchedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan schedule: %w", err)
		}
		out = append(out, *sc)
	}
	return out, rows.Err()
}

const depositColumns = `id, account_id, deposit_amount, interest_rate, start_date, maturity_date, is_active`

func scanDeposit(row rowScanner) (*models.FixedDeposit, error) {
	fd := &models.FixedDeposit{}
	err := row.Scan(&fd.ID, &fd.AccountID, &fd.DepositAmount, &fd.InterestRate,
		&fd.StartDate, &fd.MaturityDate, &fd.IsActive)
	if err != nil {
		return nil, err
	}
	return fd, nil
}

// FixedDepositByID retrieves a fixed deposit with its anchor account.
func (s *Store) FixedDepositByID(ctx context.Context, id int64) (*models.FixedDeposit, error) {
	query := `SELECT ` + depositColumns + ` FROM bank.fixed_deposits WHERE id = $1`
	fd, err := scanDeposit(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "fixed deposit not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find fixed deposit: %w", err)
	}
	if fd.Account, err = s.AccountByID(ctx, fd.AccountID); err != nil {
		return nil, err
	}
	return fd, nil
}

// FixedDepositsByUserID lists a user's deposits by activity flag, newest first.
func (s *Store) FixedDepositsByUserID(ctx context.Context, userID int64, isActive bool) ([]models.FixedDeposit, error) {
	query := `
		SELECT fd.id, fd.account_id, fd.deposit_amount, fd.interest_rate, fd.start_date, fd.maturity_date, fd.is_active
		FROM bank.fixed_deposits fd
		JOIN bank.accounts a ON a.id = fd.account_id
		WHERE a.user_id = $1 AND fd.is_active = $2
		ORDER BY fd.start_date DESC, fd.id DESC`
	return s.queryDeposits(ctx, query, userID, isActive)
}

// MaturedActiveDeposits lists active deposits with maturity date at or before t.
func (s *Store) MaturedActiveDeposits(ctx context.Context, t time.Time) ([]models.FixedDeposit, error) {
	query := `
		SELECT fd.id, fd.account_id, fd.deposit_amount, fd.interest_rate, fd.start_date, fd.maturity_date, fd.is_active
		FROM bank.fixed_deposits fd
		WHERE fd.is_active = TRUE AND fd.maturity_date <= $1
		ORDER BY fd.id`
	return s.queryDeposits(ctx, query, t)
}

func (s *Store) queryDeposits(ctx context.Context, query string, args ...any) ([]models.FixedDeposit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list fixed deposits: %w", err)
	}
	defer rows.Close()

	var out []models.FixedDeposit
	for rows.Next() {
		fd, err := scanDeposit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fixed deposit: %w", err)
		}
		out = append(out, *fd)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Account, err = s.AccountByID(ctx, out[i].AccountID); err != nil {
			return nil, err
		}
	}
	return out, nil
}
