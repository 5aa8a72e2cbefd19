package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/avolkov/bankcore/internal/apperr"
	"github.com/avolkov/bankcore/internal/config"
	"github.com/avolkov/bankcore/internal/ledger"
	"github.com/avolkov/bankcore/internal/models"
	"github.com/avolkov/bankcore/internal/utils"
	"github.com/avolkov/bankcore/internal/utils/email"
)

// RateSource prices new loans. The key-rate client implements it.
type RateSource interface {
	GetKeyRate() (float64, error)
}

// LoanService is the loan engine: apply, approve, reject, repay, and the
// overdue-marking job.
type LoanService struct {
	store       ledger.Store
	log         *logrus.Logger
	rates       RateSource
	notifier    *email.Sender
	defaultRate decimal.Decimal
}

// NewLoanService initializes a new loan service. rates and notifier may be
// nil; the service then falls back to the configured default rate and skips
// email reminders.
func NewLoanService(store ledger.Store, log *logrus.Logger, cfg *config.Config, rates RateSource, notifier *email.Sender) *LoanService {
	return &LoanService{
		store:       store,
		log:         log,
		rates:       rates,
		notifier:    notifier,
		defaultRate: cfg.DefaultInterestRate,
	}
}

func (s *LoanService) interestRate() decimal.Decimal {
	if s.rates != nil {
		if rate, err := s.rates.GetKeyRate(); err == nil {
			return decimal.NewFromFloat(rate).Round(2)
		}
		s.log.Warnf("Key-rate feed unavailable, using default rate %s", s.defaultRate)
	}
	return s.defaultRate
}

// Apply creates a PENDING loan together with its zero-balance anchor account.
func (s *LoanService) Apply(ctx context.Context, userID int64, amount decimal.Decimal, termMonths int, disbursementAccountID int64, actor models.Actor) (*models.Loan, error) {
	if err := requireOwner(actor, userID, "you can only apply for loans for yourself"); err != nil {
		return nil, err
	}
	disbursement, err := s.store.AccountByID(ctx, disbursementAccountID)
	if err != nil {
		return nil, apperr.New(apperr.KindNotFound, "disbursement account not found")
	}

	number, err := utils.GenerateAccountNumber(utils.PrefixLoan, 10)
	if err != nil {
		return nil, err
	}

	loan := &models.Loan{
		UserID:                userID,
		DisbursementAccountID: disbursement.ID,
		Amount:                amount,
		InterestRate:          s.interestRate(),
		TermMonths:            termMonths,
		Status:                models.LoanPending,
	}
	err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		anchor := &models.Account{
			UserID:        userID,
			AccountNumber: number,
			Type:          models.AccountLoan,
			Balance:       decimal.Zero,
			Currency:      disbursement.Currency,
		}
		if err := tx.CreateAccount(anchor); err != nil {
			return err
		}
		loan.AccountID = anchor.ID
		return tx.CreateLoan(loan)
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("Loan %d applied by user %d: %s over %d months at %s%%",
		loan.ID, userID, amount.StringFixed(2), termMonths, loan.InterestRate)
	return loan, nil
}

// buildSchedule computes the flat-interest amortization schedule:
// totalInterest = principal * rate/100 * term/12, apportioned evenly over
// the term, with due dates stepping one month forward from now.
func buildSchedule(loan *models.Loan, now time.Time) []models.LoanSchedule {
	term := decimal.NewFromInt(int64(loan.TermMonths))
	totalInterest := loan.Amount.
		Mul(loan.InterestRate).Div(decimal.NewFromInt(100)).
		Mul(term).Div(decimal.NewFromInt(12))
	installment := loan.Amount.Add(totalInterest).Div(term).Round(2)

	rows := make([]models.LoanSchedule, loan.TermMonths)
	for i := range rows {
		rows[i] = models.LoanSchedule{
			LoanID:    loan.ID,
			DueDate:   now.AddDate(0, i+1, 0),
			DueAmount: installment,
			Status:    models.PaymentPending,
		}
	}
	return rows
}

// Approve moves a PENDING loan to APPROVED: in one atomic unit it creates
// the amortization schedule, credits the disbursement account with the
// principal and records the disbursement transaction.
func (s *LoanService) Approve(ctx context.Context, loanID int64, actor models.Actor) (*models.Loan, error) {
	if err := requireStaff(actor, "only staff can approve loans"); err != nil {
		return nil, err
	}

	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		loan, err := tx.LoanByID(loanID)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanPending {
			return apperr.New(apperr.KindInvalidState, "loan is not in PENDING status")
		}
		if err := tx.UpdateLoanStatus(loanID, models.LoanApproved); err != nil {
			return err
		}
		if err := tx.CreateLoanSchedules(buildSchedule(loan, time.Now())); err != nil {
			return err
		}
		if _, err := tx.AdjustBalance(loan.DisbursementAccountID, loan.Amount, ledger.Unchecked); err != nil {
			return err
		}
		return tx.CreateTransaction(&models.Transaction{
			Type:          models.TransactionLoan,
			Amount:        loan.Amount,
			FromAccountID: loan.DisbursementAccountID,
			Description:   fmt.Sprintf("Loan disbursement for loan #%d", loanID),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("Loan %d approved", loanID)
	return s.store.LoanByID(ctx, loanID)
}

// Reject moves a PENDING loan to REJECTED.
func (s *LoanService) Reject(ctx context.Context, loanID int64, actor models.Actor) error {
	if err := requireStaff(actor, "only staff can reject loans"); err != nil {
		return err
	}
	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		loan, err := tx.LoanByID(loanID)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanPending {
			return apperr.New(apperr.KindInvalidState, "loan is not pending")
		}
		return tx.UpdateLoanStatus(loanID, models.LoanRejected)
	})
	if err != nil {
		return err
	}
	s.log.Infof("Loan %d rejected", loanID)
	return nil
}

// Repay pays one installment of an APPROVED or OVERDUE loan from the given
// account. Paying the last unpaid installment closes the loan in the same
// atomic unit.
func (s *LoanService) Repay(ctx context.Context, loanID, scheduleID, fromAccountID int64, amount decimal.Decimal, actor models.Actor) (*models.Transaction, error) {
	loan, err := s.store.LoanByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(actor, loan.UserID, "this is not your loan"); err != nil {
		return nil, err
	}
	if loan.Status != models.LoanApproved && loan.Status != models.LoanOverdue {
		return nil, apperr.New(apperr.KindInvalidState, "loan is not active")
	}
	from, err := s.store.AccountByID(ctx, fromAccountID)
	if err != nil {
		return nil, apperr.New(apperr.KindNotFound, "payment source account not found")
	}
	if from.UserID != actor.UserID {
		return nil, apperr.New(apperr.KindForbidden, "payment source is not your account")
	}

	now := time.Now()
	txn := &models.Transaction{
		Type:          models.TransactionLoanPayment,
		Amount:        amount,
		FromAccountID: fromAccountID,
		Description:   fmt.Sprintf("Repayment for loan #%d schedule #%d", loanID, scheduleID),
	}
	err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		// Re-read the schedule inside the unit so two concurrent repayments
		// of the same installment cannot both pass the paid check.
		schedule, err := tx.LoanScheduleByID(scheduleID)
		if err != nil {
			return err
		}
		if schedule.LoanID != loanID {
			return apperr.New(apperr.KindInvalidState, "schedule does not match loan")
		}
		if schedule.Status == models.PaymentPaid {
			return apperr.New(apperr.KindInvalidState, "schedule is already paid")
		}
		if amount.GreaterThan(schedule.DueAmount) {
			return apperr.New(apperr.KindAmountExceedsDue, "amount is greater than due amount")
		}
		if _, err := tx.AdjustBalance(fromAccountID, amount.Neg(), ledger.NonNegative); err != nil {
			return err
		}
		if err := tx.MarkSchedulePaid(scheduleID, amount, now); err != nil {
			return err
		}
		if err := tx.CreateLoanPayment(&models.LoanPayment{LoanID: loanID, Amount: amount, PaymentDate: now}); err != nil {
			return err
		}
		if err := tx.CreateTransaction(txn); err != nil {
			return err
		}
		remaining, err := tx.CountUnpaidSchedules(loanID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			return tx.UpdateLoanStatus(loanID, models.LoanPaid)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("Repayment of %s for loan %d schedule %d", amount.StringFixed(2), loanID, scheduleID)
	return txn, nil
}

// Get returns a loan with schedules and payments; customers only their own.
func (s *LoanService) Get(ctx context.Context, loanID int64, actor models.Actor) (*models.Loan, error) {
	loan, err := s.store.LoanByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(actor, loan.UserID, "you can only view your own loans"); err != nil {
		return nil, err
	}
	return loan, nil
}

// ListByUser returns a user's loans; customers only their own.
func (s *LoanService) ListByUser(ctx context.Context, userID int64, actor models.Actor) ([]models.Loan, error) {
	if err := requireOwner(actor, userID, "you can only view your own loans"); err != nil {
		return nil, err
	}
	return s.store.LoansByUserID(ctx, userID)
}

// ProcessOverdue marks APPROVED loans with past-due installments as OVERDUE
// and sends payment reminders. Failures are isolated per loan so one bad
// row does not block the batch. Returns the number of loans marked.
func (s *LoanService) ProcessOverdue(ctx context.Context) (int, error) {
	schedules, err := s.store.UnpaidSchedulesDueBefore(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, schedule := range schedules {
		loan, err := s.store.LoanByID(ctx, schedule.LoanID)
		if err != nil {
			s.log.Errorf("Failed to load loan %d for overdue check: %v", schedule.LoanID, err)
			continue
		}
		if loan.Status != models.LoanApproved {
			continue
		}
		err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
			return tx.UpdateLoanStatus(loan.ID, models.LoanOverdue)
		})
		if err != nil {
			s.log.Errorf("Failed to mark loan %d overdue: %v", loan.ID, err)
			continue
		}
		marked++
		s.log.Infof("Loan %d marked overdue (installment due %s)", loan.ID, schedule.DueDate.Format("2006-01-02"))

		if s.notifier == nil {
			continue
		}
		user, err := s.store.UserByID(ctx, loan.UserID)
		if err != nil {
			s.log.Errorf("Failed to load user %d for reminder: %v", loan.UserID, err)
			continue
		}
		if err := s.notifier.SendPaymentReminder(user.Email, user.Username, loan.ID, schedule.DueDate, schedule.DueAmount, true); err != nil {
			s.log.Errorf("Failed to send reminder for loan %d: %v", loan.ID, err)
		}
	}
	return marked, nil
}
