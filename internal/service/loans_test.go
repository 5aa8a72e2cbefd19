package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/bankcore/internal/apperr"
	"github.com/avolkov/bankcore/internal/ledger"
	"github.com/avolkov/bankcore/internal/ledger/memory"
	"github.com/avolkov/bankcore/internal/models"
)

func newLoanFixture(t *testing.T) (*memory.Store, *LoanService) {
	t.Helper()
	store := memory.NewStore()
	return store, NewLoanService(store, testLogger(), testConfig(), nil, nil)
}

func TestApplyCreatesPendingLoanWithAnchorAccount(t *testing.T) {
	store, svc := newLoanFixture(t)
	user := seedUser(t, store, "alice@example.com", models.RoleCustomer)
	checking := seedAccount(t, store, user.ID, models.AccountChecking, decimal.Zero)

	loan, err := svc.Apply(context.Background(), user.ID, decimal.NewFromInt(1200), 12, checking.ID, asActor(user))
	require.NoError(t, err)

	assert.Equal(t, models.LoanPending, loan.Status)
	assert.True(t, loan.InterestRate.Equal(decimal.NewFromFloat(5.0)))

	anchor, err := store.AccountByID(context.Background(), loan.AccountID)
	require.NoError(t, err)
	assert.Equal(t, models.AccountLoan, anchor.Type)
	assert.True(t, anchor.Balance.IsZero())
	// no disbursement before approval
	assert.True(t, accountBalance(t, store, checking.ID).IsZero())
	assert.Empty(t, allTransactions(t, store))
}

func TestApplyForAnotherUserIsForbidden(t *testing.T) {
	store, svc := newLoanFixture(t)
	alice := seedUser(t, store, "alice@example.com", models.RoleCustomer)
	bob := seedUser(t, store, "bob@example.com", models.RoleCustomer)
	checking := seedAccount(t, store, alice.ID, models.AccountChecking, decimal.Zero)

	_, err := svc.Apply(context.Background(), alice.ID, decimal.NewFromInt(100), 6, checking.ID, asActor(bob))
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestApproveDisbursesAndBuildsSchedule(t *testing.T) {
	store, svc := newLoanFixture(t)
	user := seedUser(t, store, "alice@example.com", models.RoleCustomer)
	staff := seedUser(t, store, "staff@example.com", models.RoleStaff)
	checking := seedAccount(t, store, user.ID, models.AccountChecking, decimal.Zero)

	loan, err := svc.Apply(context.Background(), user.ID, decimal.NewFromInt(1200), 12, checking.ID, asActor(user))
	require.NoError(t, err)

	approved, err := svc.Approve(context.Background(), loan.ID, asActor(staff))
	require.NoError(t, err)

	assert.Equal(t, models.LoanApproved, approved.Status)
	require.Len(t, approved.Schedules, 12)

	// 1200 at 5% over 12 months: 60 total interest, 105 per installment
	installment := decimal.NewFromInt(105)
	total := decimal.Zero
	for i, sc := range approved.Schedules {
		assert.True(t, sc.DueAmount.Equal(installment))
		assert.Equal(t, models.PaymentPending, sc.Status)
		if i > 0 {
			assert.True(t, sc.DueDate.After(approved.Schedules[i-1].DueDate))
		}
		total = total.Add(sc.DueAmount)
	}
	assert.True(t, total.Equal(decimal.NewFromInt(1260)), "schedule must cover principal plus interest")

	assert.True(t, accountBalance(t, store, checking.ID).Equal(decimal.NewFromInt(1200)))
	txns := allTransactions(t, store)
	require.Len(t, txns, 1)
	assert.Equal(t, models.TransactionLoan, txns[0].Type)
	assert.Equal(t, checking.ID, txns[0].FromAccountID)
	assert.Nil(t, txns[0].ToAccountID)
}

func TestApproveRequiresStaff(t *testing.T) {
	store, svc := newLoanFixture(t)
	user := seedUser(t, store, "alice@example.com", models.RoleCustomer)
	checking := seedAccount(t, store, user.ID, models.AccountChecking, decimal.Zero)

	loan, err := svc.Apply(context.Background(), user.ID, decimal.NewFromInt(100), 6, checking.ID, asActor(user))
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), loan.ID, asActor(user))
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestApproveIsNotRepeatable(t *testing.T) {
	store, svc := newLoanFixture(t)
	user := seedUser(t, store, "alice@example.com", models.RoleCustomer)
	staff := seedUser(t, store, "staff@example.com", models.RoleStaff)
	checking := seedAccount(t, store, user.ID, models.AccountChecking, decimal.Zero)

	loan, err := svc.Apply(context.Background(), user.ID, decimal.NewFromInt(100), 6, checking.ID, asActor(user))
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), loan.ID, asActor(staff))
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), loan.ID, asActor(staff))
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))
	// the double approval must not disburse twice
	assert.True(t, accountBalance(t, store, checking.ID).Equal(decimal.NewFromInt(100)))
}

func TestRejectOnlyPendingLoans(t *testing.T) {
	store, svc := newLoanFixture(t)
	user := seedUser(t, store, "alice@example.com", models.RoleCustomer)
	staff := seedUser(t, store, "staff@example.com", models.RoleStaff)
	checking := seedAccount(t, store, user.ID, models.AccountChecking, decimal.Zero)

	loan, err := svc.Apply(context.Background(), user.ID, decimal.NewFromInt(100), 6, checking.ID, asActor(user))
	require.NoError(t, err)

	require.NoError(t, svc.Reject(context.Background(), loan.ID, asActor(staff)))
	rejected, err := store.LoanByID(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanRejected, rejected.Status)

	assert.Error(t, svc.Reject(context.Background(), loan.ID, asActor(staff)))
}

func approvedLoanFixture(t *testing.T, store *memory.Store, svc *LoanService, principal int64, term int) (*models.Loan, *models.Account, *models.User) {
	t.Helper()
	user := seedUser(t, store, "alice@example.com", models.RoleCustomer)
	staff := seedUser(t, store, "staff@example.com", models.RoleStaff)
	checking := seedAccount(t, store, user.ID, models.AccountChecking, decimal.NewFromInt(2000))

	loan, err := svc.Apply(context.Background(), user.ID, decimal.NewFromInt(principal), term, checking.ID, asActor(user))
	require.NoError(t, err)
	loan, err = svc.Approve(context.Background(), loan.ID, asActor(staff))
	require.NoError(t, err)
	return loan, checking, user
}

func TestRepayRejectsAmountAboveDue(t *testing.T) {
	store, svc := newLoanFixture(t)
	loan, checking, user := approvedLoanFixture(t, store, svc, 1200, 12)

	over := loan.Schedules[0].DueAmount.Add(decimal.NewFromInt(1))
	_, err := svc.Repay(context.Background(), loan.ID, loan.Schedules[0].ID, checking.ID, over, asActor(user))
	assert.True(t, apperr.IsKind(err, apperr.KindAmountExceedsDue))
}

func TestRepayMarksInstallmentPaidAndKeepsLoanActive(t *testing.T) {
	store, svc := newLoanFixture(t)
	loan, checking, user := approvedLoanFixture(t, store, svc, 1200, 12)
	due := loan.Schedules[0].DueAmount

	before := accountBalance(t, store, checking.ID)
	txn, err := svc.Repay(context.Background(), loan.ID, loan.Schedules[0].ID, checking.ID, due, asActor(user))
	require.NoError(t, err)
	assert.Equal(t, models.TransactionLoanPayment, txn.Type)

	after, err := store.LoanByID(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanApproved, after.Status, "earlier installments do not close the loan")
	assert.Equal(t, models.PaymentPaid, after.Schedules[0].Status)
	require.NotNil(t, after.Schedules[0].PaidAmount)
	assert.True(t, after.Schedules[0].PaidAmount.Equal(due))
	require.Len(t, after.Payments, 1)
	assert.True(t, accountBalance(t, store, checking.ID).Equal(before.Sub(due)))
}

func TestRepaySameInstallmentTwiceIsRejected(t *testing.T) {
	store, svc := newLoanFixture(t)
	loan, checking, user := approvedLoanFixture(t, store, svc, 1200, 12)
	due := loan.Schedules[0].DueAmount

	_, err := svc.Repay(context.Background(), loan.ID, loan.Schedules[0].ID, checking.ID, due, asActor(user))
	require.NoError(t, err)

	before := accountBalance(t, store, checking.ID)
	_, err = svc.Repay(context.Background(), loan.ID, loan.Schedules[0].ID, checking.ID, due, asActor(user))
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))
	assert.True(t, accountBalance(t, store, checking.ID).Equal(before), "a rejected replay must not debit again")
}

func TestRepayLastInstallmentClosesLoan(t *testing.T) {
	store, svc := newLoanFixture(t)
	loan, checking, user := approvedLoanFixture(t, store, svc, 1000, 2)

	for _, sc := range loan.Schedules {
		_, err := svc.Repay(context.Background(), loan.ID, sc.ID, checking.ID, sc.DueAmount, asActor(user))
		require.NoError(t, err)
	}

	after, err := store.LoanByID(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanPaid, after.Status)
}

func TestRepayInsufficientFundsLeavesScheduleUnpaid(t *testing.T) {
	store, svc := newLoanFixture(t)
	loan, checking, user := approvedLoanFixture(t, store, svc, 1200, 12)

	// drain the source account first
	err := store.WithinTx(context.Background(), func(tx ledger.Tx) error {
		return tx.SetBalance(checking.ID, decimal.Zero)
	})
	require.NoError(t, err)

	_, err = svc.Repay(context.Background(), loan.ID, loan.Schedules[0].ID, checking.ID, loan.Schedules[0].DueAmount, asActor(user))
	assert.True(t, apperr.IsKind(err, apperr.KindInsufficientFunds))

	after, err := store.LoanByID(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, after.Schedules[0].Status)
	assert.Empty(t, after.Payments)
}

func TestRepayScheduleFromAnotherLoanIsRejected(t *testing.T) {
	store, svc := newLoanFixture(t)
	loan, checking, user := approvedLoanFixture(t, store, svc, 1200, 12)
	staff := models.Actor{UserID: 2, Role: models.RoleStaff}

	other, err := svc.Apply(context.Background(), user.ID, decimal.NewFromInt(600), 6, checking.ID, asActor(user))
	require.NoError(t, err)
	other, err = svc.Approve(context.Background(), other.ID, staff)
	require.NoError(t, err)

	_, err = svc.Repay(context.Background(), loan.ID, other.Schedules[0].ID, checking.ID, decimal.NewFromInt(10), asActor(user))
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))
}

func TestProcessOverdueMarksApprovedLoans(t *testing.T) {
	store, svc := newLoanFixture(t)
	user := seedUser(t, store, "alice@example.com", models.RoleCustomer)
	anchor := seedAccount(t, store, user.ID, models.AccountLoan, decimal.Zero)
	checking := seedAccount(t, store, user.ID, models.AccountChecking, decimal.Zero)

	loan := &models.Loan{
		UserID:                user.ID,
		AccountID:             anchor.ID,
		DisbursementAccountID: checking.ID,
		Amount:                decimal.NewFromInt(600),
		InterestRate:          decimal.NewFromFloat(5.0),
		TermMonths:            6,
		Status:                models.LoanApproved,
	}
	err := store.WithinTx(context.Background(), func(tx ledger.Tx) error {
		if err := tx.CreateLoan(loan); err != nil {
			return err
		}
		return tx.CreateLoanSchedules([]models.LoanSchedule{{
			LoanID:    loan.ID,
			DueDate:   time.Now().AddDate(0, 0, -3),
			DueAmount: decimal.NewFromInt(105),
			Status:    models.PaymentPending,
		}})
	})
	require.NoError(t, err)

	marked, err := svc.ProcessOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	after, err := store.LoanByID(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanOverdue, after.Status)

	// a second pass finds the loan already marked and does nothing
	marked, err = svc.ProcessOverdue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, marked)
}
