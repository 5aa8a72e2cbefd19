package service

import (
	"context"
	"errors"
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

func newDepositFixture(t *testing.T) (*memory.Store, *FixedDepositService) {
	t.Helper()
	store := memory.NewStore()
	return store, NewFixedDepositService(store, testLogger(), testConfig(), nil)
}

// seedMaturedDeposit creates an already-matured active deposit with its
// anchor account holding the principal.
func seedMaturedDeposit(t *testing.T, store *memory.Store, userID int64, principal decimal.Decimal, span time.Duration) *models.FixedDeposit {
	t.Helper()
	start := time.Now().Add(-span)
	fd := &models.FixedDeposit{
		DepositAmount: principal,
		InterestRate:  decimal.NewFromFloat(5.0),
		StartDate:     start,
		MaturityDate:  start.Add(span),
		IsActive:      true,
	}
	err := store.WithinTx(context.Background(), func(tx ledger.Tx) error {
		anchor := &models.Account{
			UserID:        userID,
			AccountNumber: "FD-0000000001",
			Type:          models.AccountFixedDeposit,
			Balance:       principal,
			Currency:      "USD",
		}
		if err := tx.CreateAccount(anchor); err != nil {
			return err
		}
		fd.AccountID = anchor.ID
		return tx.CreateFixedDeposit(fd)
	})
	require.NoError(t, err)
	return fd
}

// oneYear matches the year length used for interest accrual.
const oneYear = time.Duration(hoursPerYear * float64(time.Hour))

func TestOpenMovesFundsIntoAnchorAccount(t *testing.T) {
	store, svc := newDepositFixture(t)
	user := seedUser(t, store, "alice@example.com", models.RoleCustomer)
	source := seedAccount(t, store, user.ID, models.AccountChecking, decimal.NewFromInt(2000))

	fd, err := svc.Open(context.Background(), user.ID, decimal.NewFromInt(1000), 12, source.ID, asActor(user))
	require.NoError(t, err)

	assert.True(t, fd.IsActive)
	assert.True(t, fd.InterestRate.Equal(decimal.NewFromFloat(5.0)))
	assert.True(t, accountBalance(t, store, source.ID).Equal(decimal.NewFromInt(1000)))

	anchor, err := store.AccountByID(context.Background(), fd.AccountID)
	require.NoError(t, err)
	assert.Equal(t, models.AccountFixedDeposit, anchor.Type)
	assert.True(t, anchor.Balance.Equal(decimal.NewFromInt(1000)))

	txns := allTransactions(t, store)
	require.Len(t, txns, 1)
	assert.Equal(t, models.TransactionFixedDeposit, txns[0].Type)
	assert.Equal(t, source.ID, txns[0].FromAccountID)
	require.NotNil(t, txns[0].ToAccountID)
	assert.Equal(t, anchor.ID, *txns[0].ToAccountID)
}

func TestOpenInsufficientFundsCreatesNothing(t *testing.T) {
	store, svc := newDepositFixture(t)
	user := seedUser(t, store, "alice@example.com", models.RoleCustomer)
	source := seedAccount(t, store, user.ID, models.AccountChecking, decimal.NewFromInt(100))

	_, err := svc.Open(context.Background(), user.ID, decimal.NewFromInt(1000), 12, source.ID, asActor(user))
	assert.True(t, apperr.IsKind(err, apperr.KindInsufficientFunds))

	accounts, err := store.AccountsByUserID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Len(t, accounts, 1, "no anchor account may survive a failed open")
	assert.Empty(t, allTransactions(t, store))
}

func TestOpenFromAnotherUsersAccountIsForbidden(t *testing.T) {
	store, svc := newDepositFixture(t)
	alice := seedUser(t, store, "alice@example.com", models.RoleCustomer)
	bob := seedUser(t, store, "bob@example.com", models.RoleCustomer)
	source := seedAccount(t, store, alice.ID, models.AccountChecking, decimal.NewFromInt(1000))

	_, err := svc.Open(context.Background(), bob.ID, decimal.NewFromInt(100), 6, source.ID, asActor(bob))
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestAccruedInterest(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fd := &models.FixedDeposit{
		DepositAmount: decimal.NewFromInt(1000),
		InterestRate:  decimal.NewFromFloat(5.0),
		StartDate:     start,
		MaturityDate:  start.Add(oneYear),
	}
	assert.True(t, accruedInterest(fd).Equal(decimal.NewFromInt(50)))

	fd.MaturityDate = start.Add(oneYear / 2)
	assert.True(t, accruedInterest(fd).Equal(decimal.NewFromInt(25)))
}

func TestSweepPaysPrincipalAndInterestToLiquidAccount(t *testing.T) {
	store, svc := newDepositFixture(t)
	user := seedUser(t, store, "alice@example.com", models.RoleCustomer)
	checking := seedAccount(t, store, user.ID, models.AccountChecking, decimal.Zero)
	fd := seedMaturedDeposit(t, store, user.ID, decimal.NewFromInt(1000), oneYear)

	closed, err := svc.SweepMatured(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	// 1000 at 5% for exactly one year
	assert.True(t, accountBalance(t, store, checking.ID).Equal(decimal.NewFromInt(1050)))
	assert.True(t, accountBalance(t, store, fd.AccountID).IsZero())

	after, err := store.FixedDepositByID(context.Background(), fd.ID)
	require.NoError(t, err)
	assert.False(t, after.IsActive)

	txns := allTransactions(t, store)
	require.Len(t, txns, 2)
	byType := map[models.TransactionType]models.Transaction{}
	for _, txn := range txns {
		byType[txn.Type] = txn
	}
	interest, ok := byType[models.TransactionInterestCredit]
	require.True(t, ok)
	assert.True(t, interest.Amount.Equal(decimal.NewFromInt(50)))
	principal, ok := byType[models.TransactionTransfer]
	require.True(t, ok)
	assert.True(t, principal.Amount.Equal(decimal.NewFromInt(1000)))
}

func TestSweepWithoutLiquidAccountCreditsInterestToAnchor(t *testing.T) {
	store, svc := newDepositFixture(t)
	user := seedUser(t, store, "alice@example.com", models.RoleCustomer)
	fd := seedMaturedDeposit(t, store, user.ID, decimal.NewFromInt(1000), oneYear)

	closed, err := svc.SweepMatured(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	assert.True(t, accountBalance(t, store, fd.AccountID).Equal(decimal.NewFromInt(1050)))

	after, err := store.FixedDepositByID(context.Background(), fd.ID)
	require.NoError(t, err)
	assert.False(t, after.IsActive)

	txns := allTransactions(t, store)
	require.Len(t, txns, 1)
	assert.Equal(t, models.TransactionInterestCredit, txns[0].Type)
	assert.True(t, txns[0].Amount.Equal(decimal.NewFromInt(50)))
}

func TestSweepSkipsDepositsNotYetMature(t *testing.T) {
	store, svc := newDepositFixture(t)
	user := seedUser(t, store, "alice@example.com", models.RoleCustomer)
	source := seedAccount(t, store, user.ID, models.AccountChecking, decimal.NewFromInt(1000))

	_, err := svc.Open(context.Background(), user.ID, decimal.NewFromInt(500), 12, source.ID, asActor(user))
	require.NoError(t, err)

	closed, err := svc.SweepMatured(context.Background())
	require.NoError(t, err)
	assert.Zero(t, closed)
}

// flakyStore fails a fixed number of atomic units before behaving normally.
type flakyStore struct {
	*memory.Store
	failures int
}

func (f *flakyStore) WithinTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("storage unavailable")
	}
	return f.Store.WithinTx(ctx, fn)
}

func TestSweepIsolatesPerDepositFailures(t *testing.T) {
	store := memory.NewStore()
	alice := seedUser(t, store, "alice@example.com", models.RoleCustomer)
	bob := seedUser(t, store, "bob@example.com", models.RoleCustomer)
	first := seedMaturedDeposit(t, store, alice.ID, decimal.NewFromInt(1000), oneYear)
	second := seedMaturedDeposit(t, store, bob.ID, decimal.NewFromInt(2000), oneYear)

	flaky := &flakyStore{Store: store, failures: 1}
	svc := NewFixedDepositService(flaky, testLogger(), testConfig(), nil)

	closed, err := svc.SweepMatured(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, closed, "the failing deposit must not abort the batch")

	one, err := store.FixedDepositByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.True(t, one.IsActive, "the failed closure leaves the deposit untouched")

	two, err := store.FixedDepositByID(context.Background(), second.ID)
	require.NoError(t, err)
	assert.False(t, two.IsActive)
}
