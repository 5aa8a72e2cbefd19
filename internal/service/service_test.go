package service

import (
	"context"
	"io"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/bankcore/internal/config"
	"github.com/avolkov/bankcore/internal/ledger"
	"github.com/avolkov/bankcore/internal/ledger/memory"
	"github.com/avolkov/bankcore/internal/models"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:           "test-secret",
		DefaultInterestRate: decimal.NewFromFloat(5.0),
		TransferFeeRate:     decimal.NewFromFloat(0.01),
	}
}

func seedUser(t *testing.T, store *memory.Store, email string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{
		Username:     "user-" + email,
		Email:        email,
		Role:         role,
		PasswordHash: "x",
	}
	require.NoError(t, store.CreateUser(context.Background(), u))
	return u
}

func seedAccount(t *testing.T, store *memory.Store, userID int64, typ models.AccountType, balance decimal.Decimal) *models.Account {
	t.Helper()
	a := &models.Account{
		UserID:        userID,
		AccountNumber: "",
		Type:          typ,
		Balance:       balance,
		Currency:      "USD",
	}
	err := store.WithinTx(context.Background(), func(tx ledger.Tx) error {
		return tx.CreateAccount(a)
	})
	require.NoError(t, err)
	return a
}

func asActor(u *models.User) models.Actor {
	return models.Actor{UserID: u.ID, Role: u.Role}
}

func accountBalance(t *testing.T, store *memory.Store, id int64) decimal.Decimal {
	t.Helper()
	a, err := store.AccountByID(context.Background(), id)
	require.NoError(t, err)
	return a.Balance
}

func allTransactions(t *testing.T, store *memory.Store) []models.Transaction {
	t.Helper()
	out, err := store.Transactions(context.Background(), ledger.TransactionFilter{})
	require.NoError(t, err)
	return out
}
