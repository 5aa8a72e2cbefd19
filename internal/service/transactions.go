package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/avolkov/bankcore/internal/apperr"
	"github.com/avolkov/bankcore/internal/config"
	"github.com/avolkov/bankcore/internal/ledger"
	"github.com/avolkov/bankcore/internal/models"
)

// TransactionService is the money-movement engine. Every successful
// operation produces exactly one transaction record, created in the same
// atomic unit as the balance change.
type TransactionService struct {
	store   ledger.Store
	log     *logrus.Logger
	feeRate decimal.Decimal
}

// NewTransactionService initializes a new transaction service
func NewTransactionService(store ledger.Store, log *logrus.Logger, cfg *config.Config) *TransactionService {
	return &TransactionService{store: store, log: log, feeRate: cfg.TransferFeeRate}
}

// Deposit credits an account.
func (s *TransactionService) Deposit(ctx context.Context, accountID int64, amount decimal.Decimal, description string, actor models.Actor) (*models.Transaction, error) {
	account, err := s.store.AccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(actor, account.UserID, "you can only deposit to your own accounts"); err != nil {
		return nil, err
	}

	txn := &models.Transaction{
		Type:          models.TransactionDeposit,
		Amount:        amount,
		FromAccountID: accountID,
		Description:   description,
	}
	err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		if _, err := tx.AdjustBalance(accountID, amount, ledger.Unchecked); err != nil {
			return err
		}
		return tx.CreateTransaction(txn)
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("Deposit of %s to account %d", amount.StringFixed(2), accountID)
	return txn, nil
}

// Withdraw debits an account; fails if the balance would go negative.
func (s *TransactionService) Withdraw(ctx context.Context, accountID int64, amount decimal.Decimal, description string, actor models.Actor) (*models.Transaction, error) {
	account, err := s.store.AccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(actor, account.UserID, "you can only withdraw from your own accounts"); err != nil {
		return nil, err
	}

	txn := &models.Transaction{
		Type:          models.TransactionWithdrawal,
		Amount:        amount,
		FromAccountID: accountID,
		Description:   description,
	}
	err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		if _, err := tx.AdjustBalance(accountID, amount.Neg(), ledger.NonNegative); err != nil {
			return err
		}
		return tx.CreateTransaction(txn)
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("Withdrawal of %s from account %d", amount.StringFixed(2), accountID)
	return txn, nil
}

// Transfer moves funds between two accounts in one atomic unit.
func (s *TransactionService) Transfer(ctx context.Context, fromAccountID, toAccountID int64, amount decimal.Decimal, description string, actor models.Actor) (*models.Transaction, error) {
	from, err := s.store.AccountByID(ctx, fromAccountID)
	if err != nil {
		return nil, apperr.New(apperr.KindNotFound, "source account not found")
	}
	if _, err := s.store.AccountByID(ctx, toAccountID); err != nil {
		return nil, apperr.New(apperr.KindNotFound, "destination account not found")
	}
	if err := requireOwner(actor, from.UserID, "you can only transfer from your own accounts"); err != nil {
		return nil, err
	}

	txn := &models.Transaction{
		Type:          models.TransactionTransfer,
		Amount:        amount,
		FromAccountID: fromAccountID,
		ToAccountID:   &toAccountID,
		Description:   description,
	}
	err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		if _, err := tx.AdjustBalance(fromAccountID, amount.Neg(), ledger.NonNegative); err != nil {
			return err
		}
		if _, err := tx.AdjustBalance(toAccountID, amount, ledger.Unchecked); err != nil {
			return err
		}
		return tx.CreateTransaction(txn)
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("Transfer of %s from account %d to account %d", amount.StringFixed(2), fromAccountID, toAccountID)
	return txn, nil
}

// ExternalTransfer debits an account for funds leaving the ledger. The
// external destination is recorded on the transaction; a fee proportional
// to the amount is charged on top of it.
func (s *TransactionService) ExternalTransfer(ctx context.Context, fromAccountID int64, amount decimal.Decimal, externalAccountNumber, externalRoutingNumber, description string, actor models.Actor) (*models.Transaction, error) {
	from, err := s.store.AccountByID(ctx, fromAccountID)
	if err != nil {
		return nil, apperr.New(apperr.KindNotFound, "source account not found")
	}
	if err := requireOwner(actor, from.UserID, "you can only transfer from your own accounts"); err != nil {
		return nil, err
	}

	fee := amount.Mul(s.feeRate).Round(2)
	txn := &models.Transaction{
		Type:                    models.TransactionTransfer,
		Amount:                  amount,
		Fee:                     fee,
		FromAccountID:           fromAccountID,
		ToExternalAccountNumber: externalAccountNumber,
		ToExternalRoutingNumber: externalRoutingNumber,
		Description:             description,
	}
	err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		if _, err := tx.AdjustBalance(fromAccountID, amount.Add(fee).Neg(), ledger.NonNegative); err != nil {
			return err
		}
		return tx.CreateTransaction(txn)
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("External transfer of %s (fee %s) from account %d", amount.StringFixed(2), fee.StringFixed(2), fromAccountID)
	return txn, nil
}

// List returns transactions matching the filter. Customers must scope the
// listing to one of their own accounts.
func (s *TransactionService) List(ctx context.Context, filter ledger.TransactionFilter, actor models.Actor) ([]models.Transaction, error) {
	if filter.AccountID != nil {
		account, err := s.store.AccountByID(ctx, *filter.AccountID)
		if err != nil {
			return nil, err
		}
		if err := requireOwner(actor, account.UserID, "you can only view transactions for your own accounts"); err != nil {
			return nil, err
		}
	} else if actor.Role == models.RoleCustomer {
		return nil, apperr.New(apperr.KindForbidden, "an account id is required to view transaction history")
	}
	return s.store.Transactions(ctx, filter)
}

// Get returns a single transaction; customers must be on one side of it.
func (s *TransactionService) Get(ctx context.Context, id int64, actor models.Actor) (*models.Transaction, error) {
	txn, err := s.store.TransactionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleCustomer {
		return txn, nil
	}

	if from, err := s.store.AccountByID(ctx, txn.FromAccountID); err == nil && from.UserID == actor.UserID {
		return txn, nil
	}
	if txn.ToAccountID != nil {
		if to, err := s.store.AccountByID(ctx, *txn.ToAccountID); err == nil && to.UserID == actor.UserID {
			return txn, nil
		}
	}
	return nil, apperr.New(apperr.KindForbidden, "you cannot view this transaction")
}
