package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/avolkov/bankcore/internal/apperr"
	"github.com/avolkov/bankcore/internal/ledger"
	"github.com/avolkov/bankcore/internal/models"
	"github.com/avolkov/bankcore/internal/utils"
)

// AccountService manages customer accounts. Anchor accounts for loans and
// fixed deposits are created by their engines, not here.
type AccountService struct {
	store ledger.Store
	log   *logrus.Logger
}

// NewAccountService initializes a new account service
func NewAccountService(store ledger.Store, log *logrus.Logger) *AccountService {
	return &AccountService{store: store, log: log}
}

func numberPrefix(t models.AccountType) string {
	if t == models.AccountSavings {
		return utils.PrefixSavings
	}
	return utils.PrefixChecking
}

// Create opens a zero-balance CHECKING or SAVINGS account for the user.
func (s *AccountService) Create(ctx context.Context, userID int64, accType models.AccountType, currency string, actor models.Actor) (*models.Account, error) {
	if err := requireOwner(actor, userID, "you can only create accounts for yourself"); err != nil {
		return nil, err
	}
	if !accType.Liquid() {
		return nil, apperr.New(apperr.KindInvalidState, "only CHECKING and SAVINGS accounts can be opened directly")
	}

	// Confirm the owning user exists before anchoring an account to them.
	if _, err := s.store.UserByID(ctx, userID); err != nil {
		return nil, err
	}

	number, err := utils.GenerateAccountNumber(numberPrefix(accType), 10)
	if err != nil {
		return nil, err
	}

	account := &models.Account{
		UserID:        userID,
		AccountNumber: number,
		Type:          accType,
		Balance:       decimal.Zero,
		Currency:      currency,
	}
	err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		return tx.CreateAccount(account)
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("Account %s created for user %d", account.AccountNumber, userID)
	return account, nil
}

// Get returns an account; customers may only see their own.
func (s *AccountService) Get(ctx context.Context, id int64, actor models.Actor) (*models.Account, error) {
	account, err := s.store.AccountByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(actor, account.UserID, "you can only view your own accounts"); err != nil {
		return nil, err
	}
	return account, nil
}

// ListMine returns the actor's accounts.
func (s *AccountService) ListMine(ctx context.Context, actor models.Actor) ([]models.Account, error) {
	return s.store.AccountsByUserID(ctx, actor.UserID)
}

// Delete removes an emptied account. Staff only; accounts with a positive
// balance or dependent records are refused.
func (s *AccountService) Delete(ctx context.Context, id int64, actor models.Actor) error {
	if err := requireStaff(actor, "only staff can delete accounts"); err != nil {
		return err
	}
	account, err := s.store.AccountByID(ctx, id)
	if err != nil {
		return err
	}
	if account.Balance.IsPositive() {
		return apperr.New(apperr.KindInvalidState, "cannot delete account with a positive balance")
	}
	if err := s.store.DeleteAccount(ctx, id); err != nil {
		return err
	}
	s.log.Infof("Account %d deleted", id)
	return nil
}
