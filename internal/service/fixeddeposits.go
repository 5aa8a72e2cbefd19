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

// hoursPerYear converts the start-to-maturity span into years for the
// flat-interest computation.
const hoursPerYear = 24 * 365.25

// FixedDepositService is the fixed-deposit engine: opening term deposits
// and the maturity sweep that closes them.
type FixedDepositService struct {
	store       ledger.Store
	log         *logrus.Logger
	notifier    *email.Sender
	defaultRate decimal.Decimal
}

// NewFixedDepositService initializes a new fixed-deposit service. notifier
// may be nil to skip maturity emails.
func NewFixedDepositService(store ledger.Store, log *logrus.Logger, cfg *config.Config, notifier *email.Sender) *FixedDepositService {
	return &FixedDepositService{
		store:       store,
		log:         log,
		notifier:    notifier,
		defaultRate: cfg.DefaultInterestRate,
	}
}

// Open moves funds from a source account into a new FIXED_DEPOSIT anchor
// account and records the deposit, all in one atomic unit.
func (s *FixedDepositService) Open(ctx context.Context, userID int64, amount decimal.Decimal, periodMonths int, sourceAccountID int64, actor models.Actor) (*models.FixedDeposit, error) {
	if err := requireOwner(actor, userID, "you can only create fixed deposits for yourself"); err != nil {
		return nil, err
	}
	source, err := s.store.AccountByID(ctx, sourceAccountID)
	if err != nil {
		return nil, apperr.New(apperr.KindNotFound, "source account not found")
	}
	if source.UserID != userID {
		return nil, apperr.New(apperr.KindForbidden, "you can only fund from your own accounts")
	}

	number, err := utils.GenerateAccountNumber(utils.PrefixFixedDeposit, 10)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	fd := &models.FixedDeposit{
		DepositAmount: amount,
		InterestRate:  s.defaultRate,
		StartDate:     now,
		MaturityDate:  now.AddDate(0, periodMonths, 0),
		IsActive:      true,
	}
	err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		if _, err := tx.AdjustBalance(sourceAccountID, amount.Neg(), ledger.NonNegative); err != nil {
			return err
		}
		anchor := &models.Account{
			UserID:        userID,
			AccountNumber: number,
			Type:          models.AccountFixedDeposit,
			Balance:       amount,
			Currency:      source.Currency,
		}
		if err := tx.CreateAccount(anchor); err != nil {
			return err
		}
		fd.AccountID = anchor.ID
		fd.Account = anchor
		if err := tx.CreateFixedDeposit(fd); err != nil {
			return err
		}
		return tx.CreateTransaction(&models.Transaction{
			Type:          models.TransactionFixedDeposit,
			Amount:        amount,
			FromAccountID: sourceAccountID,
			ToAccountID:   &anchor.ID,
			Description:   fmt.Sprintf("Fixed deposit #%d opened", fd.ID),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("Fixed deposit %d opened by user %d: %s for %d months",
		fd.ID, userID, amount.StringFixed(2), periodMonths)
	return fd, nil
}

// accruedInterest computes flat interest over the start-to-maturity span,
// rounded to two decimal places. A late sweep does not overpay: the span is
// fixed by the deposit's own dates, not the wall clock.
func accruedInterest(fd *models.FixedDeposit) decimal.Decimal {
	years := fd.MaturityDate.Sub(fd.StartDate).Hours() / hoursPerYear
	return fd.DepositAmount.
		Mul(fd.InterestRate).Div(decimal.NewFromInt(100)).
		Mul(decimal.NewFromFloat(years)).
		Round(2)
}

// SweepMatured closes every active deposit past its maturity date. Each
// closure is its own atomic unit; one deposit's failure is logged and does
// not abort the rest of the batch. Returns the number of deposits closed.
func (s *FixedDepositService) SweepMatured(ctx context.Context) (int, error) {
	deposits, err := s.store.MaturedActiveDeposits(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	closed := 0
	for i := range deposits {
		fd := &deposits[i]
		interest, err := s.closeDeposit(ctx, fd)
		if err != nil {
			s.log.Errorf("Failed to close fixed deposit %d: %v", fd.ID, err)
			continue
		}
		closed++
		s.log.Infof("Fixed deposit %d closed: principal %s, interest %s",
			fd.ID, fd.DepositAmount.StringFixed(2), interest.StringFixed(2))
		s.notifyMaturity(ctx, fd, interest)
	}
	return closed, nil
}

func (s *FixedDepositService) closeDeposit(ctx context.Context, fd *models.FixedDeposit) (decimal.Decimal, error) {
	interest := accruedInterest(fd)
	owner := fd.Account.UserID

	err := s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		if err := tx.DeactivateFixedDeposit(fd.ID); err != nil {
			return err
		}
		target, err := tx.LiquidAccountByUserID(owner)
		if err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
			return err
		}

		if target != nil && target.ID != fd.AccountID {
			// Interest and principal are accounted separately: an
			// INTEREST_CREDIT for the accrued interest and a TRANSFER
			// moving the principal out of the anchor.
			if err := tx.SetBalance(fd.AccountID, decimal.Zero); err != nil {
				return err
			}
			if _, err := tx.AdjustBalance(target.ID, fd.DepositAmount.Add(interest), ledger.Unchecked); err != nil {
				return err
			}
			if err := tx.CreateTransaction(&models.Transaction{
				Type:          models.TransactionInterestCredit,
				Amount:        interest,
				FromAccountID: fd.AccountID,
				ToAccountID:   &target.ID,
				Description:   fmt.Sprintf("Interest payout for fixed deposit #%d", fd.ID),
			}); err != nil {
				return err
			}
			return tx.CreateTransaction(&models.Transaction{
				Type:          models.TransactionTransfer,
				Amount:        fd.DepositAmount,
				FromAccountID: fd.AccountID,
				ToAccountID:   &target.ID,
				Description:   fmt.Sprintf("Maturity payout for fixed deposit #%d", fd.ID),
			})
		}

		// No liquid account to pay into: the principal stays in the anchor
		// and only the interest is credited there.
		s.log.Warnf("No liquid account for user %d; fixed deposit %d pays interest into anchor account %d",
			owner, fd.ID, fd.AccountID)
		anchorID := fd.AccountID
		if _, err := tx.AdjustBalance(anchorID, interest, ledger.Unchecked); err != nil {
			return err
		}
		return tx.CreateTransaction(&models.Transaction{
			Type:          models.TransactionInterestCredit,
			Amount:        interest,
			FromAccountID: anchorID,
			ToAccountID:   &anchorID,
			Description:   fmt.Sprintf("Interest payout for fixed deposit #%d", fd.ID),
		})
	})
	if err != nil {
		return decimal.Zero, err
	}
	return interest, nil
}

func (s *FixedDepositService) notifyMaturity(ctx context.Context, fd *models.FixedDeposit, interest decimal.Decimal) {
	if s.notifier == nil {
		return
	}
	user, err := s.store.UserByID(ctx, fd.Account.UserID)
	if err != nil {
		s.log.Errorf("Failed to load user %d for maturity notice: %v", fd.Account.UserID, err)
		return
	}
	if err := s.notifier.SendDepositMaturityNotice(user.Email, user.Username, fd.ID, fd.DepositAmount, interest); err != nil {
		s.log.Errorf("Failed to send maturity notice for fixed deposit %d: %v", fd.ID, err)
	}
}

// Get returns a fixed deposit; customers only their own.
func (s *FixedDepositService) Get(ctx context.Context, id int64, actor models.Actor) (*models.FixedDeposit, error) {
	fd, err := s.store.FixedDepositByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(actor, fd.Account.UserID, "you can only view your own fixed deposits"); err != nil {
		return nil, err
	}
	return fd, nil
}

// ListByUser returns a user's deposits by activity flag; customers only
// their own.
func (s *FixedDepositService) ListByUser(ctx context.Context, userID int64, isActive bool, actor models.Actor) ([]models.FixedDeposit, error) {
	if err := requireOwner(actor, userID, "you can only view your own fixed deposits"); err != nil {
		return nil, err
	}
	return s.store.FixedDepositsByUserID(ctx, userID, isActive)
}
