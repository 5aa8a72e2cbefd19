// Package memory implements the ledger contract in process memory.
// A single mutex serializes atomic units; a snapshot taken at the start of
// each unit is restored when the unit function fails, so a failed unit
// leaves no partial effect. It backs the service tests and small deployments
// without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avolkov/bankcore/internal/apperr"
	"github.com/avolkov/bankcore/internal/ledger"
	"github.com/avolkov/bankcore/internal/models"
)

// Store is an in-memory ledger store.
type Store struct {
	mu sync.Mutex
	st *state
}

type state struct {
	accounts     map[int64]*models.Account
	users        map[int64]*models.User
	transactions []models.Transaction
	loans        map[int64]*models.Loan
	schedules    map[int64]*models.LoanSchedule
	payments     []models.LoanPayment
	deposits     map[int64]*models.FixedDeposit

	nextAccountID     int64
	nextUserID        int64
	nextTransactionID int64
	nextLoanID        int64
	nextScheduleID    int64
	nextPaymentID     int64
	nextDepositID     int64
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{st: newState()}
}

func newState() *state {
	return &state{
		accounts:  make(map[int64]*models.Account),
		users:     make(map[int64]*models.User),
		loans:     make(map[int64]*models.Loan),
		schedules: make(map[int64]*models.LoanSchedule),
		deposits:  make(map[int64]*models.FixedDeposit),
	}
}

// clone deep-copies the state. Decimal values are immutable, so copying the
// structs by value is enough.
func (s *state) clone() *state {
	cp := &state{
		accounts:          make(map[int64]*models.Account, len(s.accounts)),
		users:             make(map[int64]*models.User, len(s.users)),
		transactions:      append([]models.Transaction(nil), s.transactions...),
		loans:             make(map[int64]*models.Loan, len(s.loans)),
		schedules:         make(map[int64]*models.LoanSchedule, len(s.schedules)),
		payments:          append([]models.LoanPayment(nil), s.payments...),
		deposits:          make(map[int64]*models.FixedDeposit, len(s.deposits)),
		nextAccountID:     s.nextAccountID,
		nextUserID:        s.nextUserID,
		nextTransactionID: s.nextTransactionID,
		nextLoanID:        s.nextLoanID,
		nextScheduleID:    s.nextScheduleID,
		nextPaymentID:     s.nextPaymentID,
		nextDepositID:     s.nextDepositID,
	}
	for id, a := range s.accounts {
		v := *a
		cp.accounts[id] = &v
	}
	for id, u := range s.users {
		v := *u
		cp.users[id] = &v
	}
	for id, l := range s.loans {
		v := *l
		v.Schedules = nil
		v.Payments = nil
		cp.loans[id] = &v
	}
	for id, sc := range s.schedules {
		v := *sc
		cp.schedules[id] = &v
	}
	for id, fd := range s.deposits {
		v := *fd
		v.Account = nil
		cp.deposits[id] = &v
	}
	return cp
}

// WithinTx runs fn under the store mutex and rolls the state back if fn
// returns an error. The mutex linearizes units against each other, which
// satisfies the ledger ordering guarantees without row-level locking.
func (s *Store) WithinTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&memTx{st: s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

type memTx struct {
	st *state
}

func (t *memTx) AccountByID(id int64) (*models.Account, error) {
	a, ok := t.st.accounts[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "account not found")
	}
	cp := *a
	return &cp, nil
}

func (t *memTx) CreateAccount(a *models.Account) error {
	t.st.nextAccountID++
	a.ID = t.st.nextAccountID
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now
	cp := *a
	t.st.accounts[a.ID] = &cp
	return nil
}

func (t *memTx) AdjustBalance(accountID int64, delta decimal.Decimal, constraint ledger.Constraint) (*models.Account, error) {
	a, ok := t.st.accounts[accountID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "account not found")
	}
	next := a.Balance.Add(delta)
	if constraint == ledger.NonNegative && next.IsNegative() {
		return nil, apperr.New(apperr.KindInsufficientFunds, "insufficient funds")
	}
	a.Balance = next
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (t *memTx) SetBalance(accountID int64, balance decimal.Decimal) error {
	a, ok := t.st.accounts[accountID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "account not found")
	}
	a.Balance = balance
	a.UpdatedAt = time.Now()
	return nil
}

func (t *memTx) LiquidAccountByUserID(userID int64) (*models.Account, error) {
	var found *models.Account
	for _, a := range t.st.accounts {
		if a.UserID != userID || !a.Type.Liquid() {
			continue
		}
		if found == nil || a.ID < found.ID {
			found = a
		}
	}
	if found == nil {
		return nil, apperr.New(apperr.KindNotFound, "no liquid account for user")
	}
	cp := *found
	return &cp, nil
}

func (t *memTx) CreateTransaction(txn *models.Transaction) error {
	t.st.nextTransactionID++
	txn.ID = t.st.nextTransactionID
	if txn.Reference == "" {
		txn.Reference = uuid.NewString()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}
	t.st.transactions = append(t.st.transactions, *txn)
	return nil
}

func (t *memTx) CreateLoan(l *models.Loan) error {
	t.st.nextLoanID++
	l.ID = t.st.nextLoanID
	now := time.Now()
	l.CreatedAt = now
	l.UpdatedAt = now
	cp := *l
	cp.Schedules = nil
	cp.Payments = nil
	t.st.loans[l.ID] = &cp
	return nil
}

func (t *memTx) LoanByID(id int64) (*models.Loan, error) {
	l, ok := t.st.loans[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "loan not found")
	}
	cp := *l
	return &cp, nil
}

func (t *memTx) UpdateLoanStatus(loanID int64, status models.LoanStatus) error {
	l, ok := t.st.loans[loanID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "loan not found")
	}
	l.Status = status
	l.UpdatedAt = time.Now()
	return nil
}

func (t *memTx) CreateLoanSchedules(rows []models.LoanSchedule) error {
	for i := range rows {
		t.st.nextScheduleID++
		rows[i].ID = t.st.nextScheduleID
		cp := rows[i]
		t.st.schedules[cp.ID] = &cp
	}
	return nil
}

func (t *memTx) LoanScheduleByID(id int64) (*models.LoanSchedule, error) {
	sc, ok := t.st.schedules[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "loan schedule not found")
	}
	cp := *sc
	return &cp, nil
}

func (t *memTx) MarkSchedulePaid(scheduleID int64, paidAmount decimal.Decimal, paidAt time.Time) error {
	sc, ok := t.st.schedules[scheduleID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "loan schedule not found")
	}
	sc.Status = models.PaymentPaid
	sc.PaidAmount = &paidAmount
	sc.PaidAt = &paidAt
	return nil
}

func (t *memTx) CountUnpaidSchedules(loanID int64) (int, error) {
	n := 0
	for _, sc := range t.st.schedules {
		if sc.LoanID == loanID && sc.Status != models.PaymentPaid {
			n++
		}
	}
	return n, nil
}

func (t *memTx) CreateLoanPayment(p *models.LoanPayment) error {
	t.st.nextPaymentID++
	p.ID = t.st.nextPaymentID
	if p.PaymentDate.IsZero() {
		p.PaymentDate = time.Now()
	}
	t.st.payments = append(t.st.payments, *p)
	return nil
}

func (t *memTx) CreateFixedDeposit(fd *models.FixedDeposit) error {
	t.st.nextDepositID++
	fd.ID = t.st.nextDepositID
	cp := *fd
	cp.Account = nil
	t.st.deposits[fd.ID] = &cp
	return nil
}

func (t *memTx) DeactivateFixedDeposit(id int64) error {
	fd, ok := t.st.deposits[id]
	if !ok {
		return apperr.New(apperr.KindNotFound, "fixed deposit not found")
	}
	fd.IsActive = false
	return nil
}

// ---- plain reads ----

func (s *Store) AccountByID(ctx context.Context, id int64) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.st.accounts[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "account not found")
	}
	cp := *a
	return &cp, nil
}

func (s *Store) AccountsByUserID(ctx context.Context, userID int64) ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Account
	for _, a := range s.st.accounts {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteAccount(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.accounts[id]; !ok {
		return apperr.New(apperr.KindNotFound, "account not found")
	}
	for _, txn := range s.st.transactions {
		if txn.FromAccountID == id || (txn.ToAccountID != nil && *txn.ToAccountID == id) {
			return apperr.New(apperr.KindConflict, "account has associated transactions")
		}
	}
	for _, l := range s.st.loans {
		if l.AccountID == id || l.DisbursementAccountID == id {
			return apperr.New(apperr.KindConflict, "account has associated loans")
		}
	}
	for _, fd := range s.st.deposits {
		if fd.AccountID == id {
			return apperr.New(apperr.KindConflict, "account has associated fixed deposits")
		}
	}
	delete(s.st.accounts, id)
	return nil
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.st.users {
		if existing.Email == u.Email {
			return apperr.New(apperr.KindConflict, "email already registered")
		}
	}
	s.st.nextUserID++
	u.ID = s.st.nextUserID
	u.CreatedAt = time.Now()
	cp := *u
	s.st.users[u.ID] = &cp
	return nil
}

func (s *Store) UserByID(ctx context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.st.users[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	cp := *u
	return &cp, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.st.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperr.New(apperr.KindNotFound, "user not found")
}

func (s *Store) TransactionByID(ctx context.Context, id int64) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, txn := range s.st.transactions {
		if txn.ID == id {
			cp := txn
			return &cp, nil
		}
	}
	return nil, apperr.New(apperr.KindNotFound, "transaction not found")
}

func (s *Store) Transactions(ctx context.Context, filter ledger.TransactionFilter) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transaction
	for _, txn := range s.st.transactions {
		if filter.AccountID != nil &&
			txn.FromAccountID != *filter.AccountID &&
			(txn.ToAccountID == nil || *txn.ToAccountID != *filter.AccountID) {
			continue
		}
		if filter.Type != nil && txn.Type != *filter.Type {
			continue
		}
		if filter.From != nil && txn.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && txn.CreatedAt.After(*filter.To) {
			continue
		}
		out = append(out, txn)
	}
	// newest first, matching the durable store's ordering
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) LoanByID(ctx context.Context, id int64) (*models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.st.loans[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "loan not found")
	}
	cp := *l
	s.attachLoanDetails(&cp)
	return &cp, nil
}

func (s *Store) LoansByUserID(ctx context.Context, userID int64) ([]models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Loan
	for _, l := range s.st.loans {
		if l.UserID != userID {
			continue
		}
		cp := *l
		s.attachLoanDetails(&cp)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) attachLoanDetails(l *models.Loan) {
	l.Schedules = nil
	l.Payments = nil
	for _, sc := range s.st.schedules {
		if sc.LoanID == l.ID {
			l.Schedules = append(l.Schedules, *sc)
		}
	}
	sort.Slice(l.Schedules, func(i, j int) bool {
		return l.Schedules[i].DueDate.Before(l.Schedules[j].DueDate)
	})
	for _, p := range s.st.payments {
		if p.LoanID == l.ID {
			l.Payments = append(l.Payments, p)
		}
	}
	sort.Slice(l.Payments, func(i, j int) bool {
		return l.Payments[i].PaymentDate.After(l.Payments[j].PaymentDate)
	})
}

func (s *Store) UnpaidSchedulesDueBefore(ctx context.Context, t time.Time) ([]models.LoanSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LoanSchedule
	for _, sc := range s.st.schedules {
		if sc.Status != models.PaymentPaid && sc.DueDate.Before(t) {
			out = append(out, *sc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (s *Store) FixedDepositByID(ctx context.Context, id int64) (*models.FixedDeposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fd, ok := s.st.deposits[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "fixed deposit not found")
	}
	cp := *fd
	s.attachAnchor(&cp)
	return &cp, nil
}

func (s *Store) FixedDepositsByUserID(ctx context.Context, userID int64, isActive bool) ([]models.FixedDeposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.FixedDeposit
	for _, fd := range s.st.deposits {
		anchor, ok := s.st.accounts[fd.AccountID]
		if !ok || anchor.UserID != userID || fd.IsActive != isActive {
			continue
		}
		cp := *fd
		s.attachAnchor(&cp)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out, nil
}

func (s *Store) MaturedActiveDeposits(ctx context.Context, t time.Time) ([]models.FixedDeposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.FixedDeposit
	for _, fd := range s.st.deposits {
		if fd.IsActive && !fd.MaturityDate.After(t) {
			cp := *fd
			s.attachAnchor(&cp)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) attachAnchor(fd *models.FixedDeposit) {
	if a, ok := s.st.accounts[fd.AccountID]; ok {
		cp := *a
		fd.Account = &cp
	}
}
