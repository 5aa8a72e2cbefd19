package handler

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
)

type applyLoanRequest struct {
	UserID                int64           `json:"user_id"`
	Amount                decimal.Decimal `json:"amount"`
	TermMonths            int             `json:"term_months" validate:"required,min=1,max=360"`
	DisbursementAccountID int64           `json:"disbursement_account_id" validate:"required"`
}

// ApplyLoan handles a loan application
func (h *Handler) ApplyLoan(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(r)
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}
	var req applyLoanRequest
	if err := h.decode(r, &req); err != nil {
		h.writeBadRequest(w, err)
		return
	}
	if err := requirePositive(req.Amount); err != nil {
		h.writeBadRequest(w, err)
		return
	}
	if req.UserID == 0 {
		req.UserID = act.UserID
	}

	loan, err := h.loans.Apply(r.Context(), req.UserID, req.Amount, req.TermMonths, req.DisbursementAccountID, act)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, loan)
}

// ApproveLoan approves a pending loan and disburses the principal
func (h *Handler) ApproveLoan(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(r)
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.writeBadRequest(w, err)
		return
	}
	loan, err := h.loans.Approve(r.Context(), id, act)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, loan)
}

// RejectLoan rejects a pending loan
func (h *Handler) RejectLoan(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(r)
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.writeBadRequest(w, err)
		return
	}
	if err := h.loans.Reject(r.Context(), id, act); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

type repayLoanRequest struct {
	ScheduleID    int64           `json:"schedule_id" validate:"required"`
	FromAccountID int64           `json:"from_account_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
}

// RepayLoan pays one installment of a loan
func (h *Handler) RepayLoan(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(r)
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.writeBadRequest(w, err)
		return
	}
	var req repayLoanRequest
	if err := h.decode(r, &req); err != nil {
		h.writeBadRequest(w, err)
		return
	}
	if err := requirePositive(req.Amount); err != nil {
		h.writeBadRequest(w, err)
		return
	}

	txn, err := h.loans.Repay(r.Context(), id, req.ScheduleID, req.FromAccountID, req.Amount, act)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, txn)
}

// GetLoan returns a loan with its schedules and payments
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(r)
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.writeBadRequest(w, err)
		return
	}
	loan, err := h.loans.Get(r.Context(), id, act)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, loan)
}

// ListLoans returns a user's loans; defaults to the actor's own
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(r)
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}
	userID := act.UserID
	if v := r.URL.Query().Get("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.writeBadRequest(w, err)
			return
		}
		userID = id
	}
	loans, err := h.loans.ListByUser(r.Context(), userID, act)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, loans)
}
