package handler

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/avolkov/bankcore/internal/apperr"
)

type openDepositRequest struct {
	UserID          int64           `json:"user_id"`
	Amount          decimal.Decimal `json:"amount"`
	PeriodMonths    int             `json:"period_months" validate:"required,min=1,max=120"`
	SourceAccountID int64           `json:"source_account_id" validate:"required"`
}

// OpenFixedDeposit opens a term deposit funded from a source account
func (h *Handler) OpenFixedDeposit(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(r)
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}
	var req openDepositRequest
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

	fd, err := h.deposits.Open(r.Context(), req.UserID, req.Amount, req.PeriodMonths, req.SourceAccountID, act)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, fd)
}

// GetFixedDeposit returns a single fixed deposit
func (h *Handler) GetFixedDeposit(w http.ResponseWriter, r *http.Request) {
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
	fd, err := h.deposits.Get(r.Context(), id, act)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, fd)
}

// ListFixedDeposits returns a user's fixed deposits
func (h *Handler) ListFixedDeposits(w http.ResponseWriter, r *http.Request) {
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
	isActive := true
	if v := r.URL.Query().Get("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.writeBadRequest(w, err)
			return
		}
		isActive = b
	}

	deposits, err := h.deposits.ListByUser(r.Context(), userID, isActive, act)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, deposits)
}

// SweepFixedDeposits runs the maturity sweep on demand
func (h *Handler) SweepFixedDeposits(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(r)
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}
	if !act.Role.Staff() {
		h.writeError(w, apperr.New(apperr.KindForbidden, "only staff can run the maturity sweep"))
		return
	}

	closed, err := h.deposits.SweepMatured(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"closed": closed})
}
