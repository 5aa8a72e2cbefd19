package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avolkov/bankcore/internal/ledger"
	"github.com/avolkov/bankcore/internal/models"
)

type moneyRequest struct {
	AccountID   int64           `json:"account_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

func requirePositive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}

// Deposit handles a deposit to an account
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(r)
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}
	var req moneyRequest
	if err := h.decode(r, &req); err != nil {
		h.writeBadRequest(w, err)
		return
	}
	if err := requirePositive(req.Amount); err != nil {
		h.writeBadRequest(w, err)
		return
	}

	txn, err := h.transactions.Deposit(r.Context(), req.AccountID, req.Amount, req.Description, act)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, txn)
}

// Withdraw handles a withdrawal from an account
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(r)
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}
	var req moneyRequest
	if err := h.decode(r, &req); err != nil {
		h.writeBadRequest(w, err)
		return
	}
	if err := requirePositive(req.Amount); err != nil {
		h.writeBadRequest(w, err)
		return
	}

	txn, err := h.transactions.Withdraw(r.Context(), req.AccountID, req.Amount, req.Description, act)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, txn)
}

type transferRequest struct {
	FromAccountID int64           `json:"from_account_id" validate:"required"`
	ToAccountID   int64           `json:"to_account_id" validate:"required,nefield=FromAccountID"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
}

// Transfer handles an internal transfer between two accounts
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(r)
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}
	var req transferRequest
	if err := h.decode(r, &req); err != nil {
		h.writeBadRequest(w, err)
		return
	}
	if err := requirePositive(req.Amount); err != nil {
		h.writeBadRequest(w, err)
		return
	}

	txn, err := h.transactions.Transfer(r.Context(), req.FromAccountID, req.ToAccountID, req.Amount, req.Description, act)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, txn)
}

type externalTransferRequest struct {
	FromAccountID           int64           `json:"from_account_id" validate:"required"`
	Amount                  decimal.Decimal `json:"amount"`
	ToExternalAccountNumber string          `json:"to_external_account_number" validate:"required"`
	ToExternalRoutingNumber string          `json:"to_external_routing_number" validate:"required"`
	Description             string          `json:"description"`
}

// ExternalTransfer handles a transfer leaving the ledger
func (h *Handler) ExternalTransfer(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(r)
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}
	var req externalTransferRequest
	if err := h.decode(r, &req); err != nil {
		h.writeBadRequest(w, err)
		return
	}
	if err := requirePositive(req.Amount); err != nil {
		h.writeBadRequest(w, err)
		return
	}

	txn, err := h.transactions.ExternalTransfer(r.Context(), req.FromAccountID, req.Amount,
		req.ToExternalAccountNumber, req.ToExternalRoutingNumber, req.Description, act)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, txn)
}

// ListTransactions returns transactions matching the query filters
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(r)
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	filter := ledger.TransactionFilter{Limit: 50}
	q := r.URL.Query()
	if v := q.Get("account_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.writeBadRequest(w, fmt.Errorf("invalid account_id"))
			return
		}
		filter.AccountID = &id
	}
	if v := q.Get("type"); v != "" {
		t := models.TransactionType(v)
		filter.Type = &t
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeBadRequest(w, fmt.Errorf("invalid from date"))
			return
		}
		filter.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeBadRequest(w, fmt.Errorf("invalid to date"))
			return
		}
		filter.To = &t
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 500 {
			h.writeBadRequest(w, fmt.Errorf("invalid limit"))
			return
		}
		filter.Limit = limit
	}
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			h.writeBadRequest(w, fmt.Errorf("invalid page"))
			return
		}
		filter.Offset = (page - 1) * filter.Limit
	}

	transactions, err := h.transactions.List(r.Context(), filter, act)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, transactions)
}

// GetTransaction returns a single transaction
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
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
	txn, err := h.transactions.Get(r.Context(), id, act)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, txn)
}
