package handler

import (
	"net/http"

	"github.com/avolkov/bankcore/internal/models"
)

type createAccountRequest struct {
	UserID   int64  `json:"user_id"`
	Type     string `json:"type" validate:"required,oneof=CHECKING SAVINGS"`
	Currency string `json:"currency" validate:"required,len=3"`
}

// CreateAccount handles account creation
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(r)
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}
	var req createAccountRequest
	if err := h.decode(r, &req); err != nil {
		h.writeBadRequest(w, err)
		return
	}
	if req.UserID == 0 {
		req.UserID = act.UserID
	}

	account, err := h.accounts.Create(r.Context(), req.UserID, models.AccountType(req.Type), req.Currency, act)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, account)
}

// ListAccounts returns the actor's accounts
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(r)
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}
	accounts, err := h.accounts.ListMine(r.Context(), act)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, accounts)
}

// GetAccount returns a single account
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
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
	account, err := h.accounts.Get(r.Context(), id, act)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// DeleteAccount removes an emptied account
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
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
	if err := h.accounts.Delete(r.Context(), id, act); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}
