// Package handler exposes the services over HTTP. Handlers are thin
// adapters: they decode and range-check the request, hand primitives to a
// service, and render whatever comes back.
package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/avolkov/bankcore/internal/middleware"
	"github.com/avolkov/bankcore/internal/models"
	"github.com/avolkov/bankcore/internal/service"
)

type Handler struct {
	users        *service.UserService
	accounts     *service.AccountService
	transactions *service.TransactionService
	loans        *service.LoanService
	deposits     *service.FixedDepositService
	validate     *validator.Validate
	log          *logrus.Logger
}

func NewHandler(
	users *service.UserService,
	accounts *service.AccountService,
	transactions *service.TransactionService,
	loans *service.LoanService,
	deposits *service.FixedDepositService,
	log *logrus.Logger,
) *Handler {
	return &Handler{
		users:        users,
		accounts:     accounts,
		transactions: transactions,
		loans:        loans,
		deposits:     deposits,
		validate:     validator.New(),
		log:          log,
	}
}

// decode unmarshals the JSON body into dst and runs struct validation.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := h.validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// actor returns the authenticated actor placed in the context by the auth
// middleware.
func actor(r *http.Request) (models.Actor, bool) {
	return middleware.ActorFromContext(r.Context())
}

// pathID parses the named integer path variable.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}
