package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"database/sql"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/avolkov/bankcore/internal/config"
	"github.com/avolkov/bankcore/internal/handler"
	"github.com/avolkov/bankcore/internal/integrations/cbr"
	"github.com/avolkov/bankcore/internal/ledger/postgres"
	"github.com/avolkov/bankcore/internal/middleware"
	"github.com/avolkov/bankcore/internal/scheduler"
	"github.com/avolkov/bankcore/internal/service"
	"github.com/avolkov/bankcore/internal/utils/email"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Initialize layers
	store := postgres.NewStore(db, logger)
	rates := cbr.NewClient(cfg, logger)

	var notifier *email.Sender
	if cfg.SMTPHost != "" {
		notifier = email.NewSender(cfg, logger)
	}

	users := service.NewUserService(store, logger, cfg)
	accounts := service.NewAccountService(store, logger)
	transactions := service.NewTransactionService(store, logger, cfg)
	loans := service.NewLoanService(store, logger, cfg, rates, notifier)
	deposits := service.NewFixedDepositService(store, logger, cfg, notifier)

	h := handler.NewHandler(users, accounts, transactions, loans, deposits, logger)

	// Background jobs
	jobs, err := scheduler.NewScheduler(cfg, loans, deposits, logger)
	if err != nil {
		logger.Fatalf("Failed to set up scheduler: %v", err)
	}
	jobs.Start()
	defer jobs.Stop()

	// Setup router
	r := mux.NewRouter()
	// Public routes
	r.HandleFunc("/register", h.Register).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
	// Key rate endpoint
	r.HandleFunc("/key-rate", func(w http.ResponseWriter, r *http.Request) {
		rate, err := rates.GetKeyRate()
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to get key rate: %v", err), http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]float64{"key_rate": rate})
	}).Methods("GET")

	// Protected routes
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg))

	authRouter.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	authRouter.HandleFunc("/accounts", h.ListAccounts).Methods("GET")
	authRouter.HandleFunc("/accounts/{id}", h.GetAccount).Methods("GET")
	authRouter.HandleFunc("/accounts/{id}", h.DeleteAccount).Methods("DELETE")

	authRouter.HandleFunc("/transactions/deposit", h.Deposit).Methods("POST")
	authRouter.HandleFunc("/transactions/withdraw", h.Withdraw).Methods("POST")
	authRouter.HandleFunc("/transactions/transfer", h.Transfer).Methods("POST")
	authRouter.HandleFunc("/transactions/external-transfer", h.ExternalTransfer).Methods("POST")
	authRouter.HandleFunc("/transactions", h.ListTransactions).Methods("GET")
	authRouter.HandleFunc("/transactions/{id}", h.GetTransaction).Methods("GET")

	authRouter.HandleFunc("/loans", h.ApplyLoan).Methods("POST")
	authRouter.HandleFunc("/loans", h.ListLoans).Methods("GET")
	authRouter.HandleFunc("/loans/{id}", h.GetLoan).Methods("GET")
	authRouter.HandleFunc("/loans/{id}/approve", h.ApproveLoan).Methods("POST")
	authRouter.HandleFunc("/loans/{id}/reject", h.RejectLoan).Methods("POST")
	authRouter.HandleFunc("/loans/{id}/repay", h.RepayLoan).Methods("POST")

	authRouter.HandleFunc("/fixed-deposits", h.OpenFixedDeposit).Methods("POST")
	authRouter.HandleFunc("/fixed-deposits", h.ListFixedDeposits).Methods("GET")
	authRouter.HandleFunc("/fixed-deposits/sweep", h.SweepFixedDeposits).Methods("POST")
	authRouter.HandleFunc("/fixed-deposits/{id}", h.GetFixedDeposit).Methods("GET")

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}
