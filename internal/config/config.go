package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

// Config holds application configuration
type Config struct {
	Port      string
	DBConn    string
	LogLevel  string
	JWTSecret string
	CBRURL    string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string

	// DefaultInterestRate prices loans and fixed deposits (percent per year)
	// when the key-rate feed is unavailable.
	DefaultInterestRate decimal.Decimal
	// TransferFeeRate is the fee charged on external transfers, as a
	// fraction of the amount.
	TransferFeeRate decimal.Decimal

	// Cron specs for the background jobs.
	SweepSchedule   string
	OverdueSchedule string
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		DBConn:          getEnv("DB_CONN", "host=localhost port=5436 user=test password=test dbname=bank sslmode=disable"),
		LogLevel:        getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:       getEnv("JWT_SECRET", "secret"),
		CBRURL:          getEnv("CBR_URL", "https://www.cbr.ru/DailyInfoWebServ/DailyInfo.asmx"),
		SMTPHost:        getEnv("SMTP_HOST", ""),
		SMTPPort:        getEnv("SMTP_PORT", "587"),
		SMTPUsername:    getEnv("SMTP_USERNAME", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
		SenderEmail:     getEnv("SENDER_EMAIL", "noreply@bankcore.local"),
		SweepSchedule:   getEnv("SWEEP_SCHEDULE", "@hourly"),
		OverdueSchedule: getEnv("OVERDUE_SCHEDULE", "@daily"),
	}

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	rate, err := decimal.NewFromString(getEnv("DEFAULT_INTEREST_RATE", "5.0"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_INTEREST_RATE: %w", err)
	}
	cfg.DefaultInterestRate = rate

	fee, err := decimal.NewFromString(getEnv("TRANSFER_FEE_RATE", "0.01"))
	if err != nil {
		return nil, fmt.Errorf("invalid TRANSFER_FEE_RATE: %w", err)
	}
	cfg.TransferFeeRate = fee

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
