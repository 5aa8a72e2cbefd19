package email

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/avolkov/bankcore/internal/config"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

// SendPaymentReminder sends a loan payment reminder email
func (s *Sender) SendPaymentReminder(to, username string, loanID int64, dueDate time.Time, amount decimal.Decimal, isOverdue bool) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	if isOverdue {
		e.Subject = "Overdue Loan Payment Notification"
	} else {
		e.Subject = "Upcoming Loan Payment Reminder"
	}

	body := fmt.Sprintf("Dear %s,\n\n", username)
	if isOverdue {
		body += fmt.Sprintf(
			"Your payment of %s on loan #%d was due on %s and is now overdue.\n"+
				"The loan has been marked overdue. Please make the payment as soon as possible.\n",
			amount.StringFixed(2), loanID, dueDate.Format("2006-01-02"),
		)
	} else {
		body += fmt.Sprintf(
			"This is a reminder that your payment of %s on loan #%d is due on %s.\n"+
				"Please ensure sufficient funds are available in your account.\n",
			amount.StringFixed(2), loanID, dueDate.Format("2006-01-02"),
		)
	}
	body += "\nBest regards,\nBank Service"
	e.Text = []byte(body)

	return s.send(e, to)
}

// SendDepositMaturityNotice notifies a depositor that a fixed deposit
// matured and was paid out.
func (s *Sender) SendDepositMaturityNotice(to, username string, depositID int64, principal, interest decimal.Decimal) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = "Fixed Deposit Maturity Notification"

	body := fmt.Sprintf(
		"Dear %s,\n\n"+
			"Your fixed deposit #%d has matured.\n"+
			"Principal: %s\n"+
			"Interest earned: %s\n"+
			"Total payout: %s\n"+
			"\nBest regards,\nBank Service",
		username, depositID,
		principal.StringFixed(2), interest.StringFixed(2), principal.Add(interest).StringFixed(2),
	)
	e.Text = []byte(body)

	return s.send(e, to)
}

func (s *Sender) send(e *email.Email, to string) error {
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", to, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", to, e.Subject)
	return nil
}
