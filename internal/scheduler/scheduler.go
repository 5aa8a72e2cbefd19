// Package scheduler runs the periodic jobs: the fixed-deposit maturity
// sweep and the overdue-loan pass.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/avolkov/bankcore/internal/config"
	"github.com/avolkov/bankcore/internal/service"
)

type Scheduler struct {
	cron     *cron.Cron
	loans    *service.LoanService
	deposits *service.FixedDepositService
	log      *logrus.Logger
}

func NewScheduler(cfg *config.Config, loans *service.LoanService, deposits *service.FixedDepositService, log *logrus.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:     cron.New(),
		loans:    loans,
		deposits: deposits,
		log:      log,
	}

	if _, err := s.cron.AddFunc(cfg.SweepSchedule, s.runSweep); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc(cfg.OverdueSchedule, s.runOverdue); err != nil {
		return nil, err
	}
	return s, nil
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Scheduler started")
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("Scheduler stopped")
}

func (s *Scheduler) runSweep() {
	closed, err := s.deposits.SweepMatured(context.Background())
	if err != nil {
		s.log.Errorf("Fixed deposit sweep failed: %v", err)
		return
	}
	if closed > 0 {
		s.log.Infof("Fixed deposit sweep closed %d deposits", closed)
	}
}

func (s *Scheduler) runOverdue() {
	marked, err := s.loans.ProcessOverdue(context.Background())
	if err != nil {
		s.log.Errorf("Overdue loan pass failed: %v", err)
		return
	}
	if marked > 0 {
		s.log.Infof("Overdue pass marked %d loans", marked)
	}
}
