package scheduler

import (
	"context"

	"github.com/editorialops/referee-monitor/internal/config"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Runner is the part of the monitoring service the scheduler drives
type Runner interface {
	RunAll(ctx context.Context) error
	RunDeadlineCheck(ctx context.Context) error
}

// Service handles scheduling of monitoring tasks
type Service struct {
	config *config.Config
	runner Runner
	cron   *cron.Cron
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, runner Runner) *Service {
	return &Service{
		config: cfg,
		runner: runner,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(cfg.Location()),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
	}
}

// Start begins the scheduled monitoring
func (s *Service) Start() error {
	_, err := s.cron.AddFunc(s.config.Schedule, func() {
		logrus.Info("Starting scheduled monitoring run")
		if err := s.runner.RunAll(context.Background()); err != nil {
			logrus.Errorf("Scheduled monitoring run failed: %v", err)
		}
	})

	if err != nil {
		return err
	}

	// Deadlines are re-evaluated from the stored snapshots between full runs
	if s.config.DeadlineCheckSchedule != "" {
		_, err = s.cron.AddFunc(s.config.DeadlineCheckSchedule, func() {
			logrus.Info("Starting scheduled deadline check")
			if err := s.runner.RunDeadlineCheck(context.Background()); err != nil {
				logrus.Errorf("Deadline check failed: %v", err)
			}
		})

		if err != nil {
			return err
		}
	}

	s.cron.Start()
	logrus.WithFields(logrus.Fields{
		"schedule":       s.config.Schedule,
		"deadline_check": s.config.DeadlineCheckSchedule,
	}).Info("Scheduler started")
	return nil
}

// Entries returns the number of scheduled jobs
func (s *Service) Entries() int {
	return len(s.cron.Entries())
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		logrus.Info("Scheduler stopped")
	}
}
