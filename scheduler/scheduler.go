package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"apt_scrooper/config"
	"apt_scrooper/models"
	"apt_scrooper/scraper"
	"apt_scrooper/storage"
)

// Runner is the part of the orchestrator the scheduler drives.
type Runner interface {
	RunAll(ctx context.Context) ([]*scraper.RunSummary, error)
	HandleCommand(ctx context.Context, cmd *models.Command) error
}

// Triggerable allows workers to be triggered manually
type Triggerable interface {
	Trigger()
}

type Scheduler struct {
	cfg    *config.Config
	runner Runner
	store  *storage.SQLiteStore
	log    *logrus.Logger
	cron   *cron.Cron
	ticker *time.Ticker
	stopCh chan struct{}

	sweepWorker Triggerable
	pollEvery   time.Duration
}

func New(cfg *config.Config, runner Runner, store *storage.SQLiteStore, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		runner:    runner,
		store:     store,
		log:       log,
		cron:      cron.New(),
		stopCh:    make(chan struct{}),
		pollEvery: 2 * time.Second,
	}
}

// SetSweepWorker routes sweep commands and the sweep schedule to w.
func (s *Scheduler) SetSweepWorker(w Triggerable) {
	s.sweepWorker = w
}

func (s *Scheduler) Start(ctx context.Context) error {
	go s.pollCommands(ctx)

	if s.cfg.Scheduler.Cron != "" {
		s.log.Infof("Starting scheduler with cron: %s", s.cfg.Scheduler.Cron)
		if _, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() { s.runAll(ctx) }); err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
	} else if s.cfg.Scheduler.Interval > 0 {
		s.log.Infof("Starting scheduler with interval: %s", s.cfg.Scheduler.Interval)
		s.ticker = time.NewTicker(s.cfg.Scheduler.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					s.runAll(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		s.log.Info("No sync schedule configured, daemon will only respond to commands")
	}

	if s.cfg.Scheduler.SweepCron != "" && s.sweepWorker != nil {
		s.log.Infof("Sweeping specials on cron: %s", s.cfg.Scheduler.SweepCron)
		if _, err := s.cron.AddFunc(s.cfg.Scheduler.SweepCron, s.sweepWorker.Trigger); err != nil {
			return fmt.Errorf("invalid sweep cron expression: %w", err)
		}
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}

func (s *Scheduler) runAll(ctx context.Context) {
	if _, err := s.runner.RunAll(ctx); err != nil {
		s.log.WithError(err).Error("Scheduled run failed")
	}
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processCommands(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// processCommands drains the pending command queue once.
func (s *Scheduler) processCommands(ctx context.Context) {
	cmds, err := s.store.GetPendingCommands()
	if err != nil {
		s.log.WithError(err).Error("Error getting commands")
		return
	}

	for _, cmd := range cmds {
		s.log.WithField("command", cmd.Command).Info("Processing command")
		if err := s.handleCommand(ctx, &cmd); err != nil {
			s.log.WithError(err).WithField("command", cmd.Command).Error("Command failed")
		}
		if err := s.store.MarkCommandProcessed(cmd.ID); err != nil {
			s.log.WithError(err).Error("Error marking command processed")
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	if cmd.Command == models.CmdSweep && s.sweepWorker != nil {
		s.sweepWorker.Trigger()
		s.log.Info("Sweep worker triggered via command")
		return nil
	}
	return s.runner.HandleCommand(ctx, cmd)
}
