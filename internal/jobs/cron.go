package jobs

import (
	"context"
	"log/slog"
	"time"

	"booking-platform/internal/calls"
	"booking-platform/pkg/logger"

	"github.com/robfig/cron/v3"
)

// CallSweeper is the reconciliation job run on a schedule.
type CallSweeper interface {
	Run(ctx context.Context) (calls.SweepResult, error)
}

// CronManager manages scheduled jobs.
type CronManager struct {
	cron   *cron.Cron
	log    *slog.Logger
	base   context.Context
	cancel context.CancelFunc
}

func NewCronManager(log *slog.Logger) *CronManager {
	if log == nil {
		log = slog.Default()
	}
	base, cancel := context.WithCancel(context.Background())
	return &CronManager{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:    log,
		base:   base,
		cancel: cancel,
	}
}

// AddCallSweep schedules the call reconciliation sweep. timeout bounds one run.
func (cm *CronManager) AddCallSweep(schedule string, sweeper CallSweeper, timeout time.Duration) error {
	_, err := cm.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(logger.With(cm.base, cm.log), timeout)
		defer cancel()

		if _, err := sweeper.Run(ctx); err != nil {
			cm.log.Error("call sweep failed", "err", err)
		}
	})
	if err != nil {
		return err
	}
	cm.log.Info("call sweep scheduled", "schedule", schedule)
	return nil
}

func (cm *CronManager) Start() {
	cm.cron.Start()
}

// Stop cancels in-flight jobs and waits for them to return.
func (cm *CronManager) Stop() {
	cm.cancel()
	<-cm.cron.Stop().Done()
	cm.log.Info("cron jobs stopped")
}
