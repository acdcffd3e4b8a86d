package calls

import (
	"context"
	"time"

	"booking-platform/internal/bolna"
	"booking-platform/internal/observability/metrics"
	"booking-platform/pkg/logger"
)

// Locker hands out a single-owner lease so only one replica sweeps at a time.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

const sweepLockKey = "calls:sweep:lock"

type SweeperConfig struct {
	StaleAfter time.Duration
	BatchSize  int
	LockTTL    time.Duration
}

// Sweeper refreshes calls that stopped receiving webhooks, using the same pull path as GetCall.
type Sweeper struct {
	rec     *Reconciler
	locker  Locker
	cfg     SweeperConfig
	metrics *metrics.VoiceMetrics
}

func NewSweeper(rec *Reconciler, locker Locker, cfg SweeperConfig, m *metrics.VoiceMetrics) *Sweeper {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &Sweeper{rec: rec, locker: locker, cfg: cfg, metrics: m}
}

type SweepResult struct {
	Skipped   bool
	Checked   int
	Refreshed int
}

func (s *Sweeper) Run(ctx context.Context) (SweepResult, error) {
	log := logger.From(ctx).With("job", "call_sweep")

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, sweepLockKey, s.cfg.LockTTL)
		if err != nil {
			s.metrics.ObserveSweep("error")
			return SweepResult{}, err
		}
		if !ok {
			log.Debug("sweep already running elsewhere")
			s.metrics.ObserveSweep("skipped")
			return SweepResult{Skipped: true}, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("sweep lock release failed", "err", err)
			}
		}()
	}

	cutoff := s.rec.now().Add(-s.cfg.StaleAfter)
	stale, err := s.rec.repo.ListStale(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		s.metrics.ObserveSweep("error")
		return SweepResult{}, err
	}

	res := SweepResult{Checked: len(stale)}
	providers := map[string]bolna.Provider{}
	for _, c := range stale {
		if ctx.Err() != nil {
			break
		}
		p, ok := providers[c.OrganizationID]
		if !ok {
			p, err = s.rec.creds.Provider(ctx, c.OrganizationID)
			if err != nil {
				log.Debug("sweep skipping organization without key", "organization_id", c.OrganizationID, "err", err)
				p = nil
			}
			providers[c.OrganizationID] = p
		}
		if p == nil {
			continue
		}
		updated, err := s.rec.refresh(ctx, p, c, "sweep")
		if err != nil {
			log.Error("sweep failed to persist call refresh", "call_id", c.ID, "err", err)
			continue
		}
		if updated.Status != c.Status {
			res.Refreshed++
		}
	}
	s.metrics.ObserveSweep("ok")
	log.Info("call sweep finished", "checked", res.Checked, "refreshed", res.Refreshed)
	return res, nil
}
